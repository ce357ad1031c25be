package ws

import (
	"context"
	"log/slog"
	"time"
)

const DefaultKeepaliveInterval = 5 * time.Second

// Keepalive периодически пингует открытые сессии и убирает из реестра закрытые.
// Пинги одновременно проверяют живость и сбрасывают таймаут простоя на транспорте.
type Keepalive struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

func NewKeepalive(registry *Registry, interval time.Duration, logger *slog.Logger, metrics *Metrics) *Keepalive {
	if interval <= 0 {
		interval = DefaultKeepaliveInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Keepalive{
		registry: registry,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run блокируется до отмены ctx. Первый проход выполняется через interval, как и все последующие.
func (k *Keepalive) Run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.logger.Debug("keepalive started", "interval", k.interval)

	for {
		select {
		case <-ctx.Done():
			k.logger.Debug("keepalive stopped")
			return
		case <-ticker.C:
			k.Sweep()
		}
	}
}

// Sweep выполняет один проход по снимку реестра.
func (k *Keepalive) Sweep() {
	k.registry.ForEach(func(key string, s Socket) {
		if s.IsOpen() {
			if err := s.Send(PingFrame(nil)); err != nil {
				k.metrics.sendFailed(OpPing)
				k.logger.Warn("failed to send ping", "key", key, "error", err)
				return
			}

			k.metrics.pingSent()
			return
		}

		if err := s.Close(); err != nil {
			k.logger.Debug("close of stale session failed", "key", key, "error", err)
		}

		if k.registry.remove(key, s) {
			k.metrics.reaped()
			k.logger.Info("reaped stale session", "key", key)
		}
	})
}
