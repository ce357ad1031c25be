package ws

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher маршрутизирует входящие кадры по opcode.
// Управляющие кадры обрабатываются локально, данные пересылаются остальным участникам реестра.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

func NewDispatcher(registry *Registry, logger *slog.Logger, metrics *Metrics, tracer trace.Tracer) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	if tracer == nil {
		tracer = defaultTracer()
	}

	return &Dispatcher{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
	}
}

func (d *Dispatcher) Dispatch(src Socket, frame Frame) {
	d.metrics.frameReceived(frame.Opcode)

	switch frame.Opcode {
	case OpPing:
		if err := src.Send(PongFrame(frame.Payload)); err != nil {
			d.metrics.sendFailed(OpPong)
			d.logger.Warn("failed to send pong", "key", src.Key(), "error", err)
		}

	case OpPong:
		// Живость подтверждается таймером активности транспорта.

	case OpClose:
		if err := src.Close(); err != nil {
			d.logger.Debug("close failed", "key", src.Key(), "error", err)
		}

	case OpText, OpBinary:
		d.Broadcast(context.Background(), src, frame)

	default:
		d.logger.Error("dropping frame", "key", src.Key(), "error", fmt.Errorf("%w: %s", ErrUnknownOpcode, frame.Opcode))
	}
}

// Broadcast отправляет кадр всем сессиям реестра, кроме src, и возвращает число успешных отправок.
// Ошибка отправки одному получателю не прерывает доставку остальным и не удаляет его из реестра.
func (d *Dispatcher) Broadcast(ctx context.Context, src Socket, frame Frame) int {
	srcKey := src.Key()

	_, span := d.tracer.Start(ctx, "relay.broadcast",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("relay.source", srcKey),
			attribute.String("relay.opcode", frame.Opcode.String()),
			attribute.Int("relay.payload_size", len(frame.Payload)),
		),
	)
	defer span.End()

	d.logger.Debug("received message", "key", srcKey, "opcode", frame.Opcode.String(), "size", len(frame.Payload))

	var sent, failed int

	d.registry.ForEach(func(key string, dst Socket) {
		if key == srcKey {
			return
		}

		if err := dst.Send(frame); err != nil {
			failed++
			d.metrics.sendFailed(frame.Opcode)
			d.logger.Warn("relay failed",
				"from", srcKey,
				"to", key,
				"error", fmt.Errorf("%w: %w", ErrSendFailure, err),
			)

			return
		}

		sent++
		d.metrics.frameRelayed()
	})

	span.SetAttributes(
		attribute.Int("relay.recipients", sent),
		attribute.Int("relay.failures", failed),
	)

	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d recipients failed", failed))
	}

	return sent
}
