package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	handshakeAccepted = "accepted"
	handshakeRejected = "rejected"
	handshakeAborted  = "aborted"
	handshakeFailed   = "failed"
)

type MetricsConfig struct {
	// Namespace - префикс метрик (по умолчанию "relay").
	Namespace   string
	ConstLabels prometheus.Labels
	// Registry - куда регистрировать метрики (по умолчанию prometheus.DefaultRegisterer).
	Registry prometheus.Registerer
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "relay",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics - счётчики ретранслятора. Методы допускают nil-получатель,
// поэтому компоненты работают и без метрик.
type Metrics struct {
	activeSessions  prometheus.Gauge
	handshakes      *prometheus.CounterVec
	framesReceived  *prometheus.CounterVec
	framesRelayed   prometheus.Counter
	sendFailures    *prometheus.CounterVec
	keepalivePings  prometheus.Counter
	keepaliveReaped prometheus.Counter
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "relay"
	}

	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "active_sessions",
			Help:        "Number of sessions currently in the registry",
			ConstLabels: cfg.ConstLabels,
		}),

		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "handshakes_total",
			Help:        "WebSocket handshakes by result",
			ConstLabels: cfg.ConstLabels,
		}, []string{"result"}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "frames_received_total",
			Help:        "Inbound frames by opcode",
			ConstLabels: cfg.ConstLabels,
		}, []string{"opcode"}),

		framesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "frames_relayed_total",
			Help:        "Frames delivered to other sessions",
			ConstLabels: cfg.ConstLabels,
		}),

		sendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "send_failures_total",
			Help:        "Failed outbound sends by opcode",
			ConstLabels: cfg.ConstLabels,
		}, []string{"opcode"}),

		keepalivePings: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "keepalive_pings_total",
			Help:        "Ping frames sent by the keepalive sweep",
			ConstLabels: cfg.ConstLabels,
		}),

		keepaliveReaped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "keepalive_reaped_total",
			Help:        "Non-open sessions closed and removed by the keepalive sweep",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

func (m *Metrics) sessionRegistered() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

func (m *Metrics) sessionRemoved() {
	if m != nil {
		m.activeSessions.Dec()
	}
}

func (m *Metrics) handshake(result string) {
	if m != nil {
		m.handshakes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) frameReceived(op Opcode) {
	if m != nil {
		m.framesReceived.WithLabelValues(op.String()).Inc()
	}
}

func (m *Metrics) frameRelayed() {
	if m != nil {
		m.framesRelayed.Inc()
	}
}

func (m *Metrics) sendFailed(op Opcode) {
	if m != nil {
		m.sendFailures.WithLabelValues(op.String()).Inc()
	}
}

func (m *Metrics) pingSent() {
	if m != nil {
		m.keepalivePings.Inc()
	}
}

func (m *Metrics) reaped() {
	if m != nil {
		m.keepaliveReaped.Inc()
	}
}
