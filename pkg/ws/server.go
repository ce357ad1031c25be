package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultAddr    = ":1984"
	SocketPath     = "/socket"
	DefaultWelcome = "Welcome to Corvusoft Chat!"
)

type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	Logger          *slog.Logger

	// Welcome отправляется каждой новой сессии до регистрации.
	Welcome           string
	KeepaliveInterval time.Duration
	// IdleTimeout - таймаут простоя, продлевается любым входящим кадром и каждой успешной отправкой.
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64

	// KeyFunc задаёт ключ сессии; по умолчанию - адрес удалённой стороны TCP соединения.
	KeyFunc func(r *http.Request, conn *websocket.Conn) string

	Metrics *Metrics
	Tracer  trace.Tracer
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       func(r *http.Request) bool { return true },
		Logger:            slog.Default(),
		Welcome:           DefaultWelcome,
		KeepaliveInterval: DefaultKeepaliveInterval,
		IdleTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    1 << 20,
	}
}

type Server struct {
	cfg        ServerConfig
	upgrader   websocket.Upgrader
	registry   *Registry
	dispatcher *Dispatcher
	keepalive  *Keepalive
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Tracer == nil {
		cfg.Tracer = defaultTracer()
	}

	if cfg.KeyFunc == nil {
		cfg.KeyFunc = remoteAddrKey
	}

	registry := NewRegistry(cfg.Metrics)

	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		registry:   registry,
		dispatcher: NewDispatcher(registry, cfg.Logger, cfg.Metrics, cfg.Tracer),
		keepalive:  NewKeepalive(registry, cfg.KeepaliveInterval, cfg.Logger, cfg.Metrics),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
	}
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// Run запускает keepalive и блокируется до отмены ctx.
func (s *Server) Run(ctx context.Context) {
	s.keepalive.Run(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.negotiate(w, r)
	if !ok {
		return
	}

	sess.serve()
}

func (s *Server) negotiate(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	_, span := s.tracer.Start(r.Context(), "relay.negotiate",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("net.peer.addr", r.RemoteAddr)),
	)
	defer span.End()

	headers, err := HandshakeHeaders(r.Header)
	if err != nil {
		s.fail(span, handshakeRejected, err)
		s.logger.Warn("rejected handshake", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)

		return nil, false
	}

	// Ответ с ошибкой при неудаче gorilla пишет сама.
	conn, err := s.upgrader.Upgrade(w, r, transportHeaders(headers))
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrNegotiationAborted, err)
		s.fail(span, handshakeAborted, err)
		s.logger.Warn("negotiation failed", "remote_addr", r.RemoteAddr, "error", err)

		return nil, false
	}

	sess := newSession(conn, s.cfg.KeyFunc(r, conn), sessionConfig{
		WriteTimeout:   s.cfg.WriteTimeout,
		IdleTimeout:    s.cfg.IdleTimeout,
		MaxMessageSize: s.cfg.MaxMessageSize,
		Logger:         s.logger,
	})
	span.SetAttributes(attribute.String("relay.session", sess.Key()))

	sess.OnMessage(s.dispatcher.Dispatch)
	sess.OnError(s.handleError)
	sess.OnClose(s.handleClose)

	if err := sess.Send(TextFrame(s.cfg.Welcome)); err != nil {
		s.fail(span, handshakeFailed, err)
		s.logger.Warn("negotiation failed: could not send welcome message", "key", sess.Key(), "error", err)
		_ = sess.Close()

		return nil, false
	}

	if err := sess.register(s.registry); err != nil {
		s.fail(span, handshakeFailed, err)
		s.logger.Error("registry rejected session", "key", sess.Key(), "error", err)
		_ = sess.Close()

		return nil, false
	}

	s.metrics.handshake(handshakeAccepted)
	s.logger.Info("sent welcome message", "key", sess.Key())

	return sess, true
}

func (s *Server) fail(span trace.Span, result string, err error) {
	s.metrics.handshake(result)
	span.RecordError(err)
	span.SetStatus(codes.Error, result)
}

func (s *Server) handleError(sock Socket, err error) {
	s.logger.Error("websocket errored", "key", sock.Key(), "error", err)
}

func (s *Server) handleClose(sock Socket) {
	if s.registry.remove(sock.Key(), sock) {
		s.logger.Info("closed connection", "key", sock.Key())
	}
}

func remoteAddrKey(_ *http.Request, conn *websocket.Conn) string {
	return conn.RemoteAddr().String()
}
