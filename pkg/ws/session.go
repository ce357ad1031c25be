package ws

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type SessionState int32

const (
	StateOpen SessionState = iota
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Phase - этап жизненного цикла: после рукопожатия сессия Negotiated,
// в реестр попадает только после успешной отправки приветствия.
type Phase int32

const (
	PhaseNegotiated Phase = iota
	PhaseRegistered
)

const closeGracePeriod = time.Second

type sessionConfig struct {
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxMessageSize int64
	Logger         *slog.Logger
}

// Session - открытое WebSocket соединение поверх gorilla/websocket.
type Session struct {
	key     string
	conn    *websocket.Conn
	cfg     sessionConfig
	logger  *slog.Logger
	state   atomic.Int32
	phase   atomic.Int32
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error

	onMessage func(Socket, Frame)
	onError   func(Socket, error)
	onClose   func(Socket)
}

func newSession(conn *websocket.Conn, key string, cfg sessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{
		key:    key,
		conn:   conn,
		cfg:    cfg,
		logger: cfg.Logger.With("key", key),
	}

	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	conn.SetPingHandler(func(appData string) error {
		s.touch()
		s.deliver(PingFrame([]byte(appData)))
		return nil
	})

	conn.SetPongHandler(func(appData string) error {
		s.touch()
		s.deliver(PongFrame([]byte(appData)))
		return nil
	})

	conn.SetCloseHandler(func(code int, text string) error {
		s.deliver(CloseFrame(code, text))
		return nil
	})

	return s
}

func (s *Session) Key() string {
	return s.key
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) IsOpen() bool {
	return s.State() == StateOpen
}

func (s *Session) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Session) OnMessage(handler func(Socket, Frame)) {
	s.onMessage = handler
}

func (s *Session) OnError(handler func(Socket, error)) {
	s.onError = handler
}

func (s *Session) OnClose(handler func(Socket)) {
	s.onClose = handler
}

func (s *Session) Send(frame Frame) error {
	if !s.IsOpen() {
		return ErrConnectionClosed
	}

	mt, err := frame.Opcode.messageType()
	if err != nil {
		return err
	}

	var deadline time.Time
	if s.cfg.WriteTimeout > 0 {
		deadline = time.Now().Add(s.cfg.WriteTimeout)
	}

	// WriteControl можно вызывать параллельно с другими методами соединения.
	if frame.Opcode.IsControl() {
		if err := s.conn.WriteControl(mt, frame.Payload, deadline); err != nil {
			return fmt.Errorf("write %s: %w", frame.Opcode, err)
		}

		s.touch()
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if err := s.conn.WriteMessage(mt, frame.Payload); err != nil {
		return fmt.Errorf("write %s: %w", frame.Opcode, err)
	}

	s.touch()
	return nil
}

// Close идемпотентен: отправляет close-кадр (если получится) и закрывает соединение.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))

		s.closeErr = s.conn.Close()
		s.state.Store(int32(StateClosed))
	})

	return s.closeErr
}

func (s *Session) register(registry *Registry) error {
	if !s.phase.CompareAndSwap(int32(PhaseNegotiated), int32(PhaseRegistered)) {
		return fmt.Errorf("session %s: already registered", s.key)
	}

	if err := registry.Insert(s); err != nil {
		s.phase.Store(int32(PhaseNegotiated))
		return err
	}

	return nil
}

// serve читает кадры до конца соединения. Кадры одной сессии доставляются по порядку.
// По выходу всегда срабатывает уведомление о закрытии.
func (s *Session) serve() {
	defer s.finish()

	for {
		s.touch()

		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			s.readFailed(err)
			return
		}

		op, err := opcodeFromMessageType(mt)
		if err != nil {
			s.logger.Warn("dropping frame", "error", err)
			continue
		}

		s.deliver(Frame{Opcode: op, Payload: data})
	}
}

func (s *Session) readFailed(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if websocket.IsUnexpectedCloseError(
			err,
			websocket.CloseGoingAway,
			websocket.CloseNormalClosure,
			websocket.CloseNoStatusReceived,
		) {
			s.notifyError(err)
		}

		return
	}

	// Ошибки чтения после собственного Close ожидаемы.
	if s.IsOpen() {
		s.notifyError(err)
	}
}

func (s *Session) notifyError(err error) {
	if s.onError != nil {
		s.onError(s, fmt.Errorf("%w: %w", ErrTransport, err))
	}
}

func (s *Session) finish() {
	_ = s.Close()

	if s.onClose != nil {
		s.onClose(s)
	}
}

func (s *Session) deliver(frame Frame) {
	if s.onMessage != nil {
		s.onMessage(s, frame)
	}
}

// touch продлевает таймаут простоя. Вызывается при любом входящем кадре и после каждой
// успешной отправки; дедлайн net.Conn можно менять из разных горутин.
func (s *Session) touch() {
	if s.cfg.IdleTimeout <= 0 {
		return
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
		s.logger.Debug("failed to refresh read deadline", "error", err)
	}
}
