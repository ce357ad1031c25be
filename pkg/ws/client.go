package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type ClientConfig struct {
	URL                  string
	WriteTimeout         time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	// Backlog - ёмкость канала входящих сообщений.
	Backlog int
	Logger  *slog.Logger
}

func DefaultClientConfig(wsURL string) ClientConfig {
	return ClientConfig{
		URL:                  wsURL,
		WriteTimeout:         10 * time.Second,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 0,
		Backlog:              64,
		Logger:               slog.Default(),
	}
}

// noProxyDialer - WebSocket диалер без использования HTTP_PROXY
var noProxyDialer = websocket.Dialer{
	Proxy:            nil,
	HandshakeTimeout: 45 * time.Second,
}

// Client - участник комнаты: отправляет текст/бинарные сообщения и получает чужие.
// На пинги сервера отвечает стандартный обработчик gorilla.
type Client struct {
	cfg      ClientConfig
	conn     *websocket.Conn
	connMu   sync.RWMutex
	writeMu  sync.Mutex
	// messages и done принадлежат текущему соединению; readLoop закрывает оба при выходе.
	messages chan Frame
	done     chan struct{}
	used     bool
	closed   bool
	closedMu sync.RWMutex
	logger   *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Backlog <= 0 {
		cfg.Backlog = 64
	}

	return &Client{
		cfg:      cfg,
		messages: make(chan Frame, cfg.Backlog),
		done:     make(chan struct{}),
		logger:   cfg.Logger,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	c.logger.Info("connecting to server", slog.String("url", u.String()))

	conn, _, err := noProxyDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info("connected to server", "url", u.String())

	c.closedMu.Lock()
	if c.used {
		c.done = make(chan struct{})
		c.messages = make(chan Frame, c.cfg.Backlog)
	}
	c.used = true
	c.closed = false
	done, messages := c.done, c.messages
	c.closedMu.Unlock()

	go c.readLoop(conn, done, messages)

	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}, messages chan Frame) {
	defer func() {
		// Состояние меняется, только если после нас не было нового Connect.
		c.closedMu.Lock()
		if c.done == done {
			c.closed = true
		}
		c.closedMu.Unlock()

		close(messages)
		close(done)
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				c.logger.Error("read error", "error", err)
			}

			return
		}

		op, err := opcodeFromMessageType(mt)
		if err != nil {
			c.logger.Warn("dropping frame", "error", err)
			continue
		}

		select {
		case messages <- Frame{Opcode: op, Payload: data}:
		default:
			c.logger.Warn("message backlog full, dropping message", "size", len(data))
		}
	}
}

// Messages возвращает канал сообщений текущего соединения (включая приветствие).
// Канал закрывается, когда соединение завершается; после Reconnect нужно взять новый.
func (c *Client) Messages() <-chan Frame {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.messages
}

func (c *Client) Send(text string) error {
	return c.write(TextFrame(text))
}

func (c *Client) SendBinary(data []byte) error {
	return c.write(BinaryFrame(data))
}

func (c *Client) write(frame Frame) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	mt, err := frame.Opcode.messageType()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return ErrConnectionClosed
	}

	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}

	if err := conn.WriteMessage(mt, frame.Payload); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// Close можно вызывать и после того, как сервер закрыл соединение: сокет всё равно освобождается.
func (c *Client) Close() error {
	c.closedMu.Lock()
	wasClosed := c.closed
	c.closed = true
	c.closedMu.Unlock()

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}

	if !wasClosed {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	}

	return conn.Close()
}

func (c *Client) Done() <-chan struct{} {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.done
}

func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// Reconnect закрывает текущее соединение (если оно есть) и подключается заново.
func (c *Client) Reconnect(ctx context.Context) error {
	if err := c.Close(); err != nil {
		c.logger.Debug("close before reconnect failed", "error", err)
	}

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.Connect(ctx)
		if err == nil {
			return nil
		}

		attempts++
		if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
			return ErrMaxReconnectAttempts
		}

		c.logger.Warn("reconnect failed, retrying", "attempt", attempts, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}
