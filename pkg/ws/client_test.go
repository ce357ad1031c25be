package ws_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LLIEPJIOK/service-mesh/relay/pkg/ws"
)

func newTestClient(t *testing.T, wsURL string) *ws.Client {
	t.Helper()

	cfg := ws.DefaultClientConfig(wsURL)
	cfg.Logger = discardLogger
	client := ws.NewClient(cfg)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

func receive(t *testing.T, client *ws.Client) ws.Frame {
	t.Helper()

	select {
	case frame := <-client.Messages():
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return ws.Frame{}
	}
}

func TestClient_SendAndReceive(t *testing.T) {
	server, _, wsURL := setupTestServer(t, testServerConfig())

	alice := newTestClient(t, wsURL)
	if got := string(receive(t, alice).Payload); got != ws.DefaultWelcome {
		t.Fatalf("expected welcome, got %q", got)
	}
	waitFor(t, func() bool { return server.Registry().Len() == 1 })

	bob := newTestClient(t, wsURL)
	receive(t, bob)
	waitFor(t, func() bool { return server.Registry().Len() == 2 })

	if err := alice.Send("hello bob"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	frame := receive(t, bob)
	if frame.Opcode != ws.OpText || string(frame.Payload) != "hello bob" {
		t.Errorf("unexpected frame: %+v", frame)
	}

	if err := bob.SendBinary([]byte{7, 8}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	frame = receive(t, alice)
	if frame.Opcode != ws.OpBinary || len(frame.Payload) != 2 {
		t.Errorf("unexpected frame: %+v", frame)
	}
}

func TestClient_Close(t *testing.T) {
	server, _, wsURL := setupTestServer(t, testServerConfig())

	client := newTestClient(t, wsURL)
	receive(t, client)
	waitFor(t, func() bool { return server.Registry().Len() == 1 })

	if err := client.Close(); err != nil {
		t.Errorf("close error: %v", err)
	}

	if !client.IsClosed() {
		t.Error("expected client to be closed")
	}

	if err := client.Send("late"); !errors.Is(err, ws.ErrConnectionClosed) {
		t.Errorf("expected connection closed error, got: %v", err)
	}

	waitFor(t, func() bool { return server.Registry().Len() == 0 })
}

func TestClient_DoneWhenServerCloses(t *testing.T) {
	cfg := testServerConfig()
	cfg.IdleTimeout = 50 * time.Millisecond

	server, _, wsURL := setupTestServer(t, cfg)

	// Клиент молчит, keepalive не запущен: сервер закрывает сессию по таймауту простоя.
	client := newTestClient(t, wsURL)
	receive(t, client)

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not notified about closed connection")
	}

	waitFor(t, func() bool { return server.Registry().Len() == 0 })
}

func TestClient_ReconnectMaxAttempts(t *testing.T) {
	cfg := ws.DefaultClientConfig("ws://127.0.0.1:1/socket")
	cfg.Logger = discardLogger
	cfg.ReconnectInterval = time.Millisecond
	cfg.MaxReconnectAttempts = 2

	client := ws.NewClient(cfg)

	err := client.Reconnect(context.Background())
	if !errors.Is(err, ws.ErrMaxReconnectAttempts) {
		t.Errorf("expected ErrMaxReconnectAttempts, got: %v", err)
	}
}

func TestClient_MessagesClosedWithConnection(t *testing.T) {
	cfg := testServerConfig()
	cfg.IdleTimeout = 50 * time.Millisecond

	_, _, wsURL := setupTestServer(t, cfg)

	client := newTestClient(t, wsURL)

	drained := make(chan int, 1)
	go func() {
		n := 0
		for range client.Messages() {
			n++
		}
		drained <- n
	}()

	select {
	case n := <-drained:
		if n != 1 {
			t.Errorf("expected only the welcome message, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("messages channel not closed after connection ended")
	}
}

func TestClient_ReconnectWhileConnected(t *testing.T) {
	server, _, wsURL := setupTestServer(t, testServerConfig())

	client := newTestClient(t, wsURL)
	receive(t, client)
	waitFor(t, func() bool { return server.Registry().Len() == 1 })

	oldDone := client.Done()

	if err := client.Reconnect(context.Background()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}

	select {
	case <-oldDone:
	case <-time.After(2 * time.Second):
		t.Fatal("previous connection was not released")
	}

	// Завершение старого readLoop не должно помечать новое соединение закрытым.
	if client.IsClosed() {
		t.Fatal("client reported closed after reconnect")
	}

	if got := string(receive(t, client).Payload); got != ws.DefaultWelcome {
		t.Errorf("expected welcome on new connection, got %q", got)
	}

	if err := client.Send("still here"); err != nil {
		t.Errorf("send after reconnect failed: %v", err)
	}

	waitFor(t, func() bool { return server.Registry().Len() == 1 })
}
