package ws_test

import (
	"bytes"
	"log/slog"
	"sync"

	"github.com/LLIEPJIOK/service-mesh/relay/pkg/ws"
)

var discardLogger = slog.New(slog.DiscardHandler)

// fakeSocket записывает отправленные кадры и вызовы Close.
type fakeSocket struct {
	key     string
	mu      sync.Mutex
	open    bool
	sent    []ws.Frame
	closes  int
	sendErr error
}

func newFakeSocket(key string) *fakeSocket {
	return &fakeSocket{key: key, open: true}
}

func (f *fakeSocket) Key() string {
	return f.key
}

func (f *fakeSocket) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSocket) Send(frame ws.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}

	f.sent = append(f.sent, frame)

	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closes++
	f.open = false

	return nil
}

func (f *fakeSocket) Sent() []ws.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ws.Frame(nil), f.sent...)
}

func (f *fakeSocket) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeSocket) setOpen(open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = open
}

// syncBuffer - потокобезопасный приёмник логов для проверок в тестах.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
