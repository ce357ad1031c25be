package ws_test

import (
	"context"
	"testing"
	"time"

	"github.com/LLIEPJIOK/service-mesh/relay/pkg/ws"
)

func TestKeepalive_Sweep(t *testing.T) {
	reg := ws.NewRegistry(nil)
	a, b, dead := newFakeSocket("a"), newFakeSocket("b"), newFakeSocket("dead")

	for _, s := range []*fakeSocket{a, b, dead} {
		if err := reg.Insert(s); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	dead.setOpen(false)

	k := ws.NewKeepalive(reg, time.Hour, discardLogger, nil)
	k.Sweep()

	for _, s := range []*fakeSocket{a, b} {
		sent := s.Sent()
		if len(sent) != 1 || sent[0].Opcode != ws.OpPing {
			t.Errorf("%s expected exactly one ping, got %+v", s.Key(), sent)
		}

		if s.Closes() != 0 {
			t.Errorf("%s must not be closed", s.Key())
		}
	}

	if dead.Closes() != 1 {
		t.Errorf("expected dead session closed once, got %d", dead.Closes())
	}

	if len(dead.Sent()) != 0 {
		t.Error("dead session must not be pinged")
	}

	if reg.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", reg.Len())
	}

	k.Sweep()

	if dead.Closes() != 1 {
		t.Errorf("removed session closed again: %d", dead.Closes())
	}

	if n := len(a.Sent()); n != 2 {
		t.Errorf("expected 2 pings after second sweep, got %d", n)
	}
}

func TestKeepalive_EmptyRegistry(t *testing.T) {
	k := ws.NewKeepalive(ws.NewRegistry(nil), time.Hour, discardLogger, nil)
	k.Sweep()
}

func TestKeepalive_RunUntilCancelled(t *testing.T) {
	reg := ws.NewRegistry(nil)
	k := ws.NewKeepalive(reg, 10*time.Millisecond, discardLogger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		k.Run(ctx)
	}()

	// Пустые проходы не останавливают цикл: сессия, добавленная позже, тоже получает пинги.
	time.Sleep(30 * time.Millisecond)

	s := newFakeSocket("late")
	if err := reg.Insert(s); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(s.Sent()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated pings, got %d", len(s.Sent()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepalive did not stop after cancellation")
	}
}
