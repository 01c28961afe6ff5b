package websocket

import (
	"context"
	"testing"
)

func TestPoolGetMissing(t *testing.T) {
	p := NewPool(DefaultConfig())
	if _, ok := p.Get("missing"); ok {
		t.Error("Get() on an empty pool = true, want false")
	}
}

func TestPoolCloseAndCloseAll(t *testing.T) {
	p := NewPool(DefaultConfig())

	conn1, pt1 := newTestConn(nil)
	conn2, pt2 := newTestConn(nil)
	p.conns.Store("a", conn1)
	p.conns.Store("b", conn2)

	if err := p.Close("a"); err != nil {
		t.Fatalf("Close(%q) error = %v", "a", err)
	}
	if !pt1.closed {
		t.Error("Close() did not close the underlying transport")
	}
	if _, ok := p.Get("a"); ok {
		t.Error("Get() after Close() = true, want false")
	}
	if _, ok := p.Get("b"); !ok {
		t.Error("Get() for an untouched key = false, want true")
	}

	p.CloseAll()
	if !pt2.closed {
		t.Error("CloseAll() did not close the remaining transport")
	}
	if _, ok := p.Get("b"); ok {
		t.Error("Get() after CloseAll() = true, want false")
	}
}

func TestPoolRunAllDialError(t *testing.T) {
	p := NewPool(DefaultConfig())

	targets := map[string]string{
		"bad-scheme": "http://example.invalid",
	}

	results := p.RunAll(context.Background(), targets, func(_ context.Context, _ string, _ *Conn) error {
		t.Error("fn should not run for a connection that failed to dial")
		return nil
	})

	if err := results["bad-scheme"]; err == nil {
		t.Error("RunAll() result = nil, want a dial error for an unsupported scheme")
	}
}
