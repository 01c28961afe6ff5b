package websocket

import (
	"context"
	"fmt"
	"sync"
)

// Pool runs many independent WebSocket connections concurrently, each
// still driven synchronously by its own goroutine (a Conn itself remains
// single-owner/single-threaded; Pool's job is only to manage the
// collection and fan work out across them). Connections are cached by
// key, dialed lazily, and torn down gracefully; Pool never re-dials a
// connection that has gone away.
type Pool struct {
	cfg   Config
	conns sync.Map // key (string) -> *Conn
}

// NewPool returns an empty Pool that dials new connections with cfg.
func NewPool(cfg Config) *Pool {
	return &Pool{cfg: cfg}
}

// Dial establishes (or returns the already-cached) connection for key,
// dialing wsURL with a plain TCP transport if it doesn't exist yet.
func (p *Pool) Dial(ctx context.Context, key, wsURL string) (*Conn, error) {
	if v, ok := p.conns.Load(key); ok {
		return v.(*Conn), nil
	}

	conn, err := ConnectPlain(ctx, wsURL, p.cfg, nil)
	if err != nil {
		return nil, err
	}

	actual, loaded := p.conns.LoadOrStore(key, conn)
	if loaded {
		_ = conn.transport.Close()
		return actual.(*Conn), nil
	}
	return conn, nil
}

// Get returns the connection previously established for key, if any.
func (p *Pool) Get(key string) (*Conn, bool) {
	v, ok := p.conns.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Conn), true
}

// Close sends a normal-closure Close frame on (and removes) the
// connection for key, if one exists.
func (p *Pool) Close(key string) error {
	v, ok := p.conns.LoadAndDelete(key)
	if !ok {
		return nil
	}
	conn := v.(*Conn)
	err := conn.Close(CloseNormalClosure, "")
	_ = conn.transport.Close()
	return err
}

// CloseAll tears down every connection currently in the pool.
func (p *Pool) CloseAll() {
	p.conns.Range(func(key, v any) bool {
		conn := v.(*Conn)
		_ = conn.Close(CloseNormalClosure, "")
		_ = conn.transport.Close()
		p.conns.Delete(key)
		return true
	})
}

// RunAll dials every URL in targets concurrently and runs fn against
// each resulting connection in its own goroutine, blocking until all
// have returned. It reports every error keyed by the same key, in the
// same map shape the caller passed in, letting an Autobahn-style driver
// run dozens of numbered test cases in parallel without each one's
// blocking NextMsg loop stalling the others.
func (p *Pool) RunAll(ctx context.Context, targets map[string]string, fn func(ctx context.Context, key string, conn *Conn) error) map[string]error {
	results := make(map[string]error, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for key, wsURL := range targets {
		wg.Add(1)
		go func(key, wsURL string) {
			defer wg.Done()

			conn, err := p.Dial(ctx, key, wsURL)
			if err != nil {
				mu.Lock()
				results[key] = fmt.Errorf("dial: %w", err)
				mu.Unlock()
				return
			}

			if err := fn(ctx, key, conn); err != nil {
				mu.Lock()
				results[key] = err
				mu.Unlock()
			}
		}(key, wsURL)
	}

	wg.Wait()
	return results
}
