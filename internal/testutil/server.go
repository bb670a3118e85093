package testutil

import (
	"context"
	"net"
	"sync"
	"testing"
)

// StartTCPServer runs handler on its own goroutine for every connection
// accepted on a loopback listener. The returned stop func closes the
// listener and every open connection, then waits for the handlers; it is
// also registered as a test cleanup.
func StartTCPServer(t *testing.T, ctx context.Context, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	var (
		mu     sync.Mutex
		conns  = make(map[net.Conn]struct{})
		closed bool
		wg     sync.WaitGroup
	)

	wg.Go(func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}

			mu.Lock()
			if closed {
				mu.Unlock()
				_ = c.Close()
				return
			}
			conns[c] = struct{}{}
			mu.Unlock()

			wg.Go(func() {
				defer func() {
					mu.Lock()
					delete(conns, c)
					mu.Unlock()
					_ = c.Close()
				}()
				handler(c)
			})
		}
	})

	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = ln.Close()

			mu.Lock()
			closed = true
			for c := range conns {
				_ = c.Close()
			}
			mu.Unlock()

			wg.Wait()
		})
	}
	t.Cleanup(stop)

	return ln, stop
}
