package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// CopyBidirectional copies between left and right until either direction
// ends, then closes both. The other direction is not drained. It returns the
// byte counts in each direction and the first error that was not caused by
// the teardown itself.
func CopyBidirectional(ctx context.Context, left, right net.Conn) (leftToRight, rightToLeft int64, err error) {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	// If the context is canceled, close both sides to unblock the copies.
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var closing atomic.Bool
	copyHalf := func(dst, src net.Conn, n *int64) func() error {
		return func() error {
			buf := relayBuffers.Get()
			defer relayBuffers.Put(buf)

			var err error
			*n, err = io.CopyBuffer(dst, src, buf)
			if closing.Swap(true) {
				// The other half finished first and tore the relay down.
				err = nil
			}
			closeBoth()
			return err
		}
	}

	var g errgroup.Group
	g.Go(copyHalf(right, left, &leftToRight))
	g.Go(copyHalf(left, right, &rightToLeft))

	err = g.Wait()
	if ctx.Err() != nil {
		// Torn down by cancellation.
		err = nil
	}
	return leftToRight, rightToLeft, err
}

// idleConn tears a relay down once neither direction has moved data for
// timeout. Both sides of a relay share one activity clock, so a busy
// direction keeps a quiet one alive.
type idleConn struct {
	net.Conn
	timeout time.Duration
	last    *atomic.Int64
}

func newIdlePair(a, b net.Conn, timeout time.Duration) (net.Conn, net.Conn) {
	if timeout <= 0 {
		return a, b
	}
	last := new(atomic.Int64)
	last.Store(time.Now().UnixNano())
	return &idleConn{Conn: a, timeout: timeout, last: last}, &idleConn{Conn: b, timeout: timeout, last: last}
}

func (c *idleConn) touch() {
	c.last.Store(time.Now().UnixNano())
}

func (c *idleConn) Read(p []byte) (int, error) {
	for {
		seen := c.last.Load()
		_ = c.Conn.SetReadDeadline(time.Unix(0, seen).Add(c.timeout))

		n, err := c.Conn.Read(p)
		if n > 0 {
			c.touch()
		}
		if err != nil && n == 0 && isTimeout(err) && c.last.Load() != seen {
			// The other direction was active; keep waiting.
			continue
		}
		return n, err
	}
}

func (c *idleConn) Write(p []byte) (int, error) {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(c.timeout))
	n, err := c.Conn.Write(p)
	if n > 0 {
		c.touch()
	}
	return n, err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
