// Package limiter applies a process-wide bandwidth limit to relayed traffic.
package limiter

import (
	"net"

	"github.com/juju/ratelimit"
)

// Limiter is a token bucket shared by every session. A nil *Limiter does not
// limit anything.
type Limiter struct {
	bucket *ratelimit.Bucket
}

// New returns a limiter allowing bytesPerSec with a burst of one second's
// worth of traffic, or nil when bytesPerSec is not positive.
func New(bytesPerSec int64) *Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	return &Limiter{bucket: ratelimit.NewBucketWithRate(float64(bytesPerSec), bytesPerSec)}
}

// Rate returns the configured rate in bytes per second.
func (l *Limiter) Rate() int64 {
	if l == nil {
		return 0
	}
	return int64(l.bucket.Rate())
}

// Wait blocks until n bytes may pass.
func (l *Limiter) Wait(n int) {
	if l == nil || n <= 0 {
		return
	}
	l.bucket.Wait(int64(n))
}

// WrapConn returns c with reads and writes charged against the limiter.
func (l *Limiter) WrapConn(c net.Conn) net.Conn {
	if l == nil {
		return c
	}
	return &throttledConn{Conn: c, bucket: l.bucket}
}

type throttledConn struct {
	net.Conn
	bucket *ratelimit.Bucket
}

func (t *throttledConn) Read(p []byte) (int, error) {
	n, err := t.Conn.Read(p)
	if n > 0 {
		t.bucket.Wait(int64(n))
	}
	return n, err
}

func (t *throttledConn) Write(p []byte) (int, error) {
	t.bucket.Wait(int64(len(p)))
	return t.Conn.Write(p)
}
