package limiter

import (
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestNilLimiter(t *testing.T) {
	t.Parallel()

	var l *Limiter
	if New(0) != nil || New(-1) != nil {
		t.Fatal("expected nil limiter for non-positive rate")
	}

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	if l.WrapConn(a) != a {
		t.Fatal("nil limiter should not wrap")
	}
	l.Wait(1 << 20)
	if l.Rate() != 0 {
		t.Fatal("nil limiter rate should be zero")
	}
}

func TestWaitThrottles(t *testing.T) {
	t.Parallel()

	l := New(10_000)
	if l.Rate() != 10_000 {
		t.Fatalf("rate = %d", l.Rate())
	}

	start := time.Now()
	l.Wait(10_000) // drains the burst
	l.Wait(5_000)
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("wait returned after %s, expected throttling", elapsed)
	}
}

func TestWrapConnThrottles(t *testing.T) {
	t.Parallel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	l := New(4_000)
	wa := l.WrapConn(a)

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.CopyN(io.Discard, b, 6_000)
		return err
	})

	start := time.Now()
	if _, err := wa.Write(make([]byte, 4_000)); err != nil {
		t.Fatal(err)
	}
	if _, err := wa.Write(make([]byte, 2_000)); err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("writes finished after %s, expected throttling", elapsed)
	}
}
