package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestCopyBidirectional(t *testing.T) {
	clientSide, left := net.Pipe()
	right, serverSide := net.Pipe()

	type result struct {
		up, down int64
		err      error
	}
	done := make(chan result, 1)
	go func() {
		up, down, err := CopyBidirectional(context.Background(), left, right)
		done <- result{up, down, err}
	}()

	var g errgroup.Group
	g.Go(func() error {
		buf := make([]byte, 5)
		if _, err := io.ReadFull(serverSide, buf); err != nil {
			return err
		}
		_, err := serverSide.Write([]byte("pong!!"))
		return err
	})

	if _, err := clientSide.Write([]byte("ping!")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 6)
	if _, err := io.ReadFull(clientSide, buf); err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	// Closing one end tears down the whole relay.
	_ = clientSide.Close()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("unexpected error: %v", r.err)
		}
		if r.up != 5 || r.down != 6 {
			t.Fatalf("counts = %d/%d, want 5/6", r.up, r.down)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not finish after one side closed")
	}

	if _, err := serverSide.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("other side saw %v, want EOF", err)
	}
}

func TestCopyBidirectionalCanceled(t *testing.T) {
	_, left := net.Pipe()
	right, _ := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := CopyBidirectional(ctx, left, right)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay ignored cancellation")
	}
}

func TestIdlePairSharedClock(t *testing.T) {
	a1, a2 := net.Pipe()
	b1, b2 := net.Pipe()
	defer a1.Close()
	defer b1.Close()

	quiet, busy := newIdlePair(a2, b2, 150*time.Millisecond)

	// Keep traffic flowing through the busy side for longer than the
	// timeout; the quiet side must not time out meanwhile.
	quietErr := make(chan error, 1)
	go func() {
		_, err := quiet.Read(make([]byte, 1))
		quietErr <- err
	}()

	go func() { _, _ = io.Copy(io.Discard, b1) }()
	for range 6 {
		if _, err := busy.Write([]byte("x")); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	select {
	case err := <-quietErr:
		t.Fatalf("quiet side ended early: %v", err)
	default:
	}

	select {
	case err := <-quietErr:
		if !isTimeout(err) {
			t.Fatalf("expected timeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("quiet side never timed out")
	}
}

func TestBufferPoolRestoresLength(t *testing.T) {
	p := newBufferPool(64)

	b := p.Get()
	if len(b) != 64 {
		t.Fatalf("len = %d", len(b))
	}
	p.Put(b[:3])

	if b := p.Get(); len(b) != 64 {
		t.Fatalf("len after put = %d", len(b))
	}

	// Foreign, undersized buffers are not pooled.
	p.Put(make([]byte, 8))
	if b := p.Get(); len(b) != 64 {
		t.Fatalf("len = %d", len(b))
	}
}
