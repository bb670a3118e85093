package proxy

import (
	"sync"
)

const (
	relayBufferSize = 32 * 1024

	// Largest UDP payload plus room for the biggest envelope header.
	datagramBufferSize = 65535 + 3 + 262
)

var (
	relayBuffers    = newBufferPool(relayBufferSize)
	datagramBuffers = newBufferPool(datagramBufferSize)
)

// bufferPool hands out fixed-size byte slices. Buffers come back at full
// length whatever the caller resliced them to.
type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	bp := &bufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}

	return bp
}

func (p *bufferPool) Get() []byte {
	b := p.pool.Get().(*[]byte)
	return *b
}

func (p *bufferPool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
