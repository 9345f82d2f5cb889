package accel

import (
	"sync/atomic"

	"github.com/gobroadcast/accel/backend"
)

// bufferShape identifies a host pool bucket: byte size plus transfer
// direction. Upload and download buffers are pooled separately because the
// backend may place them in differently-flagged memory.
type bufferShape struct {
	size  int
	write bool
}

// hashBufferShape selects the pool shard.
func hashBufferShape(s bufferShape) uint64 {
	h := uint64(s.size) << 1
	if s.write {
		h |= 1
	}
	return h
}

// Buffer is a host-visible transfer buffer drawn from its device's host
// pool. Bytes returns the mapped memory directly; there is no intermediate
// copy between callers and the transfer engine.
type Buffer struct {
	dev      *Device
	raw      backend.HostBuffer
	shape    bufferShape
	released atomic.Bool
}

// Bytes returns the buffer's mapped memory. The slice is valid until
// Release.
func (b *Buffer) Bytes() []byte { return b.raw.Bytes() }

// Size returns the buffer byte size.
func (b *Buffer) Size() int { return b.shape.size }

// Writable reports whether this is an upload buffer.
func (b *Buffer) Writable() bool { return b.shape.write }

// Release returns the buffer to its device pool. Only the first call has
// any effect; Bytes slices obtained earlier must not be used afterwards.
func (b *Buffer) Release() {
	if b.released.Swap(true) {
		return
	}
	b.dev.releaseBuffer(b.shape, b.raw)
	b.raw = nil
}
