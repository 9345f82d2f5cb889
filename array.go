package accel

// Array is a byte view passed across the transfer boundaries.
//
// Arrays produced by Device.CreateArray or Device.CopyFromTexture are backed
// by a pooled host buffer; Release returns that buffer to the pool. Arrays
// over caller-owned memory (WrapBytes) carry no buffer and Release is a
// no-op, so transfer code can release uniformly without caring where the
// bytes came from.
//
// An Array backed by a pooled upload buffer is recognized by CopyToTexture
// on the same device and used as the staging buffer directly, skipping the
// host-to-host copy.
type Array struct {
	data  []byte
	owner *Buffer
}

// WrapBytes wraps caller-owned memory in an Array. The caller keeps
// ownership of p; Release does nothing.
func WrapBytes(p []byte) Array {
	return Array{data: p}
}

// Bytes returns the underlying bytes. The slice is valid until Release.
func (a Array) Bytes() []byte { return a.data }

// Len returns the byte length.
func (a Array) Len() int { return len(a.data) }

// Release returns the backing pooled buffer, if any, to its device pool.
// Only the first release of the backing buffer has any effect.
func (a Array) Release() {
	if a.owner != nil {
		a.owner.Release()
	}
}
