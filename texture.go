package accel

import (
	"sync/atomic"

	"github.com/gobroadcast/accel/backend"
)

// BitDepth is the per-channel bit depth class of a texture.
type BitDepth = backend.BitDepth

// Bit depth classes.
const (
	Depth8  = backend.Depth8
	Depth16 = backend.Depth16
)

// textureShape identifies a device pool bucket. Textures of equal shape are
// interchangeable.
type textureShape struct {
	width  int
	height int
	stride int
	depth  BitDepth
}

// size returns the texture byte size.
func (s textureShape) size() int {
	return s.width * s.height * s.stride * s.depth.Bytes()
}

// hashTextureShape selects the pool shard. Collisions are harmless; bucket
// identity is the full shape key.
func hashTextureShape(s textureShape) uint64 {
	return uint64(s.width)<<36 ^ uint64(s.height)<<20 ^
		uint64(s.stride)<<8 ^ uint64(s.depth)
}

// Texture is a device-resident image drawn from its device's texture pool.
//
// Release returns the texture to the pool for reuse by a later request of
// the same shape. After Release the texture must not be used; a released
// texture's pixels are observable by its next pooled user unless that user
// requests a cleared texture.
type Texture struct {
	dev      *Device
	img      backend.Image
	shape    textureShape
	released atomic.Bool
}

// Width returns the texture width in pixels.
func (t *Texture) Width() int { return t.shape.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() int { return t.shape.height }

// Stride returns the channel count per pixel (1-4).
func (t *Texture) Stride() int { return t.shape.stride }

// Depth returns the per-channel bit depth class.
func (t *Texture) Depth() BitDepth { return t.shape.depth }

// Size returns the texture byte size (width * height * stride * bytes per
// channel).
func (t *Texture) Size() int { return t.shape.size() }

// Release returns the texture to its device pool. Only the first call has
// any effect; the texture must not be used afterwards.
func (t *Texture) Release() {
	if t.released.Swap(true) {
		return
	}
	t.dev.releaseImage(t.shape, t.img)
	t.img = nil
}
