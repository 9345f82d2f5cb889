// Package v210 converts 16-bit RGBA frames to the 10-bit 4:2:2 packed
// pixel format used by broadcast playout hardware.
//
// Source pixels are 8 bytes each: four little-endian 16-bit channels in
// R, G, B, A order. Output rows pack BT.709 YCbCr samples three to a
// 32-bit little-endian word, ten bits per sample, with rows padded to a
// 128-byte multiple. Conversion is bit-exact between the grouped fast
// path and the scalar remainder path, so frame content never depends on
// frame width or worker count.
package v210

import (
	"errors"
	"fmt"
)

// Conversion errors.
var (
	// ErrUnsupportedConversion is returned for conversions the converter
	// does not implement: sub-region placement, key-only output, or
	// mismatched source and output geometry.
	ErrUnsupportedConversion = errors.New("v210: unsupported conversion")

	// ErrShortFrame is returned when a source frame holds fewer bytes
	// than its descriptor requires.
	ErrShortFrame = errors.New("v210: frame data shorter than descriptor")
)

// PixelFormat tags a raster's pixel encoding. The converter's supported
// path requires the channel and target descriptors to carry equal tags.
type PixelFormat uint8

const (
	// RGBA16 is the channel-native frame encoding: four 16-bit
	// little-endian channels per pixel.
	RGBA16 PixelFormat = iota
	// RGBA8 is the 8-bit-per-channel encoding of non-HDR pipelines.
	RGBA8
)

// Descriptor describes raster geometry and encoding.
type Descriptor struct {
	Width  int
	Height int

	// FieldCount is 1 for progressive, 2 for interlaced.
	FieldCount int

	Format PixelFormat
}

// FieldDominance selects how source frames map onto output fields.
type FieldDominance uint8

const (
	// Progressive output: one source frame fills every row.
	Progressive FieldDominance = iota
	// UpperFieldFirst: the first source frame supplies the top field
	// (even rows), the second the bottom field.
	UpperFieldFirst
	// LowerFieldFirst: the first source frame supplies the bottom field
	// (odd rows), the second the top field.
	LowerFieldFirst
)

// PortConfig describes the placement of a source onto an output port.
// The zero value is the identity placement: the full frame, at the
// origin, fill output.
type PortConfig struct {
	SrcX, SrcY   int
	RegionWidth  int
	RegionHeight int
	DestX, DestY int

	// KeyOnly outputs the key (alpha) signal instead of fill.
	KeyOnly bool
}

// IsIdentity reports whether the config maps the full source frame
// unmodified onto the output. A zero region means "whole frame".
func (c PortConfig) IsIdentity(d Descriptor) bool {
	if c.SrcX != 0 || c.SrcY != 0 || c.DestX != 0 || c.DestY != 0 || c.KeyOnly {
		return false
	}
	fullRegion := (c.RegionWidth == 0 && c.RegionHeight == 0) ||
		(c.RegionWidth == d.Width && c.RegionHeight == d.Height)
	return fullRegion
}

// Frame is one source frame of 16-bit RGBA pixel data.
type Frame struct {
	Data []byte
}

// Empty reports whether the frame carries no pixel data. Empty frames
// convert to black without touching the output.
func (f Frame) Empty() bool { return len(f.Data) == 0 }

// bytesPerPixel is the source pixel size: four 16-bit channels.
const bytesPerPixel = 8

// RowBytes returns the output row pitch: 48-pixel groups of 128 bytes,
// rounded up.
func RowBytes(width int) int {
	return (width + 47) / 48 * 128
}

// AllocFrame allocates a zeroed output buffer for the descriptor's
// geometry.
func AllocFrame(d Descriptor) []byte {
	return make([]byte, RowBytes(d.Width)*d.Height)
}

// checkFrame validates a source frame against the descriptor.
func checkFrame(f Frame, d Descriptor) error {
	need := d.Width * d.Height * bytesPerPixel
	if len(f.Data) < need {
		return fmt.Errorf("%w: have %d, need %d", ErrShortFrame, len(f.Data), need)
	}
	return nil
}
