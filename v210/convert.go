package v210

import (
	"encoding/binary"
	"fmt"

	"github.com/gobroadcast/accel/internal/parallel"
	"github.com/gobroadcast/accel/internal/wide"
)

// bands is the number of horizontal slices a field is split into across
// the worker pool. Rows left over by the division go to the last band, so
// every row is converted exactly once regardless of height.
const bands = 8

// Converter converts frames on a persistent worker pool.
type Converter struct {
	pool *parallel.Pool
}

// NewConverter creates a converter with the given number of workers.
// If workers <= 0, GOMAXPROCS is used.
func NewConverter(workers int) *Converter {
	return &Converter{pool: parallel.NewPool(workers)}
}

// Close stops the worker pool. Conversions after Close run inline on the
// calling goroutine.
func (c *Converter) Close() { c.pool.Close() }

// ConvertForPort converts source frames into one output frame for a port.
//
// Progressive dominance converts f1 onto every row; f2 is ignored.
// Interlaced dominance weaves f1 and f2 as the first and second fields,
// with UpperFieldFirst putting f1 on the even rows and LowerFieldFirst on
// the odd rows. An empty frame leaves its rows black.
//
// Sub-region placement, key-only output, geometry mismatches between
// channel and target, and a target field count disagreeing with the
// dominance return ErrUnsupportedConversion.
func (c *Converter) ConvertForPort(channel, target Descriptor, cfg PortConfig, f1, f2 Frame, dom FieldDominance) ([]byte, error) {
	if channel.Width != target.Width || channel.Height != target.Height {
		return nil, fmt.Errorf("%w: source %dx%d onto output %dx%d",
			ErrUnsupportedConversion, channel.Width, channel.Height, target.Width, target.Height)
	}
	if channel.Format != target.Format || channel.Format != RGBA16 {
		return nil, fmt.Errorf("%w: source encoding %d onto output encoding %d",
			ErrUnsupportedConversion, channel.Format, target.Format)
	}
	if !cfg.IsIdentity(channel) {
		return nil, fmt.Errorf("%w: sub-region or key-only placement", ErrUnsupportedConversion)
	}

	// The target field count is the row step of each pass, so it must
	// agree with the dominance; a mismatch would silently convert with
	// the wrong stepping.
	switch {
	case target.FieldCount < 1 || target.FieldCount > 2:
		return nil, fmt.Errorf("%w: field count %d", ErrUnsupportedConversion, target.FieldCount)
	case dom == Progressive && target.FieldCount != 1:
		return nil, fmt.Errorf("%w: progressive output onto a %d-field raster",
			ErrUnsupportedConversion, target.FieldCount)
	case dom != Progressive && target.FieldCount != 2:
		return nil, fmt.Errorf("%w: interlaced output onto a %d-field raster",
			ErrUnsupportedConversion, target.FieldCount)
	}

	out := AllocFrame(target)

	if dom == Progressive {
		if f1.Empty() {
			return out, nil
		}
		if err := checkFrame(f1, channel); err != nil {
			return nil, err
		}
		c.convertField(out, f1.Data, channel, 0, target.FieldCount)
		return out, nil
	}

	first, second := 0, 1
	if dom == LowerFieldFirst {
		first, second = 1, 0
	}
	if !f1.Empty() {
		if err := checkFrame(f1, channel); err != nil {
			return nil, err
		}
		c.convertField(out, f1.Data, channel, first, target.FieldCount)
	}
	if !f2.Empty() {
		if err := checkFrame(f2, channel); err != nil {
			return nil, err
		}
		c.convertField(out, f2.Data, channel, second, target.FieldCount)
	}
	return out, nil
}

// convertField converts the rows of src with parity firstLine, stepping by
// fieldCount, into dst. Bands run concurrently on the pool; rows within a
// band are disjoint from every other band, so no synchronization is needed
// beyond completion.
func (c *Converter) convertField(dst, src []byte, d Descriptor, firstLine, fieldCount int) {
	rowBytes := RowBytes(d.Width)
	rowsPerBand := d.Height / bands

	work := make([]func(), 0, bands)
	for b := 0; b < bands; b++ {
		start := b * rowsPerBand
		end := start + rowsPerBand
		if b == bands-1 {
			end = d.Height
		}
		work = append(work, func() {
			row := start
			if fieldCount == 2 && row%2 != firstLine {
				row++
			}
			for ; row < end; row += fieldCount {
				convertRow(dst[row*rowBytes:(row+1)*rowBytes],
					src[row*d.Width*bytesPerPixel:], d.Width)
			}
		})
	}
	c.pool.ExecuteAll(work)
}

// convertRow converts one row: full 48-pixel groups through the lane path,
// the remainder through the scalar path. Both paths evaluate the same
// fixed-point formula, so a row's bytes do not depend on which path
// produced them.
func convertRow(dst, src []byte, width int) {
	groups := width / 48
	for g := 0; g < groups; g++ {
		packGroup(dst[g*128:], src[g*48*bytesPerPixel:])
	}
	if rem := width % 48; rem > 0 {
		packScalar(dst[groups*128:], src[groups*48*bytesPerPixel:], rem)
	}
}

// packGroup converts one 48-pixel group into 128 output bytes, computing
// the matrix products eight pixels at a time.
func packGroup(dst, src []byte) {
	var y, cb, cr [48]int32

	for j := 0; j < 48; j += 8 {
		var r, g, b wide.I32x8
		for k := range r {
			p := (j + k) * bytesPerPixel
			r[k] = int32(binary.LittleEndian.Uint16(src[p:]) >> 6)
			g[k] = int32(binary.LittleEndian.Uint16(src[p+2:]) >> 6)
			b[k] = int32(binary.LittleEndian.Uint16(src[p+4:]) >> 6)
		}

		lum := r.MulScalar(coeff[0]).Add(g.MulScalar(coeff[1])).Add(b.MulScalar(coeff[2])).
			AddScalar(lumaOffset).Shr20().And1023()
		cbv := r.MulScalar(coeff[3]).Add(g.MulScalar(coeff[4])).Add(b.MulScalar(coeff[5])).
			AddScalar(chromaOffset).Shr20().And1023()
		crv := r.MulScalar(coeff[6]).Add(g.MulScalar(coeff[7])).Add(b.MulScalar(coeff[8])).
			AddScalar(chromaOffset).Shr20().And1023()

		copy(y[j:], lum[:])
		copy(cb[j:], cbv[:])
		copy(cr[j:], crv[:])
	}

	// Per six pixels: Cr0 Y0 Cb0 / Y1 Cr2 Y2 / Cb2 Y3 Cr4 / Y4 Cb4 Y5,
	// three samples per little-endian word. Chroma is sited on the even
	// pixels.
	for cell := 0; cell < 8; cell++ {
		p := cell * 6
		o := cell * 16
		binary.LittleEndian.PutUint32(dst[o:],
			uint32(cr[p])|uint32(y[p])<<10|uint32(cb[p])<<20)
		binary.LittleEndian.PutUint32(dst[o+4:],
			uint32(y[p+1])|uint32(cr[p+2])<<10|uint32(y[p+2])<<20)
		binary.LittleEndian.PutUint32(dst[o+8:],
			uint32(cb[p+2])|uint32(y[p+3])<<10|uint32(cr[p+4])<<20)
		binary.LittleEndian.PutUint32(dst[o+12:],
			uint32(y[p+4])|uint32(cb[p+4])<<10|uint32(y[p+5])<<20)
	}
}

// packScalar converts n trailing pixels one at a time, or-ing each sample
// into the pre-zeroed row tail at its stream position.
func packScalar(dst, src []byte, n int) {
	put := func(sample int, v int32) {
		off := sample / 3 * 4
		shift := uint(sample % 3 * 10)
		w := binary.LittleEndian.Uint32(dst[off:])
		binary.LittleEndian.PutUint32(dst[off:], w|uint32(v)<<shift)
	}

	for i := 0; i < n; i++ {
		p := i * bytesPerPixel
		r := int32(binary.LittleEndian.Uint16(src[p:]) >> 6)
		g := int32(binary.LittleEndian.Uint16(src[p+2:]) >> 6)
		b := int32(binary.LittleEndian.Uint16(src[p+4:]) >> 6)

		cell := i / 6 * 12
		k := i % 6

		lum := (r*coeff[0] + g*coeff[1] + b*coeff[2] + lumaOffset) >> 20 & 0x3FF
		put(cell+2*k+1, lum)

		if i%2 == 0 {
			cbv := (r*coeff[3] + g*coeff[4] + b*coeff[5] + chromaOffset) >> 20 & 0x3FF
			crv := (r*coeff[6] + g*coeff[7] + b*coeff[8] + chromaOffset) >> 20 & 0x3FF
			put(cell+k/2*4, crv)
			put(cell+k/2*4+2, cbv)
		}
	}
}
