package v210

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// fillPixel writes one 16-bit RGBA pixel.
func fillPixel(dst []byte, r, g, b, a uint16) {
	binary.LittleEndian.PutUint16(dst[0:], r)
	binary.LittleEndian.PutUint16(dst[2:], g)
	binary.LittleEndian.PutUint16(dst[4:], b)
	binary.LittleEndian.PutUint16(dst[6:], a)
}

// solidFrame builds a frame of one repeated RGBA pixel.
func solidFrame(d Descriptor, r, g, b uint16) Frame {
	data := make([]byte, d.Width*d.Height*bytesPerPixel)
	for i := 0; i < len(data); i += bytesPerPixel {
		fillPixel(data[i:], r, g, b, 0xFFFF)
	}
	return Frame{Data: data}
}

// patternFrame builds a frame of deterministic varied pixels.
func patternFrame(d Descriptor) Frame {
	data := make([]byte, d.Width*d.Height*bytesPerPixel)
	for p := 0; p < d.Width*d.Height; p++ {
		fillPixel(data[p*bytesPerPixel:],
			uint16(p*7919), uint16(p*104729), uint16(p*1299709), 0xFFFF)
	}
	return Frame{Data: data}
}

// sampleAt extracts 10-bit sample idx from a packed row.
func sampleAt(row []byte, idx int) uint32 {
	w := binary.LittleEndian.Uint32(row[idx/3*4:])
	return w >> (uint(idx%3) * 10) & 0x3FF
}

// lumaAt extracts the Y sample of pixel k from a packed row.
func lumaAt(row []byte, k int) uint32 {
	return sampleAt(row, k/6*12+2*(k%6)+1)
}

// chromaAt extracts the Cr and Cb samples sited on even pixel k.
func chromaAt(row []byte, k int) (cr, cb uint32) {
	base := k / 6 * 12
	j := k % 6 / 2 * 4
	return sampleAt(row, base+j), sampleAt(row, base+j+2)
}

func newTestConverter(t *testing.T) *Converter {
	t.Helper()
	c := NewConverter(2)
	t.Cleanup(c.Close)
	return c
}

func TestConvertBlack(t *testing.T) {
	c := newTestConverter(t)
	d := Descriptor{Width: 48, Height: 4, FieldCount: 1}

	out, err := c.ConvertForPort(d, d, PortConfig{}, solidFrame(d, 0, 0, 0), Frame{}, Progressive)
	if err != nil {
		t.Fatal(err)
	}

	row := out[:RowBytes(d.Width)]
	for k := 0; k < d.Width; k++ {
		if y := lumaAt(row, k); y != 64 {
			t.Fatalf("pixel %d: Y = %d; want 64", k, y)
		}
		if k%2 == 0 {
			cr, cb := chromaAt(row, k)
			if cr != 512 || cb != 512 {
				t.Fatalf("pixel %d: Cr, Cb = %d, %d; want 512, 512", k, cr, cb)
			}
		}
	}
}

func TestConvertWhite(t *testing.T) {
	c := newTestConverter(t)
	d := Descriptor{Width: 48, Height: 2, FieldCount: 1}

	out, err := c.ConvertForPort(d, d, PortConfig{}, solidFrame(d, 0xFFFF, 0xFFFF, 0xFFFF), Frame{}, Progressive)
	if err != nil {
		t.Fatal(err)
	}

	row := out[:RowBytes(d.Width)]
	for k := 0; k < d.Width; k++ {
		if y := lumaAt(row, k); y != 940 {
			t.Fatalf("pixel %d: Y = %d; want 940", k, y)
		}
		if k%2 == 0 {
			cr, cb := chromaAt(row, k)
			if cr != 512 || cb != 512 {
				t.Fatalf("pixel %d: Cr, Cb = %d, %d; want 512, 512", k, cr, cb)
			}
		}
	}
}

func TestGroupScalarBitIdentity(t *testing.T) {
	d := Descriptor{Width: 48, Height: 1, FieldCount: 1}
	src := patternFrame(d).Data

	fast := make([]byte, 128)
	slow := make([]byte, 128)
	packGroup(fast, src)
	packScalar(slow, src, 48)

	if !bytes.Equal(fast, slow) {
		t.Fatal("group and scalar paths produced different bytes")
	}
}

func TestConvertOddWidth(t *testing.T) {
	c := newTestConverter(t)
	// 20 full groups plus a 41-pixel remainder.
	d := Descriptor{Width: 1001, Height: 2, FieldCount: 1}

	out, err := c.ConvertForPort(d, d, PortConfig{}, solidFrame(d, 0xFFFF, 0xFFFF, 0xFFFF), Frame{}, Progressive)
	if err != nil {
		t.Fatal(err)
	}

	row := out[:RowBytes(d.Width)]
	for k := 0; k < d.Width; k++ {
		if y := lumaAt(row, k); y != 940 {
			t.Fatalf("pixel %d: Y = %d; want 940", k, y)
		}
	}

	// Bytes past the last sample of the remainder stay zero.
	lastSample := 1000/6*12 + 2*(1000%6) + 1
	tailStart := (lastSample/3 + 1) * 4
	for i := tailStart; i < len(row); i++ {
		if row[i] != 0 {
			t.Fatalf("row tail byte %d = %#x; want 0", i, row[i])
		}
	}
}

func TestConvertCoversRemainderRows(t *testing.T) {
	c := newTestConverter(t)
	// Height not divisible by the band count.
	d := Descriptor{Width: 48, Height: 11, FieldCount: 1}

	out, err := c.ConvertForPort(d, d, PortConfig{}, solidFrame(d, 0xFFFF, 0xFFFF, 0xFFFF), Frame{}, Progressive)
	if err != nil {
		t.Fatal(err)
	}

	rowBytes := RowBytes(d.Width)
	for row := 0; row < d.Height; row++ {
		if y := lumaAt(out[row*rowBytes:], 0); y != 940 {
			t.Fatalf("row %d: Y = %d; want 940", row, y)
		}
	}
}

func TestConvertInterlaced(t *testing.T) {
	d := Descriptor{Width: 48, Height: 10, FieldCount: 2}
	white := solidFrame(d, 0xFFFF, 0xFFFF, 0xFFFF)
	black := solidFrame(d, 0, 0, 0)

	tests := []struct {
		name     string
		dom      FieldDominance
		evenLuma uint32
		oddLuma  uint32
	}{
		{"upper field first", UpperFieldFirst, 940, 64},
		{"lower field first", LowerFieldFirst, 64, 940},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConverter(t)

			out, err := c.ConvertForPort(d, d, PortConfig{}, white, black, tt.dom)
			if err != nil {
				t.Fatal(err)
			}

			rowBytes := RowBytes(d.Width)
			for row := 0; row < d.Height; row++ {
				want := tt.evenLuma
				if row%2 == 1 {
					want = tt.oddLuma
				}
				if y := lumaAt(out[row*rowBytes:], 0); y != want {
					t.Fatalf("row %d: Y = %d; want %d", row, y, want)
				}
			}
		})
	}
}

func TestConvertEmptyFrame(t *testing.T) {
	c := newTestConverter(t)
	d := Descriptor{Width: 48, Height: 4, FieldCount: 1}

	out, err := c.ConvertForPort(d, d, PortConfig{}, Frame{}, Frame{}, Progressive)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range out {
		if b != 0 {
			t.Fatal("empty frame produced non-zero output")
		}
	}
}

func TestConvertEmptySecondField(t *testing.T) {
	c := newTestConverter(t)
	d := Descriptor{Width: 48, Height: 4, FieldCount: 2}
	white := solidFrame(d, 0xFFFF, 0xFFFF, 0xFFFF)

	out, err := c.ConvertForPort(d, d, PortConfig{}, white, Frame{}, UpperFieldFirst)
	if err != nil {
		t.Fatal(err)
	}

	rowBytes := RowBytes(d.Width)
	for row := 0; row < d.Height; row++ {
		y := lumaAt(out[row*rowBytes:], 0)
		if row%2 == 0 && y != 940 {
			t.Fatalf("even row %d: Y = %d; want 940", row, y)
		}
		if row%2 == 1 && y != 0 {
			t.Fatalf("odd row %d: Y = %d; want untouched 0", row, y)
		}
	}
}

func TestConvertUnsupported(t *testing.T) {
	c := newTestConverter(t)
	d := Descriptor{Width: 48, Height: 4, FieldCount: 1}
	f := solidFrame(d, 0, 0, 0)

	tests := []struct {
		name   string
		target Descriptor
		cfg    PortConfig
	}{
		{"key only", d, PortConfig{KeyOnly: true}},
		{"sub region", d, PortConfig{RegionWidth: 24, RegionHeight: 4}},
		{"dest offset", d, PortConfig{DestX: 8}},
		{"geometry mismatch", Descriptor{Width: 96, Height: 4, FieldCount: 1}, PortConfig{}},
		{"format mismatch", Descriptor{Width: 48, Height: 4, FieldCount: 1, Format: RGBA8}, PortConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ConvertForPort(d, tt.target, tt.cfg, f, Frame{}, Progressive)
			if !errors.Is(err, ErrUnsupportedConversion) {
				t.Fatalf("err = %v; want ErrUnsupportedConversion", err)
			}
		})
	}
}

func TestConvertFieldCountMismatch(t *testing.T) {
	c := newTestConverter(t)

	tests := []struct {
		name       string
		fieldCount int
		dom        FieldDominance
	}{
		{"progressive onto two-field raster", 2, Progressive},
		{"upper field first onto progressive raster", 1, UpperFieldFirst},
		{"lower field first onto progressive raster", 1, LowerFieldFirst},
		{"field count zero", 0, Progressive},
		{"field count three", 3, UpperFieldFirst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Descriptor{Width: 48, Height: 4, FieldCount: tt.fieldCount}
			f := solidFrame(d, 0, 0, 0)

			_, err := c.ConvertForPort(d, d, PortConfig{}, f, Frame{}, tt.dom)
			if !errors.Is(err, ErrUnsupportedConversion) {
				t.Fatalf("err = %v; want ErrUnsupportedConversion", err)
			}
		})
	}
}

func TestConvertShortFrame(t *testing.T) {
	c := newTestConverter(t)
	d := Descriptor{Width: 48, Height: 4, FieldCount: 1}

	_, err := c.ConvertForPort(d, d, PortConfig{}, Frame{Data: make([]byte, 100)}, Frame{}, Progressive)
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("err = %v; want ErrShortFrame", err)
	}
}
