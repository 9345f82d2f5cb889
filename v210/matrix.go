package v210

import "math"

// BT.709 RGB-to-YCbCr coefficients, rows Y, Cb, Cr.
var bt709 = [9]float64{
	0.2126, 0.7152, 0.0722,
	-0.1146, -0.3854, 0.5,
	0.5, -0.4542, -0.0458,
}

// coeff is the fixed-point matrix: each coefficient pre-scaled to the
// 10-bit narrow range (luma spans 876 codes, chroma 896, of the 1023
// representable) and multiplied by 1024 so a full matrix product plus
// offset normalizes with a single >>20.
var coeff [9]int32

// Fixed-point offsets folded into the matrix product before the >>20:
// luma floor 64, chroma midpoint 512.5.
const (
	lumaOffset   = 64 << 20
	chromaOffset = 1025 << 19
)

func init() {
	const (
		lumaScale   = 876.0 * 1024.0 / 1023.0
		chromaScale = 896.0 * 1024.0 / 1023.0
	)
	for i, f := range bt709 {
		scale := chromaScale
		if i < 3 {
			scale = lumaScale
		}
		coeff[i] = int32(math.Round(f * scale * 1024.0))
	}
}
