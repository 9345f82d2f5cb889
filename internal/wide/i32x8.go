// Package wide provides SIMD-style fixed-lane arithmetic.
//
// Operations work on fixed-size arrays so the compiler can auto-vectorize
// the lane loops. The I32x8 type carries eight 32-bit accumulators, sized
// for fixed-point color-matrix products that stay below 2^31.
package wide

// I32x8 represents 8 int32 values for SIMD-style operations.
type I32x8 [8]int32

// SplatI32 creates an I32x8 with all lanes set to n.
func SplatI32(n int32) I32x8 {
	var result I32x8
	for i := range result {
		result[i] = n
	}
	return result
}

// Add performs element-wise addition.
func (v I32x8) Add(other I32x8) I32x8 {
	var result I32x8
	for i := range v {
		result[i] = v[i] + other[i]
	}
	return result
}

// MulScalar multiplies every lane by n.
func (v I32x8) MulScalar(n int32) I32x8 {
	var result I32x8
	for i := range v {
		result[i] = v[i] * n
	}
	return result
}

// AddScalar adds n to every lane.
func (v I32x8) AddScalar(n int32) I32x8 {
	var result I32x8
	for i := range v {
		result[i] = v[i] + n
	}
	return result
}

// Shr20 shifts every lane right by 20 bits, the fixed-point normalization
// used by 10-bit color-matrix math. Lanes must be non-negative.
func (v I32x8) Shr20() I32x8 {
	var result I32x8
	for i := range v {
		result[i] = int32(uint32(v[i]) >> 20)
	}
	return result
}

// And1023 masks every lane to its low 10 bits.
func (v I32x8) And1023() I32x8 {
	var result I32x8
	for i := range v {
		result[i] = v[i] & 0x3FF
	}
	return result
}
