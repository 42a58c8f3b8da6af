// SPDX-License-Identifier: MIT

/*
Package bitint provides the power-of-two helpers used to size lock-free
rings. A ring whose length is a power of two maps an ever-increasing
64-bit position to a slot with a single AND against length-1, so the
producer never divides inside the audio callback.

Usage:

	size := bitint.NextPowerOfTwo(5000) // 8192
	mask := bitint.Mask(size)           // 8191
	slot := pos & mask

----------------------------------------------------------------------

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers are preserved:

	size 8 -> size-1 = 0b0111 -> bits.Len = 3 -> 1<<3 = 8
	size 9 -> size-1 = 0b1000 -> bits.Len = 4 -> 1<<4 = 16

Without the subtraction 8 would be doubled to 16.
*/
package bitint

import "math/bits"

// Integer is the set of types the helpers accept.
type Integer interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64
}

// NextPowerOfTwo returns the smallest power of two >= size. Zero and
// negative sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo[T Integer](size T) T {
	if size <= 0 {
		return 1
	}
	return T(1) << bits.Len64(uint64(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of
// two has one bit set, so n&(n-1) clears it to zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   not positive
func IsPowerOfTwo[T Integer](n T) bool {
	return n > 0 && n&(n-1) == 0
}

// Mask returns the index mask for a ring of size slots. size must be a
// power of two; other values panic.
func Mask[T Integer](size T) uint64 {
	if !IsPowerOfTwo(size) {
		panic("bitint: ring size is not a power of two")
	}
	return uint64(size - 1)
}
