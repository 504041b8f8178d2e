/*
Package bitint provides the small power-of-two helpers used when sizing
transforms and capture buffers.

Both functions are O(1), allocation free and safe to call from a real-time
audio callback.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Sizes <= 0 map
// to 1.
//
// The subtraction keeps exact powers unchanged: for 8, bits.Len(7) is 3 and
// 1<<3 is 8 again, while bits.Len(8) would be 4 and double the input.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. A power of two
// has a single set bit, so n&(n-1) clears it to zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
