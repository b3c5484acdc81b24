// Package safe provides overflow-checked integer arithmetic for pool accounting.
package safe

import (
	"fmt"
	"math/bits"
)

// AddUint64 returns a+b. ok is false when the sum does not fit in 64 bits.
func AddUint64(a, b uint64) (sum uint64, ok bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// MustAddUint64 adds a and b. Panics on overflow.
// Only for counters that cannot legitimately overflow (sequence numbers).
func MustAddUint64(a, b uint64) uint64 {
	sum, ok := AddUint64(a, b)
	if !ok {
		panic(fmt.Sprintf("UINT64_OVERFLOW: %d + %d", a, b))
	}
	return sum
}
