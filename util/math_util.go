// Package util provides overflow checked uint64 arithmetic. Balances,
// prices and timestamps are all uint64 and silent wraparound on any of
// them would corrupt the ledger, so additions and subtractions go
// through these helpers.
package util

import (
	"fmt"
	"math"
)

// AddUint64 sums the given values. The overflow flag and the error are
// both set when the sum wraps; the returned sum is then meaningless.
func AddUint64(ns ...uint64) (sum uint64, overflow bool, err error) {
	if len(ns) == 0 {
		return 0, false, nil
	}
	sum = ns[0]
	for i := 1; i < len(ns); i++ {
		n := ns[i]
		if n > math.MaxUint64-sum {
			overflow = true
		}
		sum += n
	}

	if overflow {
		err = fmt.Errorf("uint64 sum overflow: %v", ns)
	}

	return
}

// SafeAdd returns a+b, the second value is false when the sum overflows.
func SafeAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// SafeSub returns a-b, the second value is false when b exceeds a.
func SafeSub(a, b uint64) (uint64, bool) {
	if a < b {
		return 0, false
	}
	return a - b, true
}
