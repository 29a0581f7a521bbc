package app

import (
	"fmt"
	"math"
)

// addHeightChecked computes base+delta for block-height deadlines, rejecting
// anything that would overflow int64.
func addHeightChecked(base int64, delta uint64, field string) (int64, error) {
	if delta > uint64(math.MaxInt64) {
		return 0, fmt.Errorf("%s overflows int64", field)
	}
	d := int64(delta)
	if base > math.MaxInt64-d {
		return 0, fmt.Errorf("%s overflows int64", field)
	}
	return base + d, nil
}
