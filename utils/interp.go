package utils

import (
	"fmt"
	"sort"
)

// LinearInterp evaluates the piecewise-linear curve through (keys, values) at x.
//
// keys must be ascending. The bracket is located at the first key strictly
// greater than x; queries before the first key or at/after the last key are
// held flat at the boundary value.
func LinearInterp(keys, values []float64, x float64) float64 {
	n := len(keys)
	if n == 0 {
		return 0
	}
	i := sort.Search(n, func(i int) bool { return keys[i] > x })
	if i == n {
		return values[n-1]
	}
	if i == 0 {
		return values[0]
	}
	k1, k2 := keys[i-1], keys[i]
	v1, v2 := values[i-1], values[i]
	return v1 + (v2-v1)*(x-k1)/(k2-k1)
}

// ValidateKnots checks that keys and values are parallel, non-empty and that
// keys are strictly ascending.
func ValidateKnots(keys, values []float64) error {
	if len(keys) != len(values) {
		return fmt.Errorf("ValidateKnots: %d keys but %d values", len(keys), len(values))
	}
	if len(keys) == 0 {
		return fmt.Errorf("ValidateKnots: no knots")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			return fmt.Errorf("ValidateKnots: keys not strictly ascending at index %d", i)
		}
	}
	return nil
}
