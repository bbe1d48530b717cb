package engine

import "math/bits"

// addChecked adds two amounts, rejecting on overflow instead of wrapping.
func addChecked(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrAmountOverflow
	}
	return sum, nil
}

// mulDiv computes floor(a*b/den) over the full 128-bit intermediate product.
// den must be non-zero. Fails if the quotient does not fit in 64 bits.
func mulDiv(a, b, den uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, ErrAmountOverflow
	}
	quo, _ := bits.Div64(hi, lo, den)
	return quo, nil
}
