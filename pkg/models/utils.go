package models

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// DecimalFromUint64 converts an engine amount to its database representation.
func DecimalFromUint64(value uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(value), 0)
}

var maxUint64Big = new(big.Int).SetUint64(math.MaxUint64)

// Uint64FromDecimal converts a stored balance back to an engine amount.
// Negative values clamp to zero and values past the uint64 range clamp to
// MaxUint64; big.Int.Uint64 would silently wrap them instead.
func Uint64FromDecimal(value decimal.Decimal) uint64 {
	if value.IsNegative() {
		return 0
	}
	whole := value.Truncate(0).BigInt()
	if whole.Cmp(maxUint64Big) > 0 {
		return math.MaxUint64
	}
	return whole.Uint64()
}

// DecimalFromString creates a decimal from string with error handling
func DecimalFromString(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}
