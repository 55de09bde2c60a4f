package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every monetary and quantity
// value in the system carries. All arithmetic truncates toward zero at
// this scale, so results are deterministic across call sites.
const Scale = 8

// Parse converts a decimal string into a value truncated to Scale.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d.Truncate(Scale), nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns the zero value.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// Add returns a + b at fixed scale.
func Add(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b).Truncate(Scale)
}

// Sub returns a - b at fixed scale.
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Truncate(Scale)
}

// Mul returns a * b truncated to fixed scale. Truncation (not rounding)
// matches the behavior of the ledger's numeric columns.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(Scale)
}

// Cmp compares a and b: -1 if a < b, 0 if equal, 1 if a > b.
func Cmp(a, b decimal.Decimal) int {
	return a.Cmp(b)
}

// LessThan reports whether a < b.
func LessThan(a, b decimal.Decimal) bool {
	return a.Cmp(b) < 0
}

// GreaterThan reports whether a > b.
func GreaterThan(a, b decimal.Decimal) bool {
	return a.Cmp(b) > 0
}

// IsZero reports whether d is zero.
func IsZero(d decimal.Decimal) bool {
	return d.IsZero()
}

// String formats d with exactly Scale fractional digits, the canonical
// wire and storage representation.
func String(d decimal.Decimal) string {
	return d.Truncate(Scale).StringFixed(Scale)
}
