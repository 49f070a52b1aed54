package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value stored in currency subunits (paise for INR).
type Money = int64

// SubunitsPerUnit is the number of subunits in one major currency unit.
const SubunitsPerUnit = 100

// ErrFractionalSubunit is returned when a major-unit price cannot be expressed in whole subunits.
var ErrFractionalSubunit = errors.New("pricing: price has a fraction of a subunit")

// ApplyDiscount returns the charge for base after a percentage discount. A nil percent leaves
// base unchanged. The result is floor(base*(100-p)/100), so partial subunits are truncated in
// the customer's favour. Percentages outside 0..100 are clamped.
func ApplyDiscount(base Money, percent *int) Money {
	if base <= 0 {
		return 0
	}
	if percent == nil {
		return base
	}
	p := int64(*percent)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return base * (100 - p) / 100
}

// ToSubunits converts a major-unit decimal string such as "1499.00" into subunits.
func ToSubunits(major string) (Money, error) {
	trimmed := strings.TrimSpace(major)
	if trimmed == "" {
		return 0, errors.New("pricing: price is required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("pricing: parse price %q: %w", trimmed, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("pricing: price %q is negative", trimmed)
	}
	scaled := d.Mul(decimal.NewFromInt(SubunitsPerUnit))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrFractionalSubunit
	}
	return scaled.IntPart(), nil
}

// FormatMajor renders subunits as a major-unit string, e.g. 119920 -> "1199.20".
func FormatMajor(amount Money) string {
	return decimal.New(amount, -2).StringFixed(2)
}
