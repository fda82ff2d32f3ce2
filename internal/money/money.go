// Package money converts between the major-unit decimal strings the API
// speaks ("50.00") and the integer piasters the ledger stores. Floats are
// never used for amounts.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrBadAmount is returned for amounts that are not valid two-decimal
// currency values.
var ErrBadAmount = errors.New("invalid amount")

// ParseCents parses a major-unit decimal string into piasters.
// Accepts at most two fractional digits; "50", "50.5" and "50.00" are all
// valid, "50.005" is not.
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadAmount, s)
	}
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrBadAmount, s)
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%w: %q", ErrBadAmount, s)
	}
	return cents.IntPart(), nil
}

// FormatCents renders piasters as a major-unit string with two decimals.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
