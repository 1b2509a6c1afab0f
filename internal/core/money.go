// Package core holds the transaction model: types, money in integer cents,
// drafts and their validation, and aggregation.
package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var amountPattern = regexp.MustCompile(`^([0-9]*)(?:[.,]([0-9]*))?$`)

// MaxAmountCents caps a single amount at one trillion currency units. Sums
// of up to 92,233 such amounts stay inside int64.
const MaxAmountCents int64 = 100_000_000_000_000

// ParseDecimalToCents reads a non-negative amount such as "12.34", "12,34"
// or ".5" and rounds it half-up to cents. Signs, grouping and non-ASCII
// digits are rejected.
func ParseDecimalToCents(s string) (int64, error) {
	m := amountPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || m[1]+m[2] == "" {
		return 0, ErrInvalidAmount
	}
	units, frac := m[1], m[2]
	if units == "" {
		units = "0"
	}
	if frac == "" {
		frac = "0"
	}
	d, err := decimal.NewFromString(units + "." + frac)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if cents.GreaterThan(decimal.NewFromInt(MaxAmountCents)) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// Decimal returns the amount in currency units as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// MoneyFromDecimal rounds d half-up to cents.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Shift(2).Round(0).IntPart()}
}

// String formats the amount with two decimals and no grouping, e.g. "1234.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
