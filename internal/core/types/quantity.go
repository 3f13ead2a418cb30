package types

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// QuantityScale is 10^quantityPlaces: a Quantity of 1 is 0.0001 units.
const (
	quantityPlaces       = 4
	QuantityScale  int64 = 10_000
)

// Quantity is a stock quantity with four decimal places, kept as a scaled
// integer so ledger sums are exact. Columns store it as BIGINT.
type Quantity int64

var (
	errEmptyQuantity    = errors.New("empty quantity")
	errQuantityOverflow = errors.New("quantity out of range")

	maxQuantity = decimal.NewFromInt(math.MaxInt64)
	minQuantity = decimal.NewFromInt(math.MinInt64)
)

// NewQuantity is a whole number of units.
func NewQuantity(units int64) Quantity { return Quantity(units * QuantityScale) }

// QuantityFromDecimal truncates d to four places.
func QuantityFromDecimal(d decimal.Decimal) Quantity {
	return Quantity(d.Shift(quantityPlaces).IntPart())
}

// ParseQuantity reads "2", "-1.5", "+0.25", ".5" or "1e2". Digits past the
// fourth decimal are truncated.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	if s == "" {
		return 0, errEmptyQuantity
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	scaled := d.Shift(quantityPlaces).Truncate(0)
	if scaled.GreaterThan(maxQuantity) || scaled.LessThan(minQuantity) {
		return 0, fmt.Errorf("parse quantity %q: %w", s, errQuantityOverflow)
	}
	return Quantity(scaled.IntPart()), nil
}

func (q Quantity) IsZero() bool     { return q == 0 }
func (q Quantity) IsNegative() bool { return q < 0 }
func (q Quantity) Neg() Quantity    { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Decimal is the exact decimal value of q.
func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -quantityPlaces)
}

// Times values q at price, rounded to four places.
func (q Quantity) Times(price Money) Money {
	return q.Decimal().Mul(price).Round(quantityPlaces)
}

// String always prints four decimals: "-1.5000".
func (q Quantity) String() string {
	return q.Decimal().StringFixed(quantityPlaces)
}

// MarshalJSON writes a JSON number with four decimals.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON takes a number or a quoted number; null is zero.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*q = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		unq, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
		raw = unq
	}
	v, err := ParseQuantity(raw)
	if err != nil {
		return err
	}
	*q = v
	return nil
}
