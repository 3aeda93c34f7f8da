package domain

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// PortfolioID identifies one aggregate stream.
type PortfolioID string

// String returns the raw identifier.
func (id PortfolioID) String() string { return string(id) }

// UserID identifies the owner of a portfolio.
type UserID string

// String returns the raw identifier.
func (id UserID) String() string { return string(id) }

// Stock is a ticker symbol.
type Stock string

// String returns the ticker symbol.
func (s Stock) String() string { return string(s) }

// Money is a signed decimal amount without currency.
//
// The zero value is zero. Arithmetic is exact, so Equal and Cmp never need
// an epsilon.
type Money struct {
	amount decimal.Decimal
}

// NewMoney parses a decimal amount such as "100.50".
func NewMoney(amount string) (Money, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", amount, err)
	}
	return Money{amount: value}, nil
}

// MustMoney parses amount and panics on malformed input. Intended for
// literals in tests and fixtures.
func MustMoney(amount string) Money {
	value, err := NewMoney(amount)
	if err != nil {
		panic(err)
	}
	return value
}

// MoneyFromFloat converts a float amount, rounding to its shortest exact
// decimal representation.
func MoneyFromFloat(amount float64) Money {
	return Money{amount: decimal.NewFromFloat(amount)}
}

// Add returns m + other.
func (m Money) Add(other Money) Money { return Money{amount: m.amount.Add(other.amount)} }

// Sub returns m - other.
func (m Money) Sub(other Money) Money { return Money{amount: m.amount.Sub(other.amount)} }

// Times returns m multiplied by a quantity.
func (m Money) Times(q Quantity) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(int64(q)))}
}

// Cmp returns -1, 0 or +1 when m is less than, equal to or greater than other.
func (m Money) Cmp(other Money) int { return m.amount.Cmp(other.amount) }

// Equal reports exact equality.
func (m Money) Equal(other Money) bool { return m.amount.Equal(other.amount) }

// LessThan reports m < other.
func (m Money) LessThan(other Money) bool { return m.amount.LessThan(other.amount) }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// Float64 returns the nearest float64, for display only.
func (m Money) Float64() float64 {
	value, _ := m.amount.Float64()
	return value
}

// String returns the canonical decimal form, such as "10.5".
func (m Money) String() string { return m.amount.String() }

// MarshalJSON encodes the amount as a JSON string to keep full precision.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.amount.String())
}

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("decode money %s: %w", string(data), err)
	}
	m.amount = value
	return nil
}

// Quantity is a signed count of shares.
type Quantity int64

// Add returns q + other.
func (q Quantity) Add(other Quantity) Quantity { return q + other }

// Sub returns q - other.
func (q Quantity) Sub(other Quantity) Quantity { return q - other }

// Neg returns -q.
func (q Quantity) Neg() Quantity { return -q }

// Cmp returns -1, 0 or +1 when q is less than, equal to or greater than other.
func (q Quantity) Cmp(other Quantity) int {
	switch {
	case q < other:
		return -1
	case q > other:
		return 1
	default:
		return 0
	}
}

// Prices maps a stock to its unit price.
type Prices map[Stock]Money
