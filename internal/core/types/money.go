// Package types holds the value types shared by the ledger, the operation
// payloads and the API: exact money and fixed-point quantities.
package types

import "github.com/shopspring/decimal"

// Money is an exact decimal amount (unit costs and sale prices).
type Money = decimal.Decimal

func Zero() Money { return decimal.Zero }

// MustMoney parses s and panics on failure; for literals and tests.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}
