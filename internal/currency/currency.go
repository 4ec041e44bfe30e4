// Package currency holds the supported currency registry and display
// formatting for monetary amounts.
package currency

import (
	"errors"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var errUnsupported = errors.New("unsupported currency")

// Currency describes one supported currency.
type Currency struct {
	Code     string
	Name     string
	Symbol   string
	Fraction int // minor-unit digits: 0 for JPY, 2 otherwise
}

// Supported is the fixed set of currencies records may carry.
// Order matters for selector UIs: the first entry is the default.
var Supported = []Currency{
	{Code: "USD", Name: "US Dollar", Symbol: "$", Fraction: 2},
	{Code: "EUR", Name: "Euro", Symbol: "€", Fraction: 2},
	{Code: "GBP", Name: "British Pound", Symbol: "£", Fraction: 2},
	{Code: "CAD", Name: "Canadian Dollar", Symbol: "C$", Fraction: 2},
	{Code: "JPY", Name: "Japanese Yen", Symbol: "¥", Fraction: 0},
	{Code: "AUD", Name: "Australian Dollar", Symbol: "A$", Fraction: 2},
	{Code: "CHF", Name: "Swiss Franc", Symbol: "CHF", Fraction: 2},
}

// Default is the display currency used before the user picks one.
var Default = Supported[0]

// ByCode returns the supported currency with the given code.
func ByCode(code string) (Currency, bool) {
	for _, c := range Supported {
		if c.Code == code {
			return c, true
		}
	}
	return Currency{}, false
}

// IsSupported reports whether code is in the supported set.
func IsSupported(code string) bool {
	_, ok := ByCode(code)
	return ok
}

// Codes returns the supported currency codes in registry order.
func Codes() []string {
	out := make([]string, len(Supported))
	for i, c := range Supported {
		out[i] = c.Code
	}
	return out
}

// Format renders amount in the given currency with the correct minor-unit
// digits and symbol placement.
func Format(amount decimal.Decimal, code string) string {
	cur, ok := ByCode(code)
	if !ok {
		// Unknown code: plain number, two decimals.
		return amount.StringFixed(2)
	}
	factor := decimal.New(1, int32(cur.Fraction))
	units := amount.Mul(factor).Round(0).IntPart()
	return money.New(units, cur.Code).Display()
}
