// Package amount provides exact decimal arithmetic for token balances.
//
// All persisted and transmitted values use the canonical string form produced
// by Amount.String, so that a value round-trips through storage without loss
// and a snapshot re-computed from the same inputs is byte-identical.
package amount

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxFractionalDigits caps the precision of canonical renderings.
// Matches the 18 decimals used by ERC-20 token contracts.
const MaxFractionalDigits = 18

// ParseError reports a value that could not be parsed as a decimal number.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse amount %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Amount is an exact arbitrary-precision decimal. The zero value is zero.
type Amount struct {
	d decimal.Decimal
}

// Zero returns the zero amount.
func Zero() Amount { return Amount{} }

// Parse parses a plain decimal string, e.g. "0.1" or "-12.000000001".
// Returns a *ParseError for non-numeric input.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, &ParseError{Input: s, Err: err}
	}
	return Amount{d: d}, nil
}

// MustParse is Parse for hardcoded values; it panics on error.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a + b, exactly.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{d: a.d.Neg()}
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// String renders the canonical form: at most MaxFractionalDigits fractional
// digits, no trailing zeros, no exponent. Zero renders as "0".
func (a Amount) String() string {
	s := a.d.Truncate(MaxFractionalDigits).String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}
