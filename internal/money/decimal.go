// Package money provides the fixed-precision decimal type used for every
// price and size in the matching engine. No binary floating-point value is
// ever compared or persisted; all arithmetic routes through shopspring/decimal
// so that price-crossing tests and fill accounting are exact.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceScale is the minimum number of fractional digits retained for prices.
// SizeScale is the minimum number of fractional digits retained for sizes.
const (
	PriceScale = 4
	SizeScale  = 6
)

// Decimal wraps shopspring/decimal.Decimal. Computations never round;
// rounding only happens through Round{Price,Size}, which nothing in the
// engine calls, so prices and sizes keep the precision they were parsed
// with.
type Decimal struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{d: decimal.Zero}

// Half is the default published price for an empty book side.
var Half = MustParse("0.5")

// One is the upper bound of the well-formed price range (see InRange01).
var One = Decimal{d: decimal.NewFromInt(1)}

// NewFromFloat constructs a Decimal from a float64. Reserved for tests and
// for computing derived quantities (e.g. a score); never used for
// persisted prices or sizes, which must come from Parse.
func NewFromFloat(f float64) Decimal {
	return Decimal{d: decimal.NewFromFloat(f)}
}

// Parse converts a decimal string (the wire format for all prices/sizes)
// into a Decimal. Returns an error on malformed input.
func Parse(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return Decimal{d: d}, nil
}

// MustParse is Parse but panics on error. Used for literal constants,
// here and in other packages and tests.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (a Decimal) Add(b Decimal) Decimal { return Decimal{d: a.d.Add(b.d)} }
func (a Decimal) Sub(b Decimal) Decimal { return Decimal{d: a.d.Sub(b.d)} }
func (a Decimal) Mul(b Decimal) Decimal { return Decimal{d: a.d.Mul(b.d)} }

// Div divides a by b. Callers must ensure b is non-zero; the matcher's
// weighted-average recomputation is skipped entirely on a zero divisor
// rather than calling Div (see internal/position).
func (a Decimal) Div(b Decimal) Decimal { return Decimal{d: a.d.Div(b.d)} }

// Min returns the smaller of a and b.
func Min(a, b Decimal) Decimal {
	if a.d.Cmp(b.d) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Decimal) Decimal {
	if a.d.Cmp(b.d) >= 0 {
		return a
	}
	return b
}

// Cmp returns -1, 0, or 1 per a.Cmp(b)'s usual contract.
func (a Decimal) Cmp(b Decimal) int { return a.d.Cmp(b.d) }

// Equal is exact equality (never converts to float64).
func (a Decimal) Equal(b Decimal) bool { return a.d.Equal(b.d) }

// GTE reports whether a >= b.
func (a Decimal) GTE(b Decimal) bool { return a.d.Cmp(b.d) >= 0 }

// LTE reports whether a <= b.
func (a Decimal) LTE(b Decimal) bool { return a.d.Cmp(b.d) <= 0 }

// GT reports whether a > b.
func (a Decimal) GT(b Decimal) bool { return a.d.Cmp(b.d) > 0 }

// LT reports whether a < b.
func (a Decimal) LT(b Decimal) bool { return a.d.Cmp(b.d) < 0 }

// IsZero reports whether the value is exactly zero.
func (a Decimal) IsZero() bool { return a.d.IsZero() }

// IsNegative reports whether the value is strictly less than zero.
func (a Decimal) IsNegative() bool { return a.d.IsNegative() }

// Neg returns the additive inverse.
func (a Decimal) Neg() Decimal { return Decimal{d: a.d.Neg()} }

// RoundPrice rounds to PriceScale fractional digits (half away from zero,
// via the underlying library's Round).
func (a Decimal) RoundPrice() Decimal { return Decimal{d: a.d.Round(PriceScale)} }

// RoundSize rounds to SizeScale fractional digits.
func (a Decimal) RoundSize() Decimal { return Decimal{d: a.d.Round(SizeScale)} }

// String renders the exact decimal representation for wire/storage use.
func (a Decimal) String() string { return a.d.String() }

// MarshalJSON renders the decimal as a JSON string, preserving precision.
func (a Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.String() + `"`), nil
}

// UnmarshalJSON parses a JSON string into a Decimal.
func (a *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("unmarshal decimal %q: %w", s, err)
	}
	a.d = d
	return nil
}

// InRange01 reports whether a is within [0, 1] inclusive — the well-formed
// price range for a binary market. Malformed orders outside this range are
// still accepted by the matcher per spec (validation is a boundary concern)
// but callers at the submission boundary should reject them.
func (a Decimal) InRange01() bool {
	return a.GTE(Zero) && a.LTE(One)
}
