// Package pdec provides the precise-decimal arithmetic surface used by the
// pricing core. All monetary values use shopspring/decimal — never float64
// for money.
//
// The pricing math runs on a two-tier numeric model: intermediate curve
// values (log/exp, rate anchors, fee fractions) are computed at
// PrecisePlaces digits, and are rounded down to an asset's divisibility
// only at the boundary where a value becomes a transferable amount.
// Rounding at that boundary is always half-to-even to avoid systematic
// bias over many trades.
package pdec

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// PrecisePlaces is the number of decimal places carried through
// intermediate curve math.
const PrecisePlaces int32 = 36

// AmountPlaces is the default divisibility of resource amounts.
const AmountPlaces int32 = 18

var (
	// ErrDivisionByZero is returned by Div for a zero divisor.
	ErrDivisionByZero = errors.New("pdec: division by zero")

	// ErrLnNonPositive is returned by Ln for inputs <= 0.
	ErrLnNonPositive = errors.New("pdec: natural log of non-positive value")
)

// Div performs checked division at PrecisePlaces precision.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Decimal{}, ErrDivisionByZero
	}
	return a.DivRound(b, PrecisePlaces), nil
}

// Ln computes the natural log of d at PrecisePlaces precision.
// Fails for d <= 0 — the domain error, not a panic, so callers can
// surface it as a trade rejection.
func Ln(d decimal.Decimal) (decimal.Decimal, error) {
	if d.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrLnNonPositive, d)
	}
	r, err := d.Ln(PrecisePlaces)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pdec: ln(%s): %w", d, err)
	}
	return r, nil
}

// Exp computes e^d at PrecisePlaces precision. Total over all finite
// inputs the curve can produce.
func Exp(d decimal.Decimal) (decimal.Decimal, error) {
	r, err := d.ExpTaylor(PrecisePlaces)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pdec: exp(%s): %w", d, err)
	}
	return r, nil
}

// RoundAmount rounds a precise value to the given divisibility using
// round-half-to-even. This is the only rounding mode used when a precise
// value leaves the pricing core.
func RoundAmount(d decimal.Decimal, divisibility int32) decimal.Decimal {
	return d.RoundBank(divisibility)
}
