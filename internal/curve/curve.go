// Package curve implements the time-decaying logit bonding curve used by
// the yield AMM (a Notional/Pendle-style model).
//
// The curve prices Principal Tokens (PT) against their underlying asset as
// a function of the pool proportion p = PT / (PT + asset):
//
//	rate(p) = ln(p/(1-p)) / rateScalar + rateAnchor
//
// The logit transform maps the bounded proportion (0,1) onto the whole
// real line, steepening toward the pool boundaries so the pool cannot be
// drained, while the rate scalar grows as maturity approaches, flattening
// the curve so PT converges to par.
//
// All functions here are stateless and pure: given scalar inputs they
// produce a rate or a domain error. All monetary values use
// shopspring/decimal — never float64 for money.
package curve

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/pdec"
)

// PeriodSize is the annualization period in seconds (365 days). Implied
// rates and fee rates are stored per PeriodSize and scaled by
// timeToExpiry/PeriodSize when applied to a trade.
const PeriodSize int64 = 31_536_000

var (
	// ErrInvalidExchangeRate is returned when a computed exchange rate is
	// below 1. A rate below 1 would let a trader buy PT under its par
	// redemption value — risk-free arbitrage.
	ErrInvalidExchangeRate = errors.New("curve: exchange rate must be at least 1")

	// ErrInvalidLastExchangeRate is returned when the stored implied rate
	// decodes to an exchange rate below 1, which indicates corrupted
	// market state rather than a bad trade.
	ErrInvalidLastExchangeRate = errors.New("curve: last exchange rate must be at least 1")

	// ErrInvalidPostFeeExchangeRate is returned when applying the fee
	// would make the trade unfavorable to the pool.
	ErrInvalidPostFeeExchangeRate = errors.New("curve: trade is unfavorable after fees")

	// ErrProportionTooHigh is returned for proportions >= 1: the trade
	// would take out more asset than the pool holds.
	ErrProportionTooHigh = errors.New("curve: proportion must be below 1")

	// ErrProportionNegative is returned for proportions < 0: the trade
	// would take out more PT than the pool holds.
	ErrProportionNegative = errors.New("curve: proportion must not be negative")
)

// CalcProportion returns the pool proportion after a proposed trade of
// netPTAmount. netPTAmount is signed: positive means PT leaves the pool
// (user buys PT), negative means PT enters the pool (user sells PT).
// Bounds are not checked here; LogProportion enforces the (0,1) domain.
func CalcProportion(netPTAmount, totalPT, totalAsset decimal.Decimal) (decimal.Decimal, error) {
	numerator := totalPT.Sub(netPTAmount)
	denominator := totalPT.Add(totalAsset)
	p, err := pdec.Div(numerator, denominator)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("curve: proportion: %w", err)
	}
	return p, nil
}

// LogProportion computes the logit transform ln(p/(1-p)).
//
// p >= 1 would require negative asset reserves and p < 0 negative PT
// reserves; both are invalid pool states and rejected. Trade size is
// capped upstream (see the market's max proportion) to keep a safety
// margin before the singularity at p = 1.
func LogProportion(p decimal.Decimal) (decimal.Decimal, error) {
	if p.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrProportionTooHigh, p)
	}
	if p.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrProportionNegative, p)
	}

	logit, err := pdec.Div(p, decimal.NewFromInt(1).Sub(p))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("curve: logit: %w", err)
	}
	return pdec.Ln(logit)
}

// CalcExchangeRate evaluates the curve at proportion p:
//
//	rate = ln(p/(1-p)) / rateScalar + rateAnchor
//
// The result must be at least 1; anything lower is rejected rather than
// clamped.
func CalcExchangeRate(p, rateAnchor, rateScalar decimal.Decimal) (decimal.Decimal, error) {
	lnP, err := LogProportion(p)
	if err != nil {
		return decimal.Decimal{}, err
	}

	scaled, err := pdec.Div(lnP, rateScalar)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("curve: exchange rate: %w", err)
	}

	rate := scaled.Add(rateAnchor)
	if rate.LessThan(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInvalidExchangeRate, rate)
	}
	return rate, nil
}

// CalcRateScalar derives the curve steepness for the current instant:
//
//	rateScalar = scalarRoot * PeriodSize / timeToExpiry
//
// As timeToExpiry approaches zero the scalar grows without bound,
// flattening the curve so PT converges to par at maturity. The caller
// must guarantee timeToExpiry > 0; expired markets are rejected upstream
// by the maturity check.
func CalcRateScalar(scalarRoot decimal.Decimal, timeToExpiry int64) (decimal.Decimal, error) {
	scalar, err := pdec.Div(
		scalarRoot.Mul(decimal.NewFromInt(PeriodSize)),
		decimal.NewFromInt(timeToExpiry),
	)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("curve: rate scalar: %w", err)
	}
	if scalar.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("curve: rate scalar must not be negative: %s", scalar)
	}
	return scalar, nil
}

// CalcRateAnchor derives the curve offset that preserves interest-rate
// continuity across trades: evaluated at the current zero-trade
// proportion, the curve reproduces exactly the exchange rate implied by
// lastLnImpliedRate, so sequential trades see a continuous rate curve
// rather than one that resets arbitrarily.
func CalcRateAnchor(lastLnImpliedRate, proportion decimal.Decimal, timeToExpiry int64, rateScalar decimal.Decimal) (decimal.Decimal, error) {
	lastExchangeRate, err := ExchangeRateFromImpliedRate(lastLnImpliedRate, timeToExpiry)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if lastExchangeRate.LessThan(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInvalidLastExchangeRate, lastExchangeRate)
	}

	lnP, err := LogProportion(proportion)
	if err != nil {
		return decimal.Decimal{}, err
	}

	curveComponent, err := pdec.Div(lnP, rateScalar)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("curve: rate anchor: %w", err)
	}

	return lastExchangeRate.Sub(curveComponent), nil
}

// CalcFee computes the total fee for a trade. The stored lnFeeRate is
// annualized the same way as implied rates, so fees decay toward
// maturity along with the time value they price.
//
// The sign asymmetry between the two directions ensures the fee always
// reduces the amount paid out to the trader:
//   - netPTAmount > 0 (PT leaves the pool): preFeeAmount is negative and
//     (1 - feeRate) is negative, so the fee comes out positive. The
//     post-fee rate exchangeRate/feeRate must stay at least 1.
//   - netPTAmount <= 0 (PT enters the pool): preFeeAmount is positive;
//     the product is negated and divided by feeRate to keep the fee
//     positive in asset terms.
func CalcFee(lnFeeRate decimal.Decimal, timeToExpiry int64, netPTAmount, exchangeRate, preFeeAmount decimal.Decimal) (decimal.Decimal, error) {
	feeRate, err := ExchangeRateFromImpliedRate(lnFeeRate, timeToExpiry)
	if err != nil {
		return decimal.Decimal{}, err
	}

	one := decimal.NewFromInt(1)

	if netPTAmount.IsPositive() {
		postFeeRate, err := pdec.Div(exchangeRate, feeRate)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("curve: post-fee rate: %w", err)
		}
		if postFeeRate.LessThan(one) {
			return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInvalidPostFeeExchangeRate, postFeeRate)
		}
		return preFeeAmount.Mul(one.Sub(feeRate)), nil
	}

	fee, err := pdec.Div(preFeeAmount.Mul(one.Sub(feeRate)), feeRate)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("curve: fee: %w", err)
	}
	return fee.Neg(), nil
}

// ExchangeRateFromImpliedRate converts an annualized log-rate into the
// multiplicative exchange rate for the remaining period:
//
//	rate = exp(lnRate * timeToExpiry / PeriodSize)
func ExchangeRateFromImpliedRate(lnRate decimal.Decimal, timeToExpiry int64) (decimal.Decimal, error) {
	rt, err := pdec.Div(
		lnRate.Mul(decimal.NewFromInt(timeToExpiry)),
		decimal.NewFromInt(PeriodSize),
	)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("curve: implied rate: %w", err)
	}
	return pdec.Exp(rt)
}
