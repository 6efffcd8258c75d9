// Package adapter defines the redemption-factor oracle that normalizes
// yield-bearing asset amounts to their underlying redemption value.
//
// A yield-bearing asset (an LSU, an LP unit, a vault share) appreciates
// against its underlying over time. The pricing core quotes in redemption
// value and converts back to asset units only at the boundary where an
// amount becomes transferable, so one oracle query per trade keeps the
// conversion consistent within that trade.
package adapter

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/pdec"
)

// ErrInvalidFactor is returned for redemption factors <= 0.
var ErrInvalidFactor = errors.New("adapter: redemption factor must be positive")

// Oracle converts between yield-bearing asset units and their redemption
// value. Implementations must be monotonic and consistent within a single
// trade: the caller queries once and reuses the result.
type Oracle interface {
	// RedemptionFactor returns the current underlying-per-share rate.
	RedemptionFactor() decimal.Decimal

	// RedemptionValue converts an asset amount to its redemption value.
	RedemptionValue(amount decimal.Decimal) decimal.Decimal

	// AssetOwedAmount converts a redemption value back to asset units.
	AssetOwedAmount(value decimal.Decimal) decimal.Decimal
}

// StaticOracle is an Oracle with an explicitly set factor. A factor of 1
// models a non-rebasing asset; tests advance yield by raising the factor.
type StaticOracle struct {
	mu     sync.RWMutex
	factor decimal.Decimal
}

// NewStaticOracle creates an oracle with the given starting factor.
func NewStaticOracle(factor decimal.Decimal) (*StaticOracle, error) {
	if factor.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidFactor
	}
	return &StaticOracle{factor: factor}, nil
}

// SetFactor replaces the redemption factor. Fails for factors <= 0.
func (o *StaticOracle) SetFactor(factor decimal.Decimal) error {
	if factor.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidFactor
	}
	o.mu.Lock()
	o.factor = factor
	o.mu.Unlock()
	return nil
}

func (o *StaticOracle) RedemptionFactor() decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.factor
}

func (o *StaticOracle) RedemptionValue(amount decimal.Decimal) decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return amount.Mul(o.factor)
}

func (o *StaticOracle) AssetOwedAmount(value decimal.Decimal) decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	owed, err := pdec.Div(value, o.factor)
	if err != nil {
		// factor is validated positive on every write
		return decimal.Zero
	}
	return pdec.RoundAmount(owed, pdec.AmountPlaces)
}

// LSUPoolAdapter derives the redemption factor of a liquid-stake-unit
// pool from its total value locked and outstanding unit supply:
// factor = TVL / supply.
type LSUPoolAdapter struct {
	mu         sync.RWMutex
	tvl        decimal.Decimal
	unitSupply decimal.Decimal
}

// NewLSUPoolAdapter creates an adapter over a pool snapshot.
func NewLSUPoolAdapter(tvl, unitSupply decimal.Decimal) (*LSUPoolAdapter, error) {
	if tvl.LessThanOrEqual(decimal.Zero) || unitSupply.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidFactor
	}
	return &LSUPoolAdapter{tvl: tvl, unitSupply: unitSupply}, nil
}

// UpdatePool refreshes the pool snapshot, typically after staking
// emissions land.
func (a *LSUPoolAdapter) UpdatePool(tvl, unitSupply decimal.Decimal) error {
	if tvl.LessThanOrEqual(decimal.Zero) || unitSupply.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidFactor
	}
	a.mu.Lock()
	a.tvl = tvl
	a.unitSupply = unitSupply
	a.mu.Unlock()
	return nil
}

func (a *LSUPoolAdapter) RedemptionFactor() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tvl.DivRound(a.unitSupply, pdec.PrecisePlaces)
}

func (a *LSUPoolAdapter) RedemptionValue(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(a.RedemptionFactor())
}

func (a *LSUPoolAdapter) AssetOwedAmount(value decimal.Decimal) decimal.Decimal {
	owed := value.DivRound(a.RedemptionFactor(), pdec.PrecisePlaces)
	return pdec.RoundAmount(owed, pdec.AmountPlaces)
}
