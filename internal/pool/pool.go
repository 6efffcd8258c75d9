// Package pool provides the two-resource liquidity pool backing a yield
// market: a PT bucket, an underlying-asset bucket, and LP units tracking
// proportional ownership of both.
//
// The pool is a resource custodian only. It knows nothing about pricing;
// the AMM reads Reserves before and after a trade and moves balances via
// ProtectedDeposit/ProtectedWithdraw. All monetary values use
// shopspring/decimal — never float64 for money.
package pool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/pdec"
)

// Resource identifies one of the pool's two buckets.
type Resource int

const (
	ResourcePT Resource = iota
	ResourceAsset
)

func (r Resource) String() string {
	if r == ResourcePT {
		return "pt"
	}
	return "asset"
}

var (
	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// bucket's balance.
	ErrInsufficientBalance = errors.New("pool: insufficient balance")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("pool: amount must be positive")

	// ErrInsufficientUnits is returned when redeeming more LP units than
	// are outstanding for the caller.
	ErrInsufficientUnits = errors.New("pool: insufficient pool units")
)

// Reserves is a snapshot of the pool's two buckets, read at trade time.
// Not persisted; recomputed per call.
type Reserves struct {
	TotalPTAmount    decimal.Decimal `json:"total_pt_amount"`
	TotalAssetAmount decimal.Decimal `json:"total_asset_amount"`
}

// TwoResourcePool holds PT and asset buckets with LP-unit accounting.
type TwoResourcePool struct {
	mu           sync.Mutex
	ptBalance    decimal.Decimal
	assetBalance decimal.Decimal
	unitSupply   decimal.Decimal
	divisibility int32
}

// New creates an empty pool whose amounts are rounded at the given
// divisibility on withdrawal.
func New(divisibility int32) *TwoResourcePool {
	return &TwoResourcePool{divisibility: divisibility}
}

// Reserves returns the current bucket balances.
func (p *TwoResourcePool) Reserves() Reserves {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Reserves{
		TotalPTAmount:    p.ptBalance,
		TotalAssetAmount: p.assetBalance,
	}
}

// UnitSupply returns the outstanding LP units.
func (p *TwoResourcePool) UnitSupply() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unitSupply
}

// Contribute adds PT and asset to the pool and mints LP units. On the
// first contribution units equal the contributed PT+asset total; after
// that, contributions are scaled to the current reserve ratio and any
// excess of the over-supplied side is returned as the remainder.
func (p *TwoResourcePool) Contribute(ptAmount, assetAmount decimal.Decimal) (units decimal.Decimal, remainderPT, remainderAsset decimal.Decimal, err error) {
	if ptAmount.IsNegative() || assetAmount.IsNegative() || ptAmount.Add(assetAmount).IsZero() {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, ErrInvalidAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unitSupply.IsZero() {
		p.ptBalance = p.ptBalance.Add(ptAmount)
		p.assetBalance = p.assetBalance.Add(assetAmount)
		p.unitSupply = ptAmount.Add(assetAmount)
		return p.unitSupply, decimal.Zero, decimal.Zero, nil
	}

	// Keep the reserve ratio: accept min(pt/ptReserve, asset/assetReserve)
	// of the pool and return the excess on the other side.
	ptRatio := ptAmount.DivRound(p.ptBalance, pdec.PrecisePlaces)
	assetRatio := assetAmount.DivRound(p.assetBalance, pdec.PrecisePlaces)

	ratio := ptRatio
	if assetRatio.LessThan(ptRatio) {
		ratio = assetRatio
	}

	acceptPT := pdec.RoundAmount(p.ptBalance.Mul(ratio), p.divisibility)
	acceptAsset := pdec.RoundAmount(p.assetBalance.Mul(ratio), p.divisibility)

	p.ptBalance = p.ptBalance.Add(acceptPT)
	p.assetBalance = p.assetBalance.Add(acceptAsset)

	units = pdec.RoundAmount(p.unitSupply.Mul(ratio), p.divisibility)
	p.unitSupply = p.unitSupply.Add(units)

	return units, ptAmount.Sub(acceptPT), assetAmount.Sub(acceptAsset), nil
}

// Redeem burns LP units for a proportional share of both buckets.
func (p *TwoResourcePool) Redeem(units decimal.Decimal) (ptAmount, assetAmount decimal.Decimal, err error) {
	if units.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, decimal.Decimal{}, ErrInvalidAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if units.GreaterThan(p.unitSupply) {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("%w: redeeming %s of %s", ErrInsufficientUnits, units, p.unitSupply)
	}

	share := units.DivRound(p.unitSupply, pdec.PrecisePlaces)
	ptAmount = pdec.RoundAmount(p.ptBalance.Mul(share), p.divisibility)
	assetAmount = pdec.RoundAmount(p.assetBalance.Mul(share), p.divisibility)

	p.ptBalance = p.ptBalance.Sub(ptAmount)
	p.assetBalance = p.assetBalance.Sub(assetAmount)
	p.unitSupply = p.unitSupply.Sub(units)

	return ptAmount, assetAmount, nil
}

// ProtectedDeposit adds amount to one bucket. The AMM is the only caller;
// it deposits exactly what the trade math produced.
func (p *TwoResourcePool) ProtectedDeposit(r Resource, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch r {
	case ResourcePT:
		p.ptBalance = p.ptBalance.Add(amount)
	case ResourceAsset:
		p.assetBalance = p.assetBalance.Add(amount)
	}
	return nil
}

// ProtectedWithdraw removes amount (rounded half-to-even at the pool's
// divisibility) from one bucket and returns the withdrawn amount.
func (p *TwoResourcePool) ProtectedWithdraw(r Resource, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	rounded := pdec.RoundAmount(amount, p.divisibility)

	p.mu.Lock()
	defer p.mu.Unlock()

	switch r {
	case ResourcePT:
		if rounded.GreaterThan(p.ptBalance) {
			return decimal.Decimal{}, fmt.Errorf("%w: withdrawing %s pt of %s", ErrInsufficientBalance, rounded, p.ptBalance)
		}
		p.ptBalance = p.ptBalance.Sub(rounded)
	case ResourceAsset:
		if rounded.GreaterThan(p.assetBalance) {
			return decimal.Decimal{}, fmt.Errorf("%w: withdrawing %s asset of %s", ErrInsufficientBalance, rounded, p.assetBalance)
		}
		p.assetBalance = p.assetBalance.Sub(rounded)
	}
	return rounded, nil
}
