package pool

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestContribute_FirstContribution(t *testing.T) {
	p := New(18)

	units, remPT, remAsset, err := p.Contribute(d(1000), d(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !units.Equal(d(1500)) {
		t.Errorf("first contribution should mint pt+asset units, got %s", units)
	}
	if !remPT.IsZero() || !remAsset.IsZero() {
		t.Errorf("first contribution should have no remainder, got %s / %s", remPT, remAsset)
	}

	res := p.Reserves()
	if !res.TotalPTAmount.Equal(d(1000)) || !res.TotalAssetAmount.Equal(d(500)) {
		t.Errorf("unexpected reserves: %s / %s", res.TotalPTAmount, res.TotalAssetAmount)
	}
}

func TestContribute_MatchesReserveRatio(t *testing.T) {
	p := New(18)
	if _, _, _, err := p.Contribute(d(1000), d(500)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Asset side over-supplied: only 100 asset matches 200 PT at 2:1.
	units, remPT, remAsset, err := p.Contribute(d(200), d(300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !units.Equal(d(300)) {
		t.Errorf("expected 300 units (20%% of 1500), got %s", units)
	}
	if !remPT.IsZero() {
		t.Errorf("expected no PT remainder, got %s", remPT)
	}
	if !remAsset.Equal(d(200)) {
		t.Errorf("expected 200 asset returned, got %s", remAsset)
	}

	res := p.Reserves()
	if !res.TotalPTAmount.Equal(d(1200)) || !res.TotalAssetAmount.Equal(d(600)) {
		t.Errorf("unexpected reserves after ratio match: %s / %s", res.TotalPTAmount, res.TotalAssetAmount)
	}
}

func TestContribute_InvalidAmounts(t *testing.T) {
	p := New(18)
	if _, _, _, err := p.Contribute(decimal.Zero, decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero contribution: expected ErrInvalidAmount, got %v", err)
	}
	if _, _, _, err := p.Contribute(d(-1), d(10)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative pt: expected ErrInvalidAmount, got %v", err)
	}
}

func TestRedeem_Proportional(t *testing.T) {
	p := New(18)
	if _, _, _, err := p.Contribute(d(1000), d(500)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	pt, asset, err := p.Redeem(d(150))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pt.Equal(d(100)) || !asset.Equal(d(50)) {
		t.Errorf("10%% redemption should yield 100 pt / 50 asset, got %s / %s", pt, asset)
	}
	if !p.UnitSupply().Equal(d(1350)) {
		t.Errorf("expected 1350 units outstanding, got %s", p.UnitSupply())
	}
}

func TestRedeem_FullDrain(t *testing.T) {
	p := New(18)
	if _, _, _, err := p.Contribute(d(1000), d(500)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	pt, asset, err := p.Redeem(d(1500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pt.Equal(d(1000)) || !asset.Equal(d(500)) {
		t.Errorf("full redemption should empty the pool, got %s / %s", pt, asset)
	}

	res := p.Reserves()
	if !res.TotalPTAmount.IsZero() || !res.TotalAssetAmount.IsZero() || !p.UnitSupply().IsZero() {
		t.Errorf("pool should be empty: %s / %s / %s", res.TotalPTAmount, res.TotalAssetAmount, p.UnitSupply())
	}
}

func TestRedeem_Errors(t *testing.T) {
	p := New(18)
	if _, _, err := p.Redeem(d(10)); !errors.Is(err, ErrInsufficientUnits) {
		t.Errorf("empty pool: expected ErrInsufficientUnits, got %v", err)
	}
	if _, _, err := p.Redeem(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero units: expected ErrInvalidAmount, got %v", err)
	}

	if _, _, _, err := p.Contribute(d(100), d(100)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := p.Redeem(d(201)); !errors.Is(err, ErrInsufficientUnits) {
		t.Errorf("over-redeem: expected ErrInsufficientUnits, got %v", err)
	}
}

func TestProtectedDeposit(t *testing.T) {
	p := New(18)

	if err := p.ProtectedDeposit(ResourcePT, d(25)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.ProtectedDeposit(ResourceAsset, d(75)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := p.Reserves()
	if !res.TotalPTAmount.Equal(d(25)) || !res.TotalAssetAmount.Equal(d(75)) {
		t.Errorf("unexpected reserves: %s / %s", res.TotalPTAmount, res.TotalAssetAmount)
	}

	if err := p.ProtectedDeposit(ResourcePT, decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero deposit: expected ErrInvalidAmount, got %v", err)
	}
}

func TestProtectedWithdraw(t *testing.T) {
	p := New(18)
	if err := p.ProtectedDeposit(ResourceAsset, d(100)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := p.ProtectedWithdraw(ResourceAsset, d(40))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(d(40)) {
		t.Errorf("expected 40 withdrawn, got %s", got)
	}
	if !p.Reserves().TotalAssetAmount.Equal(d(60)) {
		t.Errorf("expected 60 remaining, got %s", p.Reserves().TotalAssetAmount)
	}

	if _, err := p.ProtectedWithdraw(ResourceAsset, d(61)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("overdraw: expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := p.ProtectedWithdraw(ResourcePT, d(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("empty pt bucket: expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := p.ProtectedWithdraw(ResourceAsset, d(-5)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount: expected ErrInvalidAmount, got %v", err)
	}
}

func TestProtectedWithdraw_RoundsAtDivisibility(t *testing.T) {
	p := New(2)
	if err := p.ProtectedDeposit(ResourceAsset, d(10)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := p.ProtectedWithdraw(ResourceAsset, d(1.005))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Half-to-even at two places.
	if !got.Equal(d(1)) {
		t.Errorf("expected 1.00 withdrawn, got %s", got)
	}
}

func TestResourceString(t *testing.T) {
	if ResourcePT.String() != "pt" || ResourceAsset.String() != "asset" {
		t.Errorf("unexpected resource names: %s / %s", ResourcePT, ResourceAsset)
	}
}
