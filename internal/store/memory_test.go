package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testMarket(id, name string) *model.MarketRecord {
	return &model.MarketRecord{
		ID:                id,
		Name:              name,
		Maturity:          time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		ScalarRoot:        d(50),
		InitialRateAnchor: d(1.04),
		FeeRate:           d(1.01),
		ReserveFeePercent: d(0.5),
		Status:            model.StatusOpen,
		CreatedAt:         time.Now().UTC(),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateMarket(ctx, testMarket("m1", "lsu-2027")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "lsu-2027" {
		t.Errorf("unexpected name %q", got.Name)
	}

	byName, err := s.GetMarketByName(ctx, "lsu-2027")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if byName.ID != "m1" {
		t.Errorf("unexpected id %q", byName.ID)
	}

	if _, err := s.GetMarket(ctx, "nope"); err == nil {
		t.Error("expected error for unknown id")
	}
	if _, err := s.GetMarketByName(ctx, "nope"); err == nil {
		t.Error("expected error for unknown name")
	}
}

func TestMemoryStore_DuplicateName(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateMarket(ctx, testMarket("m1", "lsu-2027")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateMarket(ctx, testMarket("m2", "lsu-2027")); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestMemoryStore_CopiesOnReadAndWrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	m := testMarket("m1", "lsu-2027")
	if err := s.CreateMarket(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Mutating the caller's record must not leak into the store.
	m.Name = "mutated"
	got, err := s.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "lsu-2027" {
		t.Errorf("store leaked caller mutation: %q", got.Name)
	}

	// Nor the other way around.
	got.Status = model.StatusPaused
	again, err := s.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Status != model.StatusOpen {
		t.Errorf("store leaked reader mutation: %q", again.Status)
	}
}

func TestMemoryStore_UpdateSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateMarket(ctx, testMarket("m1", "lsu-2027")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.UpdateMarketSnapshot(ctx, "m1", d(0.04), d(1100), d(905)); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.LastLnImpliedRate.Equal(d(0.04)) || !got.TotalPTAmount.Equal(d(1100)) || !got.TotalAssetAmount.Equal(d(905)) {
		t.Errorf("snapshot not applied: %s / %s / %s",
			got.LastLnImpliedRate, got.TotalPTAmount, got.TotalAssetAmount)
	}

	if err := s.UpdateMarketSnapshot(ctx, "nope", d(0), d(0), d(0)); err == nil {
		t.Error("expected error for unknown market")
	}
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateMarket(ctx, testMarket("m1", "lsu-2027")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpdateMarketStatus(ctx, "m1", model.StatusPaused); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusPaused {
		t.Errorf("expected paused, got %q", got.Status)
	}
}

func TestMemoryStore_SwapsAndFeeSummary(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	swaps := []model.SwapRecord{
		{ID: "s1", MarketID: "m1", Side: "pt_to_asset", TradeVolume: d(100), TradingFees: d(0.2), ReserveFees: d(0.2), TotalFees: d(0.4)},
		{ID: "s2", MarketID: "m1", Side: "asset_to_pt", TradeVolume: d(50), TradingFees: d(0.1), ReserveFees: d(0.1), TotalFees: d(0.2)},
		{ID: "s3", MarketID: "m2", Side: "pt_to_asset", TradeVolume: d(9), TradingFees: d(1), ReserveFees: d(1), TotalFees: d(2)},
	}
	for i := range swaps {
		if err := s.InsertSwap(ctx, &swaps[i]); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	history, err := s.GetSwapsByMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 swaps for m1, got %d", len(history))
	}

	summary, err := s.GetFeeSummary(ctx, "m1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.SwapCount != 2 {
		t.Errorf("expected 2 swaps, got %d", summary.SwapCount)
	}
	if !summary.Volume.Equal(d(150)) {
		t.Errorf("expected volume 150, got %s", summary.Volume)
	}
	if !summary.TotalFees.Equal(d(0.6)) {
		t.Errorf("expected total fees 0.6, got %s", summary.TotalFees)
	}

	empty, err := s.GetFeeSummary(ctx, "m3")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if empty.SwapCount != 0 || !empty.TotalFees.IsZero() {
		t.Errorf("expected an empty summary, got %+v", empty)
	}
}
