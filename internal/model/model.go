// Package model defines the core domain types shared across the prism engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market statuses.
const (
	StatusOpen    = "open"
	StatusPaused  = "paused"
	StatusExpired = "expired"
)

// MarketRecord is the persisted configuration and latest snapshot of one
// yield market. Pricing happens in memory; the snapshot columns are
// rewritten after every swap so restarts and dashboards see fresh state.
type MarketRecord struct {
	ID                string          `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	Maturity          time.Time       `json:"maturity" db:"maturity"`
	ScalarRoot        decimal.Decimal `json:"scalar_root" db:"scalar_root"`
	InitialRateAnchor decimal.Decimal `json:"initial_rate_anchor" db:"initial_rate_anchor"`
	FeeRate           decimal.Decimal `json:"fee_rate" db:"fee_rate"`
	ReserveFeePercent decimal.Decimal `json:"reserve_fee_percent" db:"reserve_fee_percent"`
	LateFee           decimal.Decimal `json:"late_fee" db:"late_fee"`
	Status            string          `json:"status" db:"status"`

	// Snapshot, updated after every swap and liquidity change.
	LastLnImpliedRate decimal.Decimal `json:"last_ln_implied_rate" db:"last_ln_implied_rate"`
	TotalPTAmount     decimal.Decimal `json:"total_pt_amount" db:"total_pt_amount"`
	TotalAssetAmount  decimal.Decimal `json:"total_asset_amount" db:"total_asset_amount"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SwapRecord is an immutable record of one executed swap.
// Once created, these are never modified or deleted.
type SwapRecord struct {
	ID                     string          `json:"id" db:"id"`
	MarketID               string          `json:"market_id" db:"market_id"`
	Side                   string          `json:"side" db:"side"` // pt_to_asset, asset_to_pt, asset_to_yt, yt_to_asset
	SellSize               decimal.Decimal `json:"sell_size" db:"sell_size"`
	BuySize                decimal.Decimal `json:"buy_size" db:"buy_size"`
	TradeVolume            decimal.Decimal `json:"trade_volume" db:"trade_volume"`
	ExchangeRateBeforeFees decimal.Decimal `json:"exchange_rate_before_fees" db:"exchange_rate_before_fees"`
	ExchangeRateAfterFees  decimal.Decimal `json:"exchange_rate_after_fees" db:"exchange_rate_after_fees"`
	ReserveFees            decimal.Decimal `json:"reserve_fees" db:"reserve_fees"`
	TradingFees            decimal.Decimal `json:"trading_fees" db:"trading_fees"`
	TotalFees              decimal.Decimal `json:"total_fees" db:"total_fees"`
	EffectiveImpliedRate   decimal.Decimal `json:"effective_implied_rate" db:"effective_implied_rate"`
	TradeImpliedRate       decimal.Decimal `json:"trade_implied_rate" db:"trade_implied_rate"`
	NewImpliedRate         decimal.Decimal `json:"new_implied_rate" db:"new_implied_rate"`
	Output                 decimal.Decimal `json:"output" db:"output"`
	YTID                   string          `json:"yt_id,omitempty" db:"yt_id"`
	Timestamp              time.Time       `json:"timestamp" db:"timestamp"`
}

// FeeSummary aggregates a market's swap records.
type FeeSummary struct {
	MarketID    string          `json:"market_id"`
	SwapCount   int64           `json:"swap_count"`
	Volume      decimal.Decimal `json:"volume"`
	TradingFees decimal.Decimal `json:"trading_fees"`
	ReserveFees decimal.Decimal `json:"reserve_fees"`
	TotalFees   decimal.Decimal `json:"total_fees"`
}
