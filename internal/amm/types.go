// Package amm implements the yield-trading market: the trade orchestrator
// that prices swaps between Principal Tokens and their underlying asset on
// the time-decaying logit curve, allocates fees, and maintains the
// interest-rate continuity of the market across trades.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Intermediate curve math runs at pdec.PrecisePlaces digits; amounts are
// rounded half-to-even at the asset's divisibility only where they leave
// the pricing core.
package amm

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/pool"
	"github.com/prism-terminal-defi/prism/internal/splitter"
)

var (
	// ErrMarketExpired is returned for trades or initialization at or
	// after maturity. Read-only queries keep working on expired markets.
	ErrMarketExpired = errors.New("amm: market has reached its maturity")

	// ErrMarketInactive is returned while trading is paused.
	ErrMarketInactive = errors.New("amm: market is not active")

	// ErrAlreadyInitialized is returned when the implied rate bootstrap
	// runs a second time.
	ErrAlreadyInitialized = errors.New("amm: initial ln implied rate has already been set")

	// ErrNotInitialized is returned for trades before the implied rate
	// bootstrap has run.
	ErrNotInitialized = errors.New("amm: market has no implied rate yet")

	// ErrMaxProportionReached is returned when a trade would push the
	// pool past the safety-margin proportion cap.
	ErrMaxProportionReached = errors.New("amm: swap larger than what is allowed by the market")

	// ErrInvalidAmount is returned for zero or negative trade sizes.
	ErrInvalidAmount = errors.New("amm: amount must be positive")

	// ErrInsufficientAsset is returned when the supplied asset does not
	// cover the required amount for the desired PT.
	ErrInsufficientAsset = errors.New("amm: insufficient asset for desired pt amount")
)

// MarketState is the per-market mutable pricing state. LastLnImpliedRate
// is zero until the one-shot initialization runs; once set, every trade's
// rate anchor is derived from it and it is rewritten after every trade.
type MarketState struct {
	ScalarRoot        decimal.Decimal `json:"scalar_root"`
	InitialRateAnchor decimal.Decimal `json:"initial_rate_anchor"`
	LastLnImpliedRate decimal.Decimal `json:"last_ln_implied_rate"`
}

// MarketFee is the immutable fee configuration. LnFeeRate stores
// ln(feeRate) so fee application can share the implied-rate
// annualization math.
type MarketFee struct {
	LnFeeRate         decimal.Decimal `json:"ln_fee_rate"`
	ReserveFeePercent decimal.Decimal `json:"reserve_fee_percent"`
}

// MarketCompute is derived once per trade, before any pool mutation, so
// the rate anchor reflects pre-trade state. The anchor is constructed so
// that the curve evaluated at the pre-trade proportion reproduces the
// last implied rate exactly.
type MarketCompute struct {
	RateScalar           decimal.Decimal `json:"rate_scalar"`
	RateAnchor           decimal.Decimal `json:"rate_anchor"`
	TotalPTAmount        decimal.Decimal `json:"total_pt_amount"`
	TotalBaseAssetAmount decimal.Decimal `json:"total_base_asset_amount"`
}

// PoolStat accumulates fees collected over the market's lifetime.
// TradingFeesCollected + ReserveFeesCollected == TotalFeesCollected
// at all times.
type PoolStat struct {
	TradingFeesCollected decimal.Decimal `json:"trading_fees_collected"`
	ReserveFeesCollected decimal.Decimal `json:"reserve_fees_collected"`
	TotalFeesCollected   decimal.Decimal `json:"total_fees_collected"`
}

// TradeQuote is the outcome of the trade math for a signed net-PT size:
// the counter-asset amount (in asset units, always positive) and the fee
// breakdown (in redemption-value terms).
type TradeQuote struct {
	NetAmount          decimal.Decimal `json:"net_amount"`
	PreFeeExchangeRate decimal.Decimal `json:"pre_fee_exchange_rate"`
	TotalFees          decimal.Decimal `json:"total_fees"`
	ReserveFee         decimal.Decimal `json:"reserve_fee"`
	TradingFee         decimal.Decimal `json:"trading_fee"`
}

// SwapResult is the structured trade record handed to the event sink
// after a successful swap.
type SwapResult struct {
	Side                   string          `json:"side"`
	SellSize               decimal.Decimal `json:"sell_size"`
	BuySize                decimal.Decimal `json:"buy_size"`
	TradeVolume            decimal.Decimal `json:"trade_volume"`
	ExchangeRateBeforeFees decimal.Decimal `json:"exchange_rate_before_fees"`
	ExchangeRateAfterFees  decimal.Decimal `json:"exchange_rate_after_fees"`
	ReserveFees            decimal.Decimal `json:"reserve_fees"`
	TradingFees            decimal.Decimal `json:"trading_fees"`
	TotalFees              decimal.Decimal `json:"total_fees"`
	EffectiveImpliedRate   decimal.Decimal `json:"effective_implied_rate"`
	TradeImpliedRate       decimal.Decimal `json:"trade_implied_rate"`
	NewImpliedRate         decimal.Decimal `json:"new_implied_rate"`
	Output                 decimal.Decimal `json:"output"`
	YTID                   string          `json:"yt_id,omitempty"`
}

// Pool is the liquidity pool the market trades against. Deposits and
// withdrawals move balances atomically with the trade; the market reads
// Reserves before the trade (for the anchor) and after (for the new
// implied rate) and must not reorder those reads.
type Pool interface {
	Reserves() pool.Reserves
	ProtectedDeposit(r pool.Resource, amount decimal.Decimal) error
	ProtectedWithdraw(r pool.Resource, amount decimal.Decimal) (decimal.Decimal, error)
	Contribute(ptAmount, assetAmount decimal.Decimal) (units, remainderPT, remainderAsset decimal.Decimal, err error)
	Redeem(units decimal.Decimal) (ptAmount, assetAmount decimal.Decimal, err error)
}

// Splitter is the token-splitting component the market uses as its
// redemption-factor oracle and, for YT swaps, as the tokenize/redeem
// counterparty.
type Splitter interface {
	RedemptionValue(amount decimal.Decimal) decimal.Decimal
	AssetOwedAmount(value decimal.Decimal) decimal.Decimal
	Tokenize(assetAmount decimal.Decimal, ytID string) (*splitter.TokenizeResult, error)
	Redeem(ptAmount decimal.Decimal, ytID string, ytRedeemAmount decimal.Decimal) (*splitter.RedeemResult, error)
	YieldToken(ytID string) (*splitter.YieldTokenData, error)
	Maturity() time.Time
}
