package amm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/curve"
	"github.com/prism-terminal-defi/prism/internal/pdec"
	"github.com/prism-terminal-defi/prism/internal/pool"
)

// Swap sides as they appear in trade records.
const (
	SidePTToAsset = "pt_to_asset"
	SideAssetToPT = "asset_to_pt"
	SideAssetToYT = "asset_to_yt"
	SideYTToAsset = "yt_to_asset"
)

var one = decimal.NewFromInt(1)

// Config carries a market's construction parameters. FeeRate and
// ReserveFeePercent are fixed for the market's lifetime; MaxProportion
// defaults to 0.96 when zero.
type Config struct {
	ScalarRoot        decimal.Decimal
	InitialRateAnchor decimal.Decimal
	FeeRate           decimal.Decimal // annualized, must be >= 1
	ReserveFeePercent decimal.Decimal // fraction of fees diverted to the reserve
	MaxProportion     decimal.Decimal
	Divisibility      int32
	Now               func() time.Time // defaults to time.Now
}

// Market prices PT<->asset swaps against a two-resource pool on the
// time-decaying logit curve and keeps the implied rate continuous
// across trades. One mutex serializes all trades on a market; pricing
// depends on reserves read both before and after the pool mutation, so
// trades cannot interleave.
type Market struct {
	mu sync.Mutex

	pool     Pool
	splitter Splitter

	state MarketState
	fee   MarketFee
	stat  PoolStat

	maxProportion decimal.Decimal
	divisibility  int32
	maturity      time.Time
	now           func() time.Time
	active        bool
}

// New creates a market over the given pool and splitter. The maturity is
// taken from the splitter; the market stays Uninitialized (no implied
// rate) until the first liquidity is added.
func New(p Pool, s Splitter, cfg Config) (*Market, error) {
	if p == nil || s == nil {
		return nil, errors.New("amm: pool and splitter are required")
	}
	if !cfg.ScalarRoot.IsPositive() {
		return nil, errors.New("amm: scalar root must be positive")
	}
	if cfg.InitialRateAnchor.LessThan(one) {
		return nil, errors.New("amm: initial rate anchor must be at least 1")
	}
	if cfg.FeeRate.LessThan(one) {
		return nil, errors.New("amm: fee rate must be at least 1")
	}
	if cfg.ReserveFeePercent.IsNegative() || cfg.ReserveFeePercent.GreaterThan(one) {
		return nil, errors.New("amm: reserve fee percent must be in [0,1]")
	}

	maxProportion := cfg.MaxProportion
	if maxProportion.IsZero() {
		maxProportion = decimal.NewFromFloat(0.96)
	}
	if !maxProportion.IsPositive() || maxProportion.GreaterThanOrEqual(one) {
		return nil, errors.New("amm: max proportion must be in (0,1)")
	}

	lnFeeRate, err := pdec.Ln(cfg.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("amm: fee rate: %w", err)
	}

	divisibility := cfg.Divisibility
	if divisibility == 0 {
		divisibility = pdec.AmountPlaces
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Market{
		pool:     p,
		splitter: s,
		state: MarketState{
			ScalarRoot:        cfg.ScalarRoot,
			InitialRateAnchor: cfg.InitialRateAnchor,
		},
		fee: MarketFee{
			LnFeeRate:         lnFeeRate,
			ReserveFeePercent: cfg.ReserveFeePercent,
		},
		maxProportion: maxProportion,
		divisibility:  divisibility,
		maturity:      s.Maturity(),
		now:           now,
		active:        true,
	}, nil
}

// State returns a copy of the market's pricing state.
func (m *Market) State() MarketState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FeeConfig returns the market's fee configuration.
func (m *Market) FeeConfig() MarketFee {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fee
}

// Stat returns the fees collected so far.
func (m *Market) Stat() PoolStat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stat
}

// Reserves returns the current pool reserves.
func (m *Market) Reserves() pool.Reserves {
	return m.pool.Reserves()
}

// Maturity returns the market's maturity date.
func (m *Market) Maturity() time.Time {
	return m.maturity
}

// CheckMaturity reports whether maturity has lapsed.
func (m *Market) CheckMaturity() bool {
	return !m.now().UTC().Before(m.maturity)
}

// TimeToExpiry returns the seconds remaining until maturity. Negative
// once the market has expired.
func (m *Market) TimeToExpiry() int64 {
	return m.maturity.Unix() - m.now().UTC().Unix()
}

// ImpliedRate returns the market's annualized exchange rate,
// exp(lastLnImpliedRate). Returns 1 while uninitialized.
func (m *Market) ImpliedRate() (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pdec.Exp(m.state.LastLnImpliedRate)
}

// SetActive pauses or resumes trading. Liquidity operations are not
// affected.
func (m *Market) SetActive(active bool) {
	m.mu.Lock()
	m.active = active
	m.mu.Unlock()
}

// Initialize sets the market's first implied rate from the given rate
// anchor and the current reserves. One-shot: fails once the rate is set.
func (m *Market) Initialize(initialRateAnchor decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initializeLocked(initialRateAnchor)
}

func (m *Market) initializeLocked(initialRateAnchor decimal.Decimal) error {
	if !m.state.LastLnImpliedRate.IsZero() {
		return ErrAlreadyInitialized
	}
	if m.checkMaturityLocked() {
		return ErrMarketExpired
	}

	timeToExpiry := m.timeToExpiryLocked()

	rateScalar, err := curve.CalcRateScalar(m.state.ScalarRoot, timeToExpiry)
	if err != nil {
		return err
	}

	reserves := m.pool.Reserves()
	totalBase := m.splitter.RedemptionValue(reserves.TotalAssetAmount)

	newImpliedRate, err := m.lnImpliedRateFromState(
		timeToExpiry, reserves.TotalPTAmount, totalBase,
		initialRateAnchor, rateScalar)
	if err != nil {
		return err
	}

	m.state.LastLnImpliedRate = newImpliedRate
	return nil
}

// ComputeMarket derives the pricing inputs for a trade at the given time
// to expiry: the decayed rate scalar and the rate anchor that reproduces
// the last implied rate at the current (pre-trade) proportion.
func (m *Market) ComputeMarket(timeToExpiry int64) (MarketCompute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.computeMarketLocked(timeToExpiry)
}

func (m *Market) computeMarketLocked(timeToExpiry int64) (MarketCompute, error) {
	if m.state.LastLnImpliedRate.IsZero() {
		return MarketCompute{}, ErrNotInitialized
	}

	rateScalar, err := curve.CalcRateScalar(m.state.ScalarRoot, timeToExpiry)
	if err != nil {
		return MarketCompute{}, err
	}

	reserves := m.pool.Reserves()
	totalBase := m.splitter.RedemptionValue(reserves.TotalAssetAmount)

	proportion, err := curve.CalcProportion(
		decimal.Zero, reserves.TotalPTAmount, totalBase)
	if err != nil {
		return MarketCompute{}, err
	}

	rateAnchor, err := curve.CalcRateAnchor(
		m.state.LastLnImpliedRate, proportion, timeToExpiry, rateScalar)
	if err != nil {
		return MarketCompute{}, err
	}

	return MarketCompute{
		RateScalar:           rateScalar,
		RateAnchor:           rateAnchor,
		TotalPTAmount:        reserves.TotalPTAmount,
		TotalBaseAssetAmount: totalBase,
	}, nil
}

// CalcTrade quotes a trade of netPTAmount PT (positive: PT flows out of
// the pool to the trader) without touching any state. The returned
// NetAmount is in asset units and always positive; its direction follows
// the sign of netPTAmount.
func (m *Market) CalcTrade(netPTAmount decimal.Decimal, timeToExpiry int64, mc MarketCompute) (*TradeQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calcTradeLocked(netPTAmount, timeToExpiry, mc)
}

func (m *Market) calcTradeLocked(netPTAmount decimal.Decimal, timeToExpiry int64, mc MarketCompute) (*TradeQuote, error) {
	proportion, err := curve.CalcProportion(
		netPTAmount, mc.TotalPTAmount, mc.TotalBaseAssetAmount)
	if err != nil {
		return nil, err
	}
	if proportion.GreaterThan(m.maxProportion) {
		return nil, fmt.Errorf("%w: trade proportion %s", ErrMaxProportionReached, proportion)
	}

	preFeeExchangeRate, err := curve.CalcExchangeRate(
		proportion, mc.RateAnchor, mc.RateScalar)
	if err != nil {
		return nil, err
	}

	preFeeAmount, err := pdec.Div(netPTAmount.Neg(), preFeeExchangeRate)
	if err != nil {
		return nil, err
	}
	preFeeAmount = pdec.RoundAmount(preFeeAmount, m.divisibility)

	totalFees, err := curve.CalcFee(
		m.fee.LnFeeRate, timeToExpiry, netPTAmount,
		preFeeExchangeRate, preFeeAmount)
	if err != nil {
		return nil, err
	}

	reserveFee := pdec.RoundAmount(
		totalFees.Mul(m.fee.ReserveFeePercent), m.divisibility)
	tradingFee := pdec.RoundAmount(
		totalFees.Sub(reserveFee), m.divisibility)

	// Pre-fee amount is negative when the trader pays asset in, so the
	// trading fee already points the right way; the reserve cut is folded
	// in per direction below.
	netAmount := pdec.RoundAmount(
		preFeeAmount.Sub(tradingFee), m.divisibility)

	if netAmount.IsNegative() {
		// asset -> PT
		netAmount = pdec.RoundAmount(
			netAmount.Add(reserveFee).Abs(), m.divisibility)
	} else {
		// PT -> asset
		netAmount = pdec.RoundAmount(
			netAmount.Sub(reserveFee), m.divisibility)
	}

	netAmount = m.splitter.AssetOwedAmount(netAmount)

	return &TradeQuote{
		NetAmount:          netAmount,
		PreFeeExchangeRate: preFeeExchangeRate,
		TotalFees:          totalFees,
		ReserveFee:         reserveFee,
		TradingFee:         tradingFee,
	}, nil
}

// updateLnImpliedRate recomputes the implied rate from the post-trade
// reserves with the pre-trade anchor and scalar, so the curve's decay
// between trades never jumps the rate.
func (m *Market) updateLnImpliedRateLocked(timeToExpiry int64, mc MarketCompute) (decimal.Decimal, error) {
	reserves := m.pool.Reserves()
	totalBase := m.splitter.RedemptionValue(reserves.TotalAssetAmount)

	return m.lnImpliedRateFromState(
		timeToExpiry, reserves.TotalPTAmount, totalBase,
		mc.RateAnchor, mc.RateScalar)
}

func (m *Market) lnImpliedRateFromState(
	timeToExpiry int64,
	totalPT, totalBase decimal.Decimal,
	rateAnchor, rateScalar decimal.Decimal,
) (decimal.Decimal, error) {
	proportion, err := curve.CalcProportion(decimal.Zero, totalPT, totalBase)
	if err != nil {
		return decimal.Decimal{}, err
	}

	exchangeRate, err := curve.CalcExchangeRate(proportion, rateAnchor, rateScalar)
	if err != nil {
		return decimal.Decimal{}, err
	}

	lnRate, err := pdec.Ln(exchangeRate)
	if err != nil {
		return decimal.Decimal{}, err
	}

	// Annualize: ln(rate) * period / timeToExpiry.
	return lnRate.Mul(decimal.NewFromInt(curve.PeriodSize)).
		DivRound(decimal.NewFromInt(timeToExpiry), pdec.PrecisePlaces), nil
}

func (m *Market) updatePoolStatLocked(tradingFee, reserveFee, totalFees decimal.Decimal) {
	m.stat.TradingFeesCollected = m.stat.TradingFeesCollected.Add(tradingFee)
	m.stat.ReserveFeesCollected = m.stat.ReserveFeesCollected.Add(reserveFee)
	m.stat.TotalFeesCollected = m.stat.TotalFeesCollected.Add(totalFees)
}

// allInRateToImpliedRate annualizes a realized exchange rate into an
// implied rate over the remaining term: rate^(period/timeToExpiry) - 1.
// The exponent is fractional for markets more than one period out, so
// the power is taken as exp(exponent * ln(rate)).
func allInRateToImpliedRate(exchangeRate decimal.Decimal, timeToExpiry int64) (decimal.Decimal, error) {
	lnRate, err := pdec.Ln(exchangeRate)
	if err != nil {
		return decimal.Decimal{}, err
	}
	periods := decimal.NewFromInt(curve.PeriodSize).
		DivRound(decimal.NewFromInt(timeToExpiry), pdec.PrecisePlaces)
	grown, err := pdec.Exp(periods.Mul(lnRate))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return grown.Sub(one), nil
}

func (m *Market) checkMaturityLocked() bool {
	return !m.now().UTC().Before(m.maturity)
}

func (m *Market) timeToExpiryLocked() int64 {
	return m.maturity.Unix() - m.now().UTC().Unix()
}

func (m *Market) guardTradeLocked() error {
	if m.checkMaturityLocked() {
		return ErrMarketExpired
	}
	if !m.active {
		return ErrMarketInactive
	}
	return nil
}
