package amm

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/pdec"
	"github.com/prism-terminal-defi/prism/internal/pool"
	"github.com/prism-terminal-defi/prism/internal/splitter"
)

// SwapExactPTForAsset sells ptAmount PT into the pool for asset.
func (m *Market) SwapExactPTForAsset(ptAmount decimal.Decimal) (*SwapResult, error) {
	if !ptAmount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.guardTradeLocked(); err != nil {
		return nil, err
	}

	timeToExpiry := m.timeToExpiryLocked()
	mc, err := m.computeMarketLocked(timeToExpiry)
	if err != nil {
		return nil, err
	}

	quote, err := m.calcTradeLocked(ptAmount.Neg(), timeToExpiry, mc)
	if err != nil {
		return nil, err
	}

	allInRate, err := pdec.Div(ptAmount, quote.NetAmount)
	if err != nil {
		return nil, fmt.Errorf("amm: all-in exchange rate: %w", err)
	}

	if err := m.pool.ProtectedDeposit(pool.ResourcePT, ptAmount); err != nil {
		return nil, err
	}
	assetOut, err := m.pool.ProtectedWithdraw(pool.ResourceAsset, quote.NetAmount)
	if err != nil {
		return nil, err
	}

	m.updatePoolStatLocked(quote.TradingFee, quote.ReserveFee, quote.TotalFees)

	newImpliedRate, err := m.updateLnImpliedRateLocked(timeToExpiry, mc)
	if err != nil {
		return nil, err
	}
	tradeImpliedRate := m.state.LastLnImpliedRate
	m.state.LastLnImpliedRate = newImpliedRate

	effectiveImpliedRate, err := allInRateToImpliedRate(allInRate, timeToExpiry)
	if err != nil {
		return nil, err
	}

	return &SwapResult{
		Side:                   SidePTToAsset,
		SellSize:               ptAmount,
		BuySize:                assetOut,
		TradeVolume:            ptAmount,
		ExchangeRateBeforeFees: quote.PreFeeExchangeRate,
		ExchangeRateAfterFees:  allInRate,
		ReserveFees:            quote.ReserveFee,
		TradingFees:            quote.TradingFee,
		TotalFees:              quote.TotalFees,
		EffectiveImpliedRate:   effectiveImpliedRate,
		TradeImpliedRate:       tradeImpliedRate,
		NewImpliedRate:         newImpliedRate,
		Output:                 assetOut,
	}, nil
}

// SwapExactAssetForPT buys exactly desiredPTAmount PT, taking only the
// required asset out of availableAsset. SellSize in the result carries
// the asset actually taken; the caller keeps the rest.
func (m *Market) SwapExactAssetForPT(availableAsset, desiredPTAmount decimal.Decimal) (*SwapResult, error) {
	if !availableAsset.IsPositive() || !desiredPTAmount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.guardTradeLocked(); err != nil {
		return nil, err
	}

	timeToExpiry := m.timeToExpiryLocked()
	mc, err := m.computeMarketLocked(timeToExpiry)
	if err != nil {
		return nil, err
	}

	quote, err := m.calcTradeLocked(desiredPTAmount, timeToExpiry, mc)
	if err != nil {
		return nil, err
	}

	requiredAsset := quote.NetAmount
	if requiredAsset.GreaterThan(availableAsset) {
		return nil, fmt.Errorf("%w: need %s, have %s",
			ErrInsufficientAsset, requiredAsset, availableAsset)
	}

	allInRate, err := pdec.Div(desiredPTAmount, requiredAsset)
	if err != nil {
		return nil, fmt.Errorf("amm: all-in exchange rate: %w", err)
	}

	if err := m.pool.ProtectedDeposit(pool.ResourceAsset, requiredAsset); err != nil {
		return nil, err
	}
	ptOut, err := m.pool.ProtectedWithdraw(pool.ResourcePT, desiredPTAmount)
	if err != nil {
		return nil, err
	}

	m.updatePoolStatLocked(quote.TradingFee, quote.ReserveFee, quote.TotalFees)

	newImpliedRate, err := m.updateLnImpliedRateLocked(timeToExpiry, mc)
	if err != nil {
		return nil, err
	}
	tradeImpliedRate := m.state.LastLnImpliedRate
	m.state.LastLnImpliedRate = newImpliedRate

	effectiveImpliedRate, err := allInRateToImpliedRate(allInRate, timeToExpiry)
	if err != nil {
		return nil, err
	}

	return &SwapResult{
		Side:                   SideAssetToPT,
		SellSize:               requiredAsset,
		BuySize:                ptOut,
		TradeVolume:            desiredPTAmount,
		ExchangeRateBeforeFees: quote.PreFeeExchangeRate,
		ExchangeRateAfterFees:  allInRate,
		ReserveFees:            quote.ReserveFee,
		TradingFees:            quote.TradingFee,
		TotalFees:              quote.TotalFees,
		EffectiveImpliedRate:   effectiveImpliedRate,
		TradeImpliedRate:       tradeImpliedRate,
		NewImpliedRate:         newImpliedRate,
		Output:                 ptOut,
	}, nil
}

// SwapExactAssetForYT buys YT with assetAmount via a flash swap: the
// pool lends the asset priced by guessPTToSwapIn, the combined asset is
// tokenized, the minted PT repays the pool, and the trader keeps the YT.
// Passing an existing ytID tops that token up instead of minting a new
// one.
func (m *Market) SwapExactAssetForYT(assetAmount, guessPTToSwapIn decimal.Decimal, ytID string) (*SwapResult, error) {
	if !assetAmount.IsPositive() || !guessPTToSwapIn.IsPositive() {
		return nil, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.guardTradeLocked(); err != nil {
		return nil, err
	}

	var prevYTAmount decimal.Decimal
	if ytID != "" {
		yt, err := m.splitter.YieldToken(ytID)
		if err != nil {
			return nil, err
		}
		prevYTAmount = yt.YTAmount
	}

	timeToExpiry := m.timeToExpiryLocked()
	mc, err := m.computeMarketLocked(timeToExpiry)
	if err != nil {
		return nil, err
	}

	quote, err := m.calcTradeLocked(guessPTToSwapIn.Neg(), timeToExpiry, mc)
	if err != nil {
		return nil, err
	}

	borrowedAsset, err := m.pool.ProtectedWithdraw(pool.ResourceAsset, quote.NetAmount)
	if err != nil {
		return nil, err
	}

	tokenized, err := m.splitter.Tokenize(assetAmount.Add(borrowedAsset), ytID)
	if err != nil {
		// Return the flash-swapped asset before surfacing the error.
		if depErr := m.pool.ProtectedDeposit(pool.ResourceAsset, borrowedAsset); depErr != nil {
			return nil, fmt.Errorf("amm: tokenize failed (%w) and flash repay failed: %v", err, depErr)
		}
		return nil, err
	}

	// The minted PT repays the pool for the borrowed asset.
	if err := m.pool.ProtectedDeposit(pool.ResourcePT, tokenized.PTMinted); err != nil {
		return nil, err
	}

	ytReceived := tokenized.YTAmount.Sub(prevYTAmount)

	m.updatePoolStatLocked(quote.TradingFee, quote.ReserveFee, quote.TotalFees)

	newImpliedRate, err := m.updateLnImpliedRateLocked(timeToExpiry, mc)
	if err != nil {
		return nil, err
	}
	tradeImpliedRate := m.state.LastLnImpliedRate
	m.state.LastLnImpliedRate = newImpliedRate

	allInRate := ytAllInRate(assetAmount, ytReceived)

	effectiveImpliedRate, err := allInRateToImpliedRate(allInRate, timeToExpiry)
	if err != nil {
		return nil, err
	}

	return &SwapResult{
		Side:                   SideAssetToYT,
		SellSize:               assetAmount,
		BuySize:                ytReceived,
		TradeVolume:            tokenized.PTMinted,
		ExchangeRateBeforeFees: quote.PreFeeExchangeRate,
		ExchangeRateAfterFees:  allInRate,
		ReserveFees:            quote.ReserveFee,
		TradingFees:            quote.TradingFee,
		TotalFees:              quote.TotalFees,
		EffectiveImpliedRate:   effectiveImpliedRate,
		TradeImpliedRate:       tradeImpliedRate,
		NewImpliedRate:         newImpliedRate,
		Output:                 ytReceived,
		YTID:                   tokenized.YTID,
	}, nil
}

// SwapExactYTForAsset sells ytAmount of a YT for asset: the pool lends
// an equal amount of PT, PT and YT redeem the underlying asset, part of
// the asset repays the pool and the rest goes to the trader.
func (m *Market) SwapExactYTForAsset(ytID string, ytAmount decimal.Decimal) (*SwapResult, error) {
	if !ytAmount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.guardTradeLocked(); err != nil {
		return nil, err
	}

	yt, err := m.splitter.YieldToken(ytID)
	if err != nil {
		return nil, err
	}
	if ytAmount.GreaterThan(yt.YTAmount) {
		return nil, fmt.Errorf("%w: swapping %s of %s",
			splitter.ErrInsufficientYT, ytAmount, yt.YTAmount)
	}

	timeToExpiry := m.timeToExpiryLocked()
	mc, err := m.computeMarketLocked(timeToExpiry)
	if err != nil {
		return nil, err
	}

	quote, err := m.calcTradeLocked(ytAmount, timeToExpiry, mc)
	if err != nil {
		return nil, err
	}

	ptWithdrawn, err := m.pool.ProtectedWithdraw(pool.ResourcePT, ytAmount)
	if err != nil {
		return nil, err
	}

	redeemed, err := m.splitter.Redeem(ptWithdrawn, ytID, ytAmount)
	if err != nil {
		// Return the flash-swapped PT before surfacing the error.
		if depErr := m.pool.ProtectedDeposit(pool.ResourcePT, ptWithdrawn); depErr != nil {
			return nil, fmt.Errorf("amm: redeem failed (%w) and flash repay failed: %v", err, depErr)
		}
		return nil, err
	}

	// Repay no more than what the redemption produced; the pool never
	// pays out on a losing flash swap.
	repayAsset := decimal.Min(quote.NetAmount, redeemed.AssetOwed)
	if repayAsset.IsPositive() {
		if err := m.pool.ProtectedDeposit(pool.ResourceAsset, repayAsset); err != nil {
			return nil, err
		}
	}
	assetOut := redeemed.AssetOwed.Sub(repayAsset)

	m.updatePoolStatLocked(quote.TradingFee, quote.ReserveFee, quote.TotalFees)

	newImpliedRate, err := m.updateLnImpliedRateLocked(timeToExpiry, mc)
	if err != nil {
		return nil, err
	}
	tradeImpliedRate := m.state.LastLnImpliedRate
	m.state.LastLnImpliedRate = newImpliedRate

	allInRate := ytAllInRate(assetOut, ytAmount)

	effectiveImpliedRate, err := allInRateToImpliedRate(allInRate, timeToExpiry)
	if err != nil {
		return nil, err
	}

	res := &SwapResult{
		Side:                   SideYTToAsset,
		SellSize:               ytAmount,
		BuySize:                assetOut,
		TradeVolume:            ptWithdrawn,
		ExchangeRateBeforeFees: quote.PreFeeExchangeRate,
		ExchangeRateAfterFees:  allInRate,
		ReserveFees:            quote.ReserveFee,
		TradingFees:            quote.TradingFee,
		TotalFees:              quote.TotalFees,
		EffectiveImpliedRate:   effectiveImpliedRate,
		TradeImpliedRate:       tradeImpliedRate,
		NewImpliedRate:         newImpliedRate,
		Output:                 assetOut,
	}
	if !redeemed.YTBurned {
		res.YTID = ytID
	}
	return res, nil
}

// AddLiquidity contributes PT and asset to the pool at the current
// reserve ratio, returning LP units and any unmatched remainders. The
// first contribution bootstraps the market's implied rate from the
// configured initial rate anchor.
func (m *Market) AddLiquidity(ptAmount, assetAmount decimal.Decimal) (units, remainderPT, remainderAsset decimal.Decimal, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.checkMaturityLocked() {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, ErrMarketExpired
	}

	units, remainderPT, remainderAsset, err = m.pool.Contribute(ptAmount, assetAmount)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, err
	}

	if m.state.LastLnImpliedRate.IsZero() {
		if err := m.initializeLocked(m.state.InitialRateAnchor); err != nil {
			// The bootstrap only runs against the first contribution, so
			// redeeming the minted units drains exactly what came in.
			if _, _, rbErr := m.pool.Redeem(units); rbErr != nil {
				return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{},
					fmt.Errorf("amm: bootstrap failed (%w) and rollback failed: %v", err, rbErr)
			}
			return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, err
		}
	}

	return units, remainderPT, remainderAsset, nil
}

// RemoveLiquidity redeems LP units for the underlying PT and asset.
// Works on expired markets.
func (m *Market) RemoveLiquidity(units decimal.Decimal) (ptAmount, assetAmount decimal.Decimal, err error) {
	return m.pool.Redeem(units)
}

// ytAllInRate expresses a realized asset-per-YT price as a PT exchange
// rate, 1/(1 - assetPerYT), clamped to 1 for degenerate fills.
func ytAllInRate(assetAmount, ytAmount decimal.Decimal) decimal.Decimal {
	if !ytAmount.IsPositive() {
		return one
	}
	perYT := assetAmount.DivRound(ytAmount, pdec.PrecisePlaces)
	denom := one.Sub(perYT)
	if !denom.IsPositive() {
		return one
	}
	rate := one.DivRound(denom, pdec.PrecisePlaces)
	if rate.IsNegative() {
		return one
	}
	return rate
}
