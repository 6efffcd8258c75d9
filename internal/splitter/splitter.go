// Package splitter implements the prism splitter: it wraps a
// yield-bearing asset and mints redeemable Principal Tokens (PT) and
// Yield Tokens (YT) against it.
//
// PT redeems 1:1 for the underlying redemption value at maturity; YT
// accrues the yield earned by the deposited asset until maturity. Yield
// accounting is driven by the redemption factor: the ratio by which the
// deposited asset has appreciated since a YT's last claim. At maturity
// the factor is locked so post-maturity appreciation no longer accrues
// to YT holders.
//
// All monetary values use shopspring/decimal — never float64 for money.
package splitter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/adapter"
	"github.com/prism-terminal-defi/prism/internal/pdec"
)

var (
	// ErrExpired is returned when tokenizing after maturity.
	ErrExpired = errors.New("splitter: market has reached its maturity")

	// ErrInactive is returned while the splitter is paused.
	ErrInactive = errors.New("splitter: not active")

	// ErrUnknownYT is returned for an unrecognized YT id.
	ErrUnknownYT = errors.New("splitter: unknown yield token")

	// ErrInsufficientYT is returned when redeeming more than a YT holds.
	ErrInsufficientYT = errors.New("splitter: insufficient yt amount")

	// ErrAmountMismatch is returned when PT and YT redemption amounts
	// differ; PT and YT must be burned in equal redemption value.
	ErrAmountMismatch = errors.New("splitter: pt and yt amounts must match")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("splitter: amount must be positive")

	// ErrNotExpired is returned when redeeming PT alone before maturity.
	ErrNotExpired = errors.New("splitter: market has not reached its maturity")

	// ErrInsufficientPT is returned when burning more PT than outstanding.
	ErrInsufficientPT = errors.New("splitter: insufficient pt supply")

	// ErrMergeTooFew is returned when merging fewer than two YTs.
	ErrMergeTooFew = errors.New("splitter: merge requires at least two yield tokens")
)

// YieldTokenData is the per-YT accounting record.
type YieldTokenData struct {
	ID                        string          `json:"id"`
	LastClaimRedemptionFactor decimal.Decimal `json:"last_claim_redemption_factor"`
	YTAmount                  decimal.Decimal `json:"yt_amount"`
	YieldClaimed              decimal.Decimal `json:"yield_claimed"`
	AccruedYield              decimal.Decimal `json:"accrued_yield"`
	MaturityDate              time.Time       `json:"maturity_date"`
}

type redemptionStrategy int

const (
	fullRedemption redemptionStrategy = iota
	partialRedemption
	expiredMarket
)

// Splitter holds the asset vault and the PT/YT books for one maturity.
type Splitter struct {
	mu     sync.Mutex
	oracle adapter.Oracle

	maturity time.Time
	now      func() time.Time

	redemptionFactor       decimal.Decimal
	lockedRedemptionFactor bool
	lastFactorUpdate       time.Time

	assetVault   decimal.Decimal
	feeVault     decimal.Decimal
	ptSupply     decimal.Decimal
	lateFee      decimal.Decimal
	active       bool
	divisibility int32

	yts map[string]*YieldTokenData
}

// Config carries the splitter's construction parameters.
type Config struct {
	Maturity     time.Time
	LateFee      decimal.Decimal // fraction charged one day after maturity
	Divisibility int32
	Now          func() time.Time // defaults to time.Now
}

// New creates a splitter over the given redemption oracle.
func New(oracle adapter.Oracle, cfg Config) (*Splitter, error) {
	if cfg.LateFee.IsNegative() || cfg.LateFee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errors.New("splitter: late fee must be in [0,1)")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Splitter{
		oracle:           oracle,
		maturity:         cfg.Maturity,
		now:              now,
		redemptionFactor: oracle.RedemptionFactor(),
		lastFactorUpdate: now().UTC(),
		lateFee:          cfg.LateFee,
		active:           true,
		divisibility:     cfg.Divisibility,
		yts:              make(map[string]*YieldTokenData),
	}, nil
}

// TokenizeResult reports what a Tokenize call minted or updated.
type TokenizeResult struct {
	AmountTokenized decimal.Decimal `json:"amount_tokenized"`
	PTMinted        decimal.Decimal `json:"pt_amount_minted"`
	YTID            string          `json:"yt_id"`
	YTAmount        decimal.Decimal `json:"yt_amount"`
}

// Tokenize deposits assetAmount of the yield-bearing asset and mints PT
// and YT worth its current redemption value. Passing an existing YT id
// tops that token up instead of minting a new one; its pending yield is
// settled into accrued yield first so the new principal doesn't dilute it.
func (s *Splitter) Tokenize(assetAmount decimal.Decimal, ytID string) (*TokenizeResult, error) {
	if assetAmount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrInactive
	}
	if s.isExpiredLocked() {
		return nil, ErrExpired
	}
	s.updateRedemptionFactorLocked()

	redemptionValue := s.oracle.RedemptionValue(assetAmount)

	s.ptSupply = s.ptSupply.Add(redemptionValue)
	s.assetVault = s.assetVault.Add(assetAmount)

	var yt *YieldTokenData
	if ytID != "" {
		existing, ok := s.yts[ytID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownYT, ytID)
		}
		pending := s.yieldOwedLocked(existing, existing.YTAmount)
		existing.AccruedYield = existing.AccruedYield.Add(
			pdec.RoundAmount(pending, s.divisibility))
		existing.YTAmount = existing.YTAmount.Add(redemptionValue)
		existing.LastClaimRedemptionFactor = s.redemptionFactor
		yt = existing
	} else {
		yt = &YieldTokenData{
			ID:                        uuid.New().String(),
			LastClaimRedemptionFactor: s.redemptionFactor,
			YTAmount:                  redemptionValue,
			MaturityDate:              s.maturity,
		}
		s.yts[yt.ID] = yt
	}

	return &TokenizeResult{
		AmountTokenized: assetAmount,
		PTMinted:        redemptionValue,
		YTID:            yt.ID,
		YTAmount:        yt.YTAmount,
	}, nil
}

// RedeemResult reports what a Redeem call returned and burned.
type RedeemResult struct {
	AssetOwed   decimal.Decimal `json:"asset_amount_owed"`
	PTBurned    decimal.Decimal `json:"pt_amount_burned"`
	YTBurned    bool            `json:"yt_burned"`
	YTRemaining decimal.Decimal `json:"yt_remaining"`
}

// Redeem burns equal amounts of PT and YT for the underlying asset plus
// any yield the YT has earned. A full redemption (or any redemption after
// maturity) burns the YT; a partial redemption before maturity carries
// the unredeemed principal and its remaining yield forward.
func (s *Splitter) Redeem(ptAmount decimal.Decimal, ytID string, ytRedeemAmount decimal.Decimal) (*RedeemResult, error) {
	if ptAmount.LessThanOrEqual(decimal.Zero) || ytRedeemAmount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if !ptAmount.Equal(ytRedeemAmount) {
		return nil, fmt.Errorf("%w: pt %s, yt %s", ErrAmountMismatch, ptAmount, ytRedeemAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrInactive
	}
	s.updateRedemptionFactorLocked()

	yt, ok := s.yts[ytID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownYT, ytID)
	}
	if ytRedeemAmount.GreaterThan(yt.YTAmount) {
		return nil, fmt.Errorf("%w: redeeming %s of %s", ErrInsufficientYT, ytRedeemAmount, yt.YTAmount)
	}

	strategy := partialRedemption
	if ytRedeemAmount.Equal(yt.YTAmount) {
		strategy = fullRedemption
	} else if s.isExpiredLocked() {
		strategy = expiredMarket
	}

	var newAccruedYield, totalRedemptionValue decimal.Decimal
	switch strategy {
	case fullRedemption, expiredMarket:
		yieldOwed := s.totalYieldOwedLocked(yt)
		newAccruedYield = decimal.Zero
		totalRedemptionValue = ptAmount.Add(yieldOwed)
	case partialRedemption:
		proportionalYield := pdec.RoundAmount(
			s.yieldOwedLocked(yt, ptAmount), s.divisibility)
		totalRedemptionValue = ptAmount.Add(proportionalYield)
		newAccruedYield = s.totalYieldOwedLocked(yt).Sub(proportionalYield)
	}

	assetOwed := s.oracle.AssetOwedAmount(totalRedemptionValue)
	if assetOwed.GreaterThan(s.assetVault) {
		assetOwed = s.assetVault
	}
	s.assetVault = s.assetVault.Sub(assetOwed)
	assetOwed = s.chargeLateFeeLocked(assetOwed)

	s.ptSupply = s.ptSupply.Sub(ptAmount)

	res := &RedeemResult{
		AssetOwed: assetOwed,
		PTBurned:  ptAmount,
	}

	switch strategy {
	case fullRedemption, expiredMarket:
		delete(s.yts, ytID)
		res.YTBurned = true
	case partialRedemption:
		yt.YTAmount = yt.YTAmount.Sub(ytRedeemAmount)
		yt.AccruedYield = newAccruedYield
		yt.LastClaimRedemptionFactor = s.redemptionFactor
		res.YTRemaining = yt.YTAmount
	}

	return res, nil
}

// RedeemPT burns ptAmount of PT alone for the underlying asset. Only
// available after maturity, when the redemption factor is locked and PT
// redeems at face value without a matching YT.
func (s *Splitter) RedeemPT(ptAmount decimal.Decimal) (*RedeemResult, error) {
	if ptAmount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrInactive
	}
	if !s.isExpiredLocked() {
		return nil, ErrNotExpired
	}
	if ptAmount.GreaterThan(s.ptSupply) {
		return nil, fmt.Errorf("%w: burning %s of %s", ErrInsufficientPT, ptAmount, s.ptSupply)
	}
	s.updateRedemptionFactorLocked()

	assetOwed := s.oracle.AssetOwedAmount(ptAmount)
	if assetOwed.GreaterThan(s.assetVault) {
		assetOwed = s.assetVault
	}
	s.assetVault = s.assetVault.Sub(assetOwed)
	assetOwed = s.chargeLateFeeLocked(assetOwed)

	s.ptSupply = s.ptSupply.Sub(ptAmount)

	return &RedeemResult{
		AssetOwed: assetOwed,
		PTBurned:  ptAmount,
	}, nil
}

// MergeYT combines two or more YTs of this maturity into a single new
// token. Each source's pending yield is settled into the merged token's
// accrued yield, so nothing claimable is lost in the merge.
func (s *Splitter) MergeYT(ytIDs []string) (*YieldTokenData, error) {
	if len(ytIDs) < 2 {
		return nil, ErrMergeTooFew
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrInactive
	}
	s.updateRedemptionFactorLocked()

	sources := make([]*YieldTokenData, 0, len(ytIDs))
	seen := make(map[string]bool, len(ytIDs))
	for _, id := range ytIDs {
		if seen[id] {
			return nil, fmt.Errorf("splitter: duplicate yield token %s", id)
		}
		seen[id] = true
		yt, ok := s.yts[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownYT, id)
		}
		sources = append(sources, yt)
	}

	merged := &YieldTokenData{
		ID:                        uuid.New().String(),
		LastClaimRedemptionFactor: s.redemptionFactor,
		MaturityDate:              s.maturity,
	}
	for _, yt := range sources {
		merged.YTAmount = merged.YTAmount.Add(yt.YTAmount)
		merged.YieldClaimed = merged.YieldClaimed.Add(yt.YieldClaimed)
		merged.AccruedYield = merged.AccruedYield.Add(s.totalYieldOwedLocked(yt))
		delete(s.yts, yt.ID)
	}
	s.yts[merged.ID] = merged

	cp := *merged
	return &cp, nil
}

// ClaimYield pays out the yield a YT has earned since its last claim,
// denominated in the yield-bearing asset. Claims after maturity also burn
// the YT, since no further yield can accrue to it.
func (s *Splitter) ClaimYield(ytID string) (*RedeemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrInactive
	}
	s.updateRedemptionFactorLocked()

	yt, ok := s.yts[ytID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownYT, ytID)
	}

	yieldOwed := s.totalYieldOwedLocked(yt)
	assetOwed := s.oracle.AssetOwedAmount(yieldOwed)
	if assetOwed.GreaterThan(s.assetVault) {
		assetOwed = s.assetVault
	}
	s.assetVault = s.assetVault.Sub(assetOwed)
	assetOwed = s.chargeLateFeeLocked(assetOwed)

	res := &RedeemResult{AssetOwed: assetOwed}

	if s.isExpiredLocked() {
		delete(s.yts, ytID)
		res.YTBurned = true
		return res, nil
	}

	yt.YieldClaimed = yt.YieldClaimed.Add(yieldOwed)
	yt.AccruedYield = decimal.Zero
	yt.LastClaimRedemptionFactor = s.redemptionFactor
	res.YTRemaining = yt.YTAmount
	return res, nil
}

// YieldOwed returns the currently claimable yield for a YT.
func (s *Splitter) YieldOwed(ytID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateRedemptionFactorLocked()
	yt, ok := s.yts[ytID]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownYT, ytID)
	}
	return s.totalYieldOwedLocked(yt), nil
}

// YieldToken returns a copy of a YT's accounting record.
func (s *Splitter) YieldToken(ytID string) (*YieldTokenData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	yt, ok := s.yts[ytID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownYT, ytID)
	}
	cp := *yt
	return &cp, nil
}

// RedemptionValue converts asset units to redemption value via the live
// oracle. Used by the AMM to normalize pool reserves.
func (s *Splitter) RedemptionValue(amount decimal.Decimal) decimal.Decimal {
	return s.oracle.RedemptionValue(amount)
}

// AssetOwedAmount converts a redemption value back to asset units.
func (s *Splitter) AssetOwedAmount(value decimal.Decimal) decimal.Decimal {
	return s.oracle.AssetOwedAmount(value)
}

// RedemptionFactor returns the splitter's tracked (possibly locked)
// redemption factor.
func (s *Splitter) RedemptionFactor() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateRedemptionFactorLocked()
	return s.redemptionFactor
}

// PTSupply returns the outstanding PT.
func (s *Splitter) PTSupply() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ptSupply
}

// Maturity returns the splitter's maturity date.
func (s *Splitter) Maturity() time.Time {
	return s.maturity
}

// FeeVault returns the late fees collected so far.
func (s *Splitter) FeeVault() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeVault
}

// SetActive pauses or resumes the splitter.
func (s *Splitter) SetActive(active bool) {
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
}

// yieldOwedLocked computes the yield earned by ytAmount (plus its accrued
// compounding) since the YT's last claim, in redemption-value terms:
//
//	owed = (ytAmount + accrued) * (factor/lastFactor - 1)
func (s *Splitter) yieldOwedLocked(yt *YieldTokenData, ytAmount decimal.Decimal) decimal.Decimal {
	growth := s.redemptionFactor.
		DivRound(yt.LastClaimRedemptionFactor, pdec.PrecisePlaces).
		Sub(decimal.NewFromInt(1))
	return ytAmount.Add(yt.AccruedYield).Mul(growth)
}

// totalYieldOwedLocked adds previously settled accrued yield, rounded
// toward the asset's divisibility.
func (s *Splitter) totalYieldOwedLocked(yt *YieldTokenData) decimal.Decimal {
	owed := s.yieldOwedLocked(yt, yt.YTAmount).Add(yt.AccruedYield)
	return pdec.RoundAmount(owed, s.divisibility)
}

// updateRedemptionFactorLocked pulls the oracle factor, locking it the
// first time the clock passes maturity.
func (s *Splitter) updateRedemptionFactorLocked() {
	now := s.now().UTC()

	if !now.Before(s.maturity) {
		if !s.lockedRedemptionFactor {
			s.redemptionFactor = s.oracle.RedemptionFactor()
			s.lockedRedemptionFactor = true
			s.lastFactorUpdate = now
		}
		return
	}

	if now.After(s.lastFactorUpdate) && s.assetVault.IsPositive() {
		s.redemptionFactor = s.oracle.RedemptionFactor()
		s.lastFactorUpdate = now
	}
}

func (s *Splitter) isExpiredLocked() bool {
	return !s.now().UTC().Before(s.maturity)
}

// chargeLateFeeLocked skims the late fee from a payout made more than a
// day after maturity.
func (s *Splitter) chargeLateFeeLocked(assetOwed decimal.Decimal) decimal.Decimal {
	if s.lateFee.IsZero() {
		return assetOwed
	}
	if s.now().UTC().Before(s.maturity.Add(24 * time.Hour)) {
		return assetOwed
	}
	fee := pdec.RoundAmount(assetOwed.Mul(s.lateFee), s.divisibility)
	s.feeVault = s.feeVault.Add(fee)
	return assetOwed.Sub(fee)
}
