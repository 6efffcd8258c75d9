package splitter

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/adapter"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var tolerance = d(0.000000001)

func approxEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

type testEnv struct {
	splitter *Splitter
	oracle   *adapter.StaticOracle
	now      time.Time
	maturity time.Time
}

func newTestEnv(t *testing.T, lateFee decimal.Decimal) *testEnv {
	t.Helper()

	env := &testEnv{
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		maturity: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}

	oracle, err := adapter.NewStaticOracle(d(1))
	if err != nil {
		t.Fatalf("oracle: %v", err)
	}
	env.oracle = oracle

	s, err := New(oracle, Config{
		Maturity:     env.maturity,
		LateFee:      lateFee,
		Divisibility: 18,
		Now:          func() time.Time { return env.now },
	})
	if err != nil {
		t.Fatalf("splitter: %v", err)
	}
	env.splitter = s
	return env
}

func (env *testEnv) advance(dur time.Duration) {
	env.now = env.now.Add(dur)
}

func TestTokenize_MintsEqualPTAndYT(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	res, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.PTMinted.Equal(d(100)) {
		t.Errorf("expected 100 PT at factor 1, got %s", res.PTMinted)
	}
	if !res.YTAmount.Equal(d(100)) {
		t.Errorf("expected 100 YT, got %s", res.YTAmount)
	}
	if res.YTID == "" {
		t.Error("expected a YT id")
	}
	if !env.splitter.PTSupply().Equal(d(100)) {
		t.Errorf("expected PT supply 100, got %s", env.splitter.PTSupply())
	}
}

func TestTokenize_AppreciatedAsset(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)
	if err := env.oracle.SetFactor(d(1.25)); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	env.advance(time.Hour)

	res, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.PTMinted.Equal(d(125)) {
		t.Errorf("100 units at factor 1.25 should mint 125 PT, got %s", res.PTMinted)
	}
}

func TestTokenize_TopUpExistingYT(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	first, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("first tokenize: %v", err)
	}

	second, err := env.splitter.Tokenize(d(50), first.YTID)
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if second.YTID != first.YTID {
		t.Errorf("top up should reuse the YT id: %s vs %s", second.YTID, first.YTID)
	}
	if !second.YTAmount.Equal(d(150)) {
		t.Errorf("expected 150 YT after top up, got %s", second.YTAmount)
	}
}

func TestTokenize_TopUpSettlesPendingYield(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	first, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("first tokenize: %v", err)
	}

	if err := env.oracle.SetFactor(d(1.1)); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	env.advance(time.Hour)

	// The 10 of yield earned so far must survive the top up.
	if _, err := env.splitter.Tokenize(d(50), first.YTID); err != nil {
		t.Fatalf("top up: %v", err)
	}

	yt, err := env.splitter.YieldToken(first.YTID)
	if err != nil {
		t.Fatalf("yield token: %v", err)
	}
	if !approxEqual(yt.AccruedYield, d(10)) {
		t.Errorf("expected 10 accrued yield settled, got %s", yt.AccruedYield)
	}

	owed, err := env.splitter.YieldOwed(first.YTID)
	if err != nil {
		t.Fatalf("yield owed: %v", err)
	}
	if !approxEqual(owed, d(10)) {
		t.Errorf("pending yield should be unchanged by the top up, got %s", owed)
	}
}

func TestTokenize_Errors(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	if _, err := env.splitter.Tokenize(decimal.Zero, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := env.splitter.Tokenize(d(10), "no-such-yt"); !errors.Is(err, ErrUnknownYT) {
		t.Errorf("unknown yt: expected ErrUnknownYT, got %v", err)
	}

	env.splitter.SetActive(false)
	if _, err := env.splitter.Tokenize(d(10), ""); !errors.Is(err, ErrInactive) {
		t.Errorf("paused: expected ErrInactive, got %v", err)
	}
	env.splitter.SetActive(true)

	env.now = env.maturity
	if _, err := env.splitter.Tokenize(d(10), ""); !errors.Is(err, ErrExpired) {
		t.Errorf("at maturity: expected ErrExpired, got %v", err)
	}
}

func TestYieldOwed_TracksFactorGrowth(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	res, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	owed, err := env.splitter.YieldOwed(res.YTID)
	if err != nil {
		t.Fatalf("yield owed: %v", err)
	}
	if !owed.IsZero() {
		t.Errorf("no growth yet, expected zero yield, got %s", owed)
	}

	if err := env.oracle.SetFactor(d(1.1)); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	env.advance(time.Hour)

	owed, err = env.splitter.YieldOwed(res.YTID)
	if err != nil {
		t.Fatalf("yield owed: %v", err)
	}
	if !approxEqual(owed, d(10)) {
		t.Errorf("10%% growth on 100 principal should owe 10, got %s", owed)
	}
}

func TestClaimYield_PaysInAssetUnits(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	res, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if err := env.oracle.SetFactor(d(1.1)); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	env.advance(time.Hour)

	claim, err := env.splitter.ClaimYield(res.YTID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// 10 of underlying at factor 1.1 is 10/1.1 asset units.
	if !approxEqual(claim.AssetOwed, d(9.090909090909)) {
		t.Errorf("unexpected payout: %s", claim.AssetOwed)
	}
	if claim.YTBurned {
		t.Error("claim before maturity must not burn the YT")
	}

	yt, err := env.splitter.YieldToken(res.YTID)
	if err != nil {
		t.Fatalf("yield token: %v", err)
	}
	if !approxEqual(yt.YieldClaimed, d(10)) {
		t.Errorf("expected 10 recorded as claimed, got %s", yt.YieldClaimed)
	}

	owed, err := env.splitter.YieldOwed(res.YTID)
	if err != nil {
		t.Fatalf("yield owed: %v", err)
	}
	if !owed.IsZero() {
		t.Errorf("yield should be zero right after a claim, got %s", owed)
	}
}

func TestClaimYield_AfterMaturityBurnsYT(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	res, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if err := env.oracle.SetFactor(d(1.1)); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	env.now = env.maturity.Add(time.Hour)

	claim, err := env.splitter.ClaimYield(res.YTID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claim.YTBurned {
		t.Error("claim after maturity should burn the YT")
	}
	if _, err := env.splitter.YieldToken(res.YTID); !errors.Is(err, ErrUnknownYT) {
		t.Errorf("burned YT should be gone, got %v", err)
	}
}

func TestRedeem_Full(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	res, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	redeemed, err := env.splitter.Redeem(d(100), res.YTID, d(100))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !redeemed.AssetOwed.Equal(d(100)) {
		t.Errorf("expected the full deposit back, got %s", redeemed.AssetOwed)
	}
	if !redeemed.YTBurned {
		t.Error("full redemption should burn the YT")
	}
	if !env.splitter.PTSupply().IsZero() {
		t.Errorf("PT supply should be zero, got %s", env.splitter.PTSupply())
	}
}

func TestRedeem_PartialCarriesYieldForward(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	res, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if err := env.oracle.SetFactor(d(1.1)); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	env.advance(time.Hour)

	redeemed, err := env.splitter.Redeem(d(40), res.YTID, d(40))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	// 40 principal plus its 4 of yield, back at factor 1.1: exactly 40 units.
	if !approxEqual(redeemed.AssetOwed, d(40)) {
		t.Errorf("expected 40 asset units, got %s", redeemed.AssetOwed)
	}
	if redeemed.YTBurned {
		t.Error("partial redemption must not burn the YT")
	}
	if !redeemed.YTRemaining.Equal(d(60)) {
		t.Errorf("expected 60 YT left, got %s", redeemed.YTRemaining)
	}

	// The other 6 of earned yield stays claimable.
	owed, err := env.splitter.YieldOwed(res.YTID)
	if err != nil {
		t.Fatalf("yield owed: %v", err)
	}
	if !approxEqual(owed, d(6)) {
		t.Errorf("expected 6 yield carried forward, got %s", owed)
	}
}

func TestRedeem_Errors(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	res, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	if _, err := env.splitter.Redeem(d(10), res.YTID, d(20)); !errors.Is(err, ErrAmountMismatch) {
		t.Errorf("mismatch: expected ErrAmountMismatch, got %v", err)
	}
	if _, err := env.splitter.Redeem(d(200), res.YTID, d(200)); !errors.Is(err, ErrInsufficientYT) {
		t.Errorf("over-redeem: expected ErrInsufficientYT, got %v", err)
	}
	if _, err := env.splitter.Redeem(d(10), "no-such-yt", d(10)); !errors.Is(err, ErrUnknownYT) {
		t.Errorf("unknown yt: expected ErrUnknownYT, got %v", err)
	}
	if _, err := env.splitter.Redeem(decimal.Zero, res.YTID, decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amounts: expected ErrInvalidAmount, got %v", err)
	}
}

func TestRedemptionFactor_LockedAtMaturity(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	if _, err := env.splitter.Tokenize(d(100), ""); err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if err := env.oracle.SetFactor(d(1.05)); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	env.now = env.maturity.Add(time.Hour)

	if !env.splitter.RedemptionFactor().Equal(d(1.05)) {
		t.Fatalf("expected factor locked at 1.05, got %s", env.splitter.RedemptionFactor())
	}

	// Post-maturity appreciation no longer accrues to YT holders.
	if err := env.oracle.SetFactor(d(1.5)); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	if !env.splitter.RedemptionFactor().Equal(d(1.05)) {
		t.Errorf("locked factor moved to %s", env.splitter.RedemptionFactor())
	}
}

func TestLateFee_ChargedAfterGracePeriod(t *testing.T) {
	env := newTestEnv(t, d(0.1))

	first, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	second, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	// Within 24h of maturity: no fee.
	env.now = env.maturity.Add(time.Hour)
	redeemed, err := env.splitter.Redeem(d(100), first.YTID, d(100))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !redeemed.AssetOwed.Equal(d(100)) {
		t.Errorf("no fee inside the grace period, got %s", redeemed.AssetOwed)
	}
	if !env.splitter.FeeVault().IsZero() {
		t.Errorf("fee vault should be empty, got %s", env.splitter.FeeVault())
	}

	// Past the grace period: 10% skimmed.
	env.now = env.maturity.Add(25 * time.Hour)
	redeemed, err = env.splitter.Redeem(d(100), second.YTID, d(100))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !redeemed.AssetOwed.Equal(d(90)) {
		t.Errorf("expected 90 after the 10%% late fee, got %s", redeemed.AssetOwed)
	}
	if !env.splitter.FeeVault().Equal(d(10)) {
		t.Errorf("expected 10 in the fee vault, got %s", env.splitter.FeeVault())
	}
}

func TestNew_RejectsInvalidLateFee(t *testing.T) {
	oracle, err := adapter.NewStaticOracle(d(1))
	if err != nil {
		t.Fatalf("oracle: %v", err)
	}
	if _, err := New(oracle, Config{LateFee: d(1)}); err == nil {
		t.Error("late fee of 1 should be rejected")
	}
	if _, err := New(oracle, Config{LateFee: d(-0.1)}); err == nil {
		t.Error("negative late fee should be rejected")
	}
}

func TestRedeemPT_BeforeMaturity(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)
	if _, err := env.splitter.Tokenize(d(100), ""); err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	if _, err := env.splitter.RedeemPT(d(100)); !errors.Is(err, ErrNotExpired) {
		t.Errorf("expected ErrNotExpired, got %v", err)
	}
}

func TestRedeemPT_AfterMaturity(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)
	if _, err := env.splitter.Tokenize(d(100), ""); err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	env.now = env.maturity.Add(time.Hour)

	res, err := env.splitter.RedeemPT(d(40))
	if err != nil {
		t.Fatalf("redeem pt: %v", err)
	}
	if !res.AssetOwed.Equal(d(40)) {
		t.Errorf("expected 40 asset at factor 1, got %s", res.AssetOwed)
	}
	if !res.PTBurned.Equal(d(40)) {
		t.Errorf("expected 40 PT burned, got %s", res.PTBurned)
	}
	if !env.splitter.PTSupply().Equal(d(60)) {
		t.Errorf("expected PT supply 60, got %s", env.splitter.PTSupply())
	}

	if _, err := env.splitter.RedeemPT(d(100)); !errors.Is(err, ErrInsufficientPT) {
		t.Errorf("expected ErrInsufficientPT, got %v", err)
	}
	if _, err := env.splitter.RedeemPT(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRedeemPT_AppreciatedAsset(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)
	if err := env.oracle.SetFactor(d(1.1)); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	env.advance(time.Hour)

	// 100 asset at factor 1.1 mints 110 PT against a 100-asset vault.
	if _, err := env.splitter.Tokenize(d(100), ""); err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	env.now = env.maturity.Add(time.Hour)
	res, err := env.splitter.RedeemPT(d(110))
	if err != nil {
		t.Fatalf("redeem pt: %v", err)
	}
	if !approxEqual(res.AssetOwed, d(100)) {
		t.Errorf("expected the full 100-asset vault, got %s", res.AssetOwed)
	}
	if !env.splitter.PTSupply().IsZero() {
		t.Errorf("expected PT supply 0, got %s", env.splitter.PTSupply())
	}
}

func TestRedeemPT_LateFee(t *testing.T) {
	env := newTestEnv(t, d(0.1))
	if _, err := env.splitter.Tokenize(d(100), ""); err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	env.now = env.maturity.Add(25 * time.Hour)

	res, err := env.splitter.RedeemPT(d(100))
	if err != nil {
		t.Fatalf("redeem pt: %v", err)
	}
	if !res.AssetOwed.Equal(d(90)) {
		t.Errorf("expected 90 asset after the 10%% late fee, got %s", res.AssetOwed)
	}
	if !env.splitter.FeeVault().Equal(d(10)) {
		t.Errorf("expected 10 in the fee vault, got %s", env.splitter.FeeVault())
	}
}

func TestMergeYT_PreservesClaimableYield(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	first, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	second, err := env.splitter.Tokenize(d(50), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	if err := env.oracle.SetFactor(d(1.1)); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	env.advance(time.Hour)

	merged, err := env.splitter.MergeYT([]string{first.YTID, second.YTID})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !merged.YTAmount.Equal(d(150)) {
		t.Errorf("expected 150 YT combined, got %s", merged.YTAmount)
	}
	if !approxEqual(merged.AccruedYield, d(15)) {
		t.Errorf("expected 15 accrued yield, got %s", merged.AccruedYield)
	}

	// The sources are burned; the merged token owes what they owed.
	if _, err := env.splitter.YieldToken(first.YTID); !errors.Is(err, ErrUnknownYT) {
		t.Errorf("expected first YT burned, got %v", err)
	}
	if _, err := env.splitter.YieldToken(second.YTID); !errors.Is(err, ErrUnknownYT) {
		t.Errorf("expected second YT burned, got %v", err)
	}
	owed, err := env.splitter.YieldOwed(merged.ID)
	if err != nil {
		t.Fatalf("yield owed: %v", err)
	}
	if !approxEqual(owed, d(15)) {
		t.Errorf("expected 15 claimable after merge, got %s", owed)
	}
}

func TestMergeYT_Errors(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	res, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	if _, err := env.splitter.MergeYT([]string{res.YTID}); !errors.Is(err, ErrMergeTooFew) {
		t.Errorf("expected ErrMergeTooFew, got %v", err)
	}
	if _, err := env.splitter.MergeYT([]string{res.YTID, "nope"}); !errors.Is(err, ErrUnknownYT) {
		t.Errorf("expected ErrUnknownYT, got %v", err)
	}
	if _, err := env.splitter.MergeYT([]string{res.YTID, res.YTID}); err == nil {
		t.Error("expected an error for a duplicated id")
	}

	env.splitter.SetActive(false)
	if _, err := env.splitter.MergeYT([]string{res.YTID, res.YTID}); !errors.Is(err, ErrInactive) {
		t.Errorf("expected ErrInactive, got %v", err)
	}
}

func TestMergeYT_AfterMaturity(t *testing.T) {
	env := newTestEnv(t, decimal.Zero)

	first, err := env.splitter.Tokenize(d(100), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	second, err := env.splitter.Tokenize(d(50), "")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	// Merging is bookkeeping only, so it stays open past maturity.
	env.now = env.maturity.Add(time.Hour)
	merged, err := env.splitter.MergeYT([]string{first.YTID, second.YTID})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !merged.YTAmount.Equal(d(150)) {
		t.Errorf("expected 150 YT combined, got %s", merged.YTAmount)
	}
}
