// Package service provides the HTTP handlers and business logic for
// creating yield markets, executing swaps, and managing PT/YT positions.
//
// Pricing state lives in memory per market; the store keeps the market
// configuration, a snapshot of the latest state, and the immutable swap
// ledger. All monetary values use shopspring/decimal — never float64
// for money.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/adapter"
	"github.com/prism-terminal-defi/prism/internal/amm"
	"github.com/prism-terminal-defi/prism/internal/curve"
	"github.com/prism-terminal-defi/prism/internal/metrics"
	"github.com/prism-terminal-defi/prism/internal/model"
	"github.com/prism-terminal-defi/prism/internal/pool"
	"github.com/prism-terminal-defi/prism/internal/splitter"
	"github.com/prism-terminal-defi/prism/internal/store"
	"github.com/prism-terminal-defi/prism/internal/ticker"
)

const defaultDivisibility int32 = 18

// marketEntry bundles the live components of one market. The amm.Market
// serializes its own trades; the service only guards the registry map.
type marketEntry struct {
	market   *amm.Market
	pool     *pool.TwoResourcePool
	splitter *splitter.Splitter
	oracle   *adapter.LSUPoolAdapter
}

// Service handles market operations. Live markets are held in an
// in-memory registry (single-instance). For horizontal scaling, replace
// with distributed locking or database-level optimistic concurrency.
type Service struct {
	store   store.Store
	mu      sync.RWMutex
	markets map[string]*marketEntry
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
	now     func() time.Time
}

// NewService creates a new market service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, hub *WSHub) *Service {
	return &Service{
		store:   st,
		markets: make(map[string]*marketEntry),
		wsHub:   hub,
		now:     time.Now,
	}
}

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Name              string          `json:"name"`
	Maturity          time.Time       `json:"maturity"`
	ScalarRoot        decimal.Decimal `json:"scalar_root"`
	InitialRateAnchor decimal.Decimal `json:"initial_rate_anchor"`
	FeeRate           decimal.Decimal `json:"fee_rate"`
	ReserveFeePercent decimal.Decimal `json:"reserve_fee_percent"`
	LateFee           decimal.Decimal `json:"late_fee"`
	PoolTVL           decimal.Decimal `json:"pool_tvl"`         // oracle bootstrap; 0 → 1
	PoolUnitSupply    decimal.Decimal `json:"pool_unit_supply"` // oracle bootstrap; 0 → 1
}

// SwapPTRequest sells an exact amount of PT for asset.
type SwapPTRequest struct {
	PTAmount decimal.Decimal `json:"pt_amount"`
}

// SwapAssetRequest buys an exact amount of PT with asset.
type SwapAssetRequest struct {
	AssetAmount     decimal.Decimal `json:"asset_amount"`
	DesiredPTAmount decimal.Decimal `json:"desired_pt_amount"`
}

// SwapAssetForYTRequest buys YT with asset via a flash swap.
type SwapAssetForYTRequest struct {
	AssetAmount     decimal.Decimal `json:"asset_amount"`
	GuessPTToSwapIn decimal.Decimal `json:"guess_pt_to_swap_in"`
	YTID            string          `json:"yt_id,omitempty"`
}

// SwapYTForAssetRequest sells YT for asset via a flash swap.
type SwapYTForAssetRequest struct {
	YTID     string          `json:"yt_id"`
	YTAmount decimal.Decimal `json:"yt_amount"`
}

// LiquidityRequest adds PT and asset to the pool.
type LiquidityRequest struct {
	PTAmount    decimal.Decimal `json:"pt_amount"`
	AssetAmount decimal.Decimal `json:"asset_amount"`
}

// LiquidityResponse reports LP units minted and unmatched remainders.
type LiquidityResponse struct {
	Units          decimal.Decimal `json:"units"`
	RemainderPT    decimal.Decimal `json:"remainder_pt"`
	RemainderAsset decimal.Decimal `json:"remainder_asset"`
}

// RemoveLiquidityRequest redeems LP units.
type RemoveLiquidityRequest struct {
	Units decimal.Decimal `json:"units"`
}

// RemoveLiquidityResponse reports the redeemed reserves.
type RemoveLiquidityResponse struct {
	PTAmount    decimal.Decimal `json:"pt_amount"`
	AssetAmount decimal.Decimal `json:"asset_amount"`
}

// TokenizeRequest splits asset into PT and YT.
type TokenizeRequest struct {
	AssetAmount decimal.Decimal `json:"asset_amount"`
	YTID        string          `json:"yt_id,omitempty"`
}

// RedeemRequest burns PT and YT for the underlying asset.
type RedeemRequest struct {
	PTAmount decimal.Decimal `json:"pt_amount"`
	YTID     string          `json:"yt_id"`
	YTAmount decimal.Decimal `json:"yt_amount"`
}

// RedeemPTRequest burns PT alone after maturity.
type RedeemPTRequest struct {
	PTAmount decimal.Decimal `json:"pt_amount"`
}

// MergeYTRequest combines two or more YTs into one.
type MergeYTRequest struct {
	YTIDs []string `json:"yt_ids"`
}

// ClaimYieldRequest claims the yield accrued by a YT.
type ClaimYieldRequest struct {
	YTID string `json:"yt_id"`
}

// OracleUpdateRequest refreshes the redemption oracle's pool snapshot.
type OracleUpdateRequest struct {
	TVL        decimal.Decimal `json:"tvl"`
	UnitSupply decimal.Decimal `json:"unit_supply"`
}

// StatusRequest pauses or resumes a market.
type StatusRequest struct {
	Status string `json:"status"` // "open" or "paused"
}

// MarketView is the live market state returned from read endpoints.
type MarketView struct {
	Record       *model.MarketRecord `json:"record"`
	State        amm.MarketState     `json:"state"`
	Reserves     pool.Reserves       `json:"reserves"`
	Stat         amm.PoolStat        `json:"stat"`
	TimeToExpiry int64               `json:"time_to_expiry"`
	Expired      bool                `json:"expired"`
}

// --- HTTP Handlers ---

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}
	if !req.Maturity.After(s.now().UTC()) {
		writeError(w, "maturity must be in the future", http.StatusBadRequest)
		return
	}

	// Ticker-style names carry the maturity date; reject ones that
	// disagree with the requested maturity.
	if strings.HasPrefix(req.Name, "PRISM-") {
		parsed, err := ticker.Parse(req.Name)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !parsed.MaturityDate.Equal(req.Maturity.UTC().Truncate(24 * time.Hour)) {
			writeError(w, "ticker date does not match maturity", http.StatusBadRequest)
			return
		}
	}

	tvl := req.PoolTVL
	unitSupply := req.PoolUnitSupply
	if tvl.IsZero() && unitSupply.IsZero() {
		tvl = decimal.NewFromInt(1)
		unitSupply = decimal.NewFromInt(1)
	}

	oracle, err := adapter.NewLSUPoolAdapter(tvl, unitSupply)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	split, err := splitter.New(oracle, splitter.Config{
		Maturity:     req.Maturity,
		LateFee:      req.LateFee,
		Divisibility: defaultDivisibility,
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	p := pool.New(defaultDivisibility)

	market, err := amm.New(p, split, amm.Config{
		ScalarRoot:        req.ScalarRoot,
		InitialRateAnchor: req.InitialRateAnchor,
		FeeRate:           req.FeeRate,
		ReserveFeePercent: req.ReserveFeePercent,
		Divisibility:      defaultDivisibility,
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	record := &model.MarketRecord{
		ID:                uuid.New().String(),
		Name:              req.Name,
		Maturity:          req.Maturity.UTC(),
		ScalarRoot:        req.ScalarRoot,
		InitialRateAnchor: req.InitialRateAnchor,
		FeeRate:           req.FeeRate,
		ReserveFeePercent: req.ReserveFeePercent,
		LateFee:           req.LateFee,
		Status:            model.StatusOpen,
		CreatedAt:         s.now().UTC(),
	}

	ctx := r.Context()
	if err := s.store.CreateMarket(ctx, record); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	s.mu.Lock()
	s.markets[record.ID] = &marketEntry{
		market:   market,
		pool:     p,
		splitter: split,
		oracle:   oracle,
	}
	s.mu.Unlock()

	metrics.ActiveMarkets.Inc()

	slog.Info("market created",
		"id", record.ID,
		"name", req.Name,
		"maturity", req.Maturity,
		"scalar_root", req.ScalarRoot.String(),
		"fee_rate", req.FeeRate.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

// ListMarkets handles GET /api/v1/markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.MarketRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(markets)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	record, err := s.store.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	entry, ok := s.entry(marketID)
	if !ok {
		writeError(w, "market not loaded", http.StatusNotFound)
		return
	}

	view := MarketView{
		Record:       record,
		State:        entry.market.State(),
		Reserves:     entry.market.Reserves(),
		Stat:         entry.market.Stat(),
		TimeToExpiry: entry.market.TimeToExpiry(),
		Expired:      entry.market.CheckMaturity(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// GetImpliedRate handles GET /api/v1/markets/{marketID}/implied-rate
func (s *Service) GetImpliedRate(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(chi.URLParam(r, "marketID"))
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	rate, err := entry.market.ImpliedRate()
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]decimal.Decimal{"implied_rate": rate})
}

// GetReserves handles GET /api/v1/markets/{marketID}/reserves
func (s *Service) GetReserves(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(chi.URLParam(r, "marketID"))
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry.market.Reserves())
}

// GetStats handles GET /api/v1/markets/{marketID}/stats
// Returns live fee counters plus the persisted swap-ledger aggregate.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	entry, ok := s.entry(marketID)
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	summary, err := s.store.GetFeeSummary(r.Context(), marketID)
	if err != nil {
		writeError(w, "failed to load fee summary", http.StatusInternalServerError)
		return
	}

	resp := struct {
		Stat    amm.PoolStat      `json:"stat"`
		Summary *model.FeeSummary `json:"summary"`
	}{entry.market.Stat(), summary}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetSwapHistory handles GET /api/v1/markets/{marketID}/history
func (s *Service) GetSwapHistory(w http.ResponseWriter, r *http.Request) {
	swaps, err := s.store.GetSwapsByMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, "failed to get swap history", http.StatusInternalServerError)
		return
	}
	if swaps == nil {
		swaps = []model.SwapRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(swaps)
}

// SwapPTForAsset handles POST /api/v1/markets/{marketID}/swap/pt-for-asset
func (s *Service) SwapPTForAsset(w http.ResponseWriter, r *http.Request) {
	var req SwapPTRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.executeSwap(w, r, func(entry *marketEntry) (*amm.SwapResult, error) {
		return entry.market.SwapExactPTForAsset(req.PTAmount)
	})
}

// SwapAssetForPT handles POST /api/v1/markets/{marketID}/swap/asset-for-pt
func (s *Service) SwapAssetForPT(w http.ResponseWriter, r *http.Request) {
	var req SwapAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.executeSwap(w, r, func(entry *marketEntry) (*amm.SwapResult, error) {
		return entry.market.SwapExactAssetForPT(req.AssetAmount, req.DesiredPTAmount)
	})
}

// SwapAssetForYT handles POST /api/v1/markets/{marketID}/swap/asset-for-yt
func (s *Service) SwapAssetForYT(w http.ResponseWriter, r *http.Request) {
	var req SwapAssetForYTRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.executeSwap(w, r, func(entry *marketEntry) (*amm.SwapResult, error) {
		return entry.market.SwapExactAssetForYT(req.AssetAmount, req.GuessPTToSwapIn, req.YTID)
	})
}

// SwapYTForAsset handles POST /api/v1/markets/{marketID}/swap/yt-for-asset
func (s *Service) SwapYTForAsset(w http.ResponseWriter, r *http.Request) {
	var req SwapYTForAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.executeSwap(w, r, func(entry *marketEntry) (*amm.SwapResult, error) {
		return entry.market.SwapExactYTForAsset(req.YTID, req.YTAmount)
	})
}

// executeSwap runs one swap against a market, persists the record and
// snapshot, updates metrics, and broadcasts the result.
func (s *Service) executeSwap(w http.ResponseWriter, r *http.Request, fn func(*marketEntry) (*amm.SwapResult, error)) {
	marketID := chi.URLParam(r, "marketID")

	entry, ok := s.entry(marketID)
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	start := time.Now()
	result, err := fn(entry)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}
	metrics.SwapLatency.WithLabelValues(result.Side).Observe(time.Since(start).Seconds())
	metrics.SwapsTotal.WithLabelValues(result.Side).Inc()

	vol, _ := result.TradeVolume.Float64()
	metrics.SwapVolume.WithLabelValues(marketID, result.Side).Add(vol)
	tradingFee, _ := result.TradingFees.Float64()
	reserveFee, _ := result.ReserveFees.Float64()
	metrics.FeesCollected.WithLabelValues(marketID, "trading").Add(tradingFee)
	metrics.FeesCollected.WithLabelValues(marketID, "reserve").Add(reserveFee)

	record := &model.SwapRecord{
		ID:                     uuid.New().String(),
		MarketID:               marketID,
		Side:                   result.Side,
		SellSize:               result.SellSize,
		BuySize:                result.BuySize,
		TradeVolume:            result.TradeVolume,
		ExchangeRateBeforeFees: result.ExchangeRateBeforeFees,
		ExchangeRateAfterFees:  result.ExchangeRateAfterFees,
		ReserveFees:            result.ReserveFees,
		TradingFees:            result.TradingFees,
		TotalFees:              result.TotalFees,
		EffectiveImpliedRate:   result.EffectiveImpliedRate,
		TradeImpliedRate:       result.TradeImpliedRate,
		NewImpliedRate:         result.NewImpliedRate,
		Output:                 result.Output,
		YTID:                   result.YTID,
		Timestamp:              s.now().UTC(),
	}

	ctx := r.Context()
	if err := s.store.InsertSwap(ctx, record); err != nil {
		writeError(w, "failed to record swap", http.StatusInternalServerError)
		return
	}
	s.persistSnapshot(ctx, marketID, entry)

	slog.Info("swap executed",
		"swap_id", record.ID,
		"market", marketID,
		"side", result.Side,
		"sell_size", result.SellSize.String(),
		"buy_size", result.BuySize.String(),
		"total_fees", result.TotalFees.String(),
		"new_implied_rate", result.NewImpliedRate.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "swap_executed",
			MarketID:    marketID,
			Side:        result.Side,
			SellSize:    result.SellSize.String(),
			BuySize:     result.BuySize.String(),
			ImpliedRate: result.NewImpliedRate.String(),
			Output:      result.Output.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// AddLiquidity handles POST /api/v1/markets/{marketID}/liquidity
func (s *Service) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entry, ok := s.entry(marketID)
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	units, remPT, remAsset, err := entry.market.AddLiquidity(req.PTAmount, req.AssetAmount)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	s.persistSnapshot(r.Context(), marketID, entry)

	slog.Info("liquidity added",
		"market", marketID,
		"pt", req.PTAmount.String(),
		"asset", req.AssetAmount.String(),
		"units", units.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LiquidityResponse{
		Units:          units,
		RemainderPT:    remPT,
		RemainderAsset: remAsset,
	})
}

// RemoveLiquidity handles POST /api/v1/markets/{marketID}/liquidity/remove
func (s *Service) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req RemoveLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entry, ok := s.entry(marketID)
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	ptOut, assetOut, err := entry.market.RemoveLiquidity(req.Units)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	s.persistSnapshot(r.Context(), marketID, entry)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RemoveLiquidityResponse{
		PTAmount:    ptOut,
		AssetAmount: assetOut,
	})
}

// Tokenize handles POST /api/v1/markets/{marketID}/tokenize
func (s *Service) Tokenize(w http.ResponseWriter, r *http.Request) {
	var req TokenizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entry, ok := s.entry(chi.URLParam(r, "marketID"))
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	result, err := entry.splitter.Tokenize(req.AssetAmount, req.YTID)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	slog.Info("asset tokenized",
		"market", chi.URLParam(r, "marketID"),
		"asset", req.AssetAmount.String(),
		"pt_minted", result.PTMinted.String(),
		"yt_id", result.YTID,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Redeem handles POST /api/v1/markets/{marketID}/redeem
func (s *Service) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entry, ok := s.entry(chi.URLParam(r, "marketID"))
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	result, err := entry.splitter.Redeem(req.PTAmount, req.YTID, req.YTAmount)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// RedeemPT handles POST /api/v1/markets/{marketID}/redeem-pt
// PT-only redemption for holders without a matching YT, open once the
// market has matured.
func (s *Service) RedeemPT(w http.ResponseWriter, r *http.Request) {
	var req RedeemPTRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entry, ok := s.entry(chi.URLParam(r, "marketID"))
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	result, err := entry.splitter.RedeemPT(req.PTAmount)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// MergeYT handles POST /api/v1/markets/{marketID}/yt/merge
func (s *Service) MergeYT(w http.ResponseWriter, r *http.Request) {
	var req MergeYTRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entry, ok := s.entry(chi.URLParam(r, "marketID"))
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	merged, err := entry.splitter.MergeYT(req.YTIDs)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(merged)
}

// ClaimYield handles POST /api/v1/markets/{marketID}/claim-yield
func (s *Service) ClaimYield(w http.ResponseWriter, r *http.Request) {
	var req ClaimYieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entry, ok := s.entry(chi.URLParam(r, "marketID"))
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	result, err := entry.splitter.ClaimYield(req.YTID)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetYieldToken handles GET /api/v1/markets/{marketID}/yt/{ytID}
func (s *Service) GetYieldToken(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(chi.URLParam(r, "marketID"))
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	yt, err := entry.splitter.YieldToken(chi.URLParam(r, "ytID"))
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(yt)
}

// UpdateOracle handles POST /api/v1/markets/{marketID}/oracle
// Feeds a fresh TVL/unit-supply snapshot into the redemption oracle.
func (s *Service) UpdateOracle(w http.ResponseWriter, r *http.Request) {
	var req OracleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entry, ok := s.entry(chi.URLParam(r, "marketID"))
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	if err := entry.oracle.UpdatePool(req.TVL, req.UnitSupply); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]decimal.Decimal{
		"redemption_factor": entry.oracle.RedemptionFactor(),
	})
}

// SetStatus handles POST /api/v1/markets/{marketID}/status
func (s *Service) SetStatus(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Status != model.StatusOpen && req.Status != model.StatusPaused {
		writeError(w, "status must be open or paused", http.StatusBadRequest)
		return
	}

	entry, ok := s.entry(marketID)
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	active := req.Status == model.StatusOpen
	entry.market.SetActive(active)
	entry.splitter.SetActive(active)

	if err := s.store.UpdateMarketStatus(r.Context(), marketID, req.Status); err != nil {
		writeError(w, "failed to update status", http.StatusInternalServerError)
		return
	}

	slog.Info("market status changed", "market", marketID, "status", req.Status)

	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func (s *Service) entry(marketID string) (*marketEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.markets[marketID]
	return e, ok
}

// persistSnapshot writes the market's implied rate and reserves back to
// the store. Failures are logged, not surfaced; the ledger record is the
// durable artifact.
func (s *Service) persistSnapshot(ctx context.Context, marketID string, entry *marketEntry) {
	state := entry.market.State()
	reserves := entry.market.Reserves()
	if err := s.store.UpdateMarketSnapshot(ctx, marketID,
		state.LastLnImpliedRate, reserves.TotalPTAmount, reserves.TotalAssetAmount); err != nil {
		slog.Error("snapshot update failed", "market", marketID, "err", err)
	}
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, amm.ErrInvalidAmount),
		errors.Is(err, splitter.ErrInvalidAmount),
		errors.Is(err, pool.ErrInvalidAmount),
		errors.Is(err, splitter.ErrAmountMismatch),
		errors.Is(err, splitter.ErrMergeTooFew):
		return http.StatusBadRequest
	case errors.Is(err, splitter.ErrUnknownYT):
		return http.StatusNotFound
	case errors.Is(err, amm.ErrMaxProportionReached):
		metrics.SwapRejections.Inc()
		return http.StatusConflict
	case errors.Is(err, amm.ErrMarketExpired),
		errors.Is(err, amm.ErrMarketInactive),
		errors.Is(err, amm.ErrNotInitialized),
		errors.Is(err, amm.ErrInsufficientAsset),
		errors.Is(err, splitter.ErrExpired),
		errors.Is(err, splitter.ErrInactive),
		errors.Is(err, splitter.ErrInsufficientYT),
		errors.Is(err, splitter.ErrNotExpired),
		errors.Is(err, splitter.ErrInsufficientPT),
		errors.Is(err, pool.ErrInsufficientBalance),
		errors.Is(err, pool.ErrInsufficientUnits),
		errors.Is(err, curve.ErrInvalidExchangeRate),
		errors.Is(err, curve.ErrInvalidPostFeeExchangeRate),
		errors.Is(err, curve.ErrProportionTooHigh),
		errors.Is(err, curve.ErrProportionNegative):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
