package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.MarketRecord) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) UpdateMarketSnapshot(ctx context.Context, id string, lastLnImpliedRate, totalPT, totalAsset decimal.Decimal) error {
	if err := s.primary.UpdateMarketSnapshot(ctx, id, lastLnImpliedRate, totalPT, totalAsset); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) UpdateMarketStatus(ctx context.Context, id, status string) error {
	if err := s.primary.UpdateMarketStatus(ctx, id, status); err != nil {
		return err
	}
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) InsertSwap(ctx context.Context, swap *model.SwapRecord) error {
	if err := s.primary.InsertSwap(ctx, swap); err != nil {
		return err
	}
	// Invalidate the fee summary for this market.
	s.rdb.Del(ctx, feeSummaryKey(swap.MarketID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.MarketRecord, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.MarketRecord
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetMarketByName(ctx context.Context, name string) (*model.MarketRecord, error) {
	// Try cache via name→marketID mapping.
	marketID, err := s.rdb.Get(ctx, nameKey(name)).Result()
	if err == nil {
		return s.GetMarket(ctx, marketID)
	}

	// Cache miss.
	m, err := s.primary.GetMarketByName(ctx, name)
	if err != nil {
		return nil, err
	}

	// Cache both the market and the name→ID mapping.
	s.cacheMarket(ctx, m)
	s.rdb.Set(ctx, nameKey(name), m.ID, s.ttl)
	return m, nil
}

func (s *CachedStore) GetFeeSummary(ctx context.Context, marketID string) (*model.FeeSummary, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, feeSummaryKey(marketID)).Bytes()
	if err == nil {
		var summary model.FeeSummary
		if json.Unmarshal(data, &summary) == nil {
			return &summary, nil
		}
	}

	// Cache miss.
	summary, err := s.primary.GetFeeSummary(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(summary); err == nil {
		s.rdb.Set(ctx, feeSummaryKey(marketID), data, s.ttl)
	}
	return summary, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.MarketRecord, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) GetSwapsByMarket(ctx context.Context, marketID string) ([]model.SwapRecord, error) {
	return s.primary.GetSwapsByMarket(ctx, marketID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.MarketRecord) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func marketKey(id string) string       { return fmt.Sprintf("market:%s", id) }
func nameKey(name string) string       { return fmt.Sprintf("market-name:%s", name) }
func feeSummaryKey(id string) string   { return fmt.Sprintf("fee-summary:%s", id) }

var _ Store = (*CachedStore)(nil)
