package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[string]*model.MarketRecord
	swaps   []model.SwapRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[string]*model.MarketRecord),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.MarketRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.markets {
		if existing.Name == m.Name {
			return fmt.Errorf("market %q already exists", m.Name)
		}
	}

	// Store a copy to avoid external mutation.
	copy := *m
	s.markets[m.ID] = &copy
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.MarketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s not found", id)
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) GetMarketByName(_ context.Context, name string) (*model.MarketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.markets {
		if m.Name == name {
			copy := *m
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("market %q not found", name)
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.MarketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.MarketRecord, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	return markets, nil
}

func (s *MemoryStore) UpdateMarketSnapshot(_ context.Context, id string, lastLnImpliedRate, totalPT, totalAsset decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("market %s not found", id)
	}
	m.LastLnImpliedRate = lastLnImpliedRate
	m.TotalPTAmount = totalPT
	m.TotalAssetAmount = totalAsset
	return nil
}

func (s *MemoryStore) UpdateMarketStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("market %s not found", id)
	}
	m.Status = status
	return nil
}

func (s *MemoryStore) InsertSwap(_ context.Context, swap *model.SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.swaps = append(s.swaps, *swap)
	return nil
}

func (s *MemoryStore) GetSwapsByMarket(_ context.Context, marketID string) ([]model.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.SwapRecord
	for _, sw := range s.swaps {
		if sw.MarketID == marketID {
			result = append(result, sw)
		}
	}
	return result, nil
}

// GetFeeSummary aggregates swap records for a market under a single lock.
func (s *MemoryStore) GetFeeSummary(_ context.Context, marketID string) (*model.FeeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &model.FeeSummary{MarketID: marketID}
	for _, sw := range s.swaps {
		if sw.MarketID != marketID {
			continue
		}
		summary.SwapCount++
		summary.Volume = summary.Volume.Add(sw.TradeVolume)
		summary.TradingFees = summary.TradingFees.Add(sw.TradingFees)
		summary.ReserveFees = summary.ReserveFees.Add(sw.ReserveFees)
		summary.TotalFees = summary.TotalFees.Add(sw.TotalFees)
	}
	return summary, nil
}

var _ Store = (*MemoryStore)(nil)
