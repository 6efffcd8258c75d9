// Package store defines the persistence interface for the prism engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, market *model.MarketRecord) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.MarketRecord, error)

	// GetMarketByName retrieves a market by its display name.
	GetMarketByName(ctx context.Context, name string) (*model.MarketRecord, error)

	// ListMarkets returns all markets.
	ListMarkets(ctx context.Context) ([]model.MarketRecord, error)

	// UpdateMarketSnapshot rewrites a market's implied rate and reserve
	// snapshot after a swap or liquidity change.
	UpdateMarketSnapshot(ctx context.Context, id string, lastLnImpliedRate, totalPT, totalAsset decimal.Decimal) error

	// UpdateMarketStatus transitions a market between open, paused and
	// expired.
	UpdateMarketStatus(ctx context.Context, id, status string) error

	// --- Immutable swap ledger ---

	// InsertSwap appends an immutable swap record.
	InsertSwap(ctx context.Context, swap *model.SwapRecord) error

	// GetSwapsByMarket returns all swaps for a market, oldest first.
	GetSwapsByMarket(ctx context.Context, marketID string) ([]model.SwapRecord, error)

	// GetFeeSummary aggregates a market's swap records.
	GetFeeSummary(ctx context.Context, marketID string) (*model.FeeSummary, error)
}
