package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/prism-terminal-defi/prism/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const marketColumns = `id, name, maturity,
	scalar_root::TEXT, initial_rate_anchor::TEXT, fee_rate::TEXT,
	reserve_fee_percent::TEXT, late_fee::TEXT, status,
	last_ln_implied_rate::TEXT, total_pt_amount::TEXT, total_asset_amount::TEXT,
	created_at`

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.MarketRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, name, maturity, scalar_root, initial_rate_anchor,
		                      fee_rate, reserve_fee_percent, late_fee, status,
		                      last_ln_implied_rate, total_pt_amount, total_asset_amount, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC,
		         $8::NUMERIC, $9, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC, $13)`,
		m.ID, m.Name, m.Maturity,
		m.ScalarRoot.String(), m.InitialRateAnchor.String(),
		m.FeeRate.String(), m.ReserveFeePercent.String(), m.LateFee.String(),
		m.Status,
		m.LastLnImpliedRate.String(), m.TotalPTAmount.String(), m.TotalAssetAmount.String(),
		m.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.MarketRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)

	m, err := scanMarket(row)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) GetMarketByName(ctx context.Context, name string) (*model.MarketRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE name = $1`, name)

	m, err := scanMarket(row)
	if err != nil {
		return nil, fmt.Errorf("get market %q: %w", name, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.MarketRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.MarketRecord
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpdateMarketSnapshot(ctx context.Context, id string, lastLnImpliedRate, totalPT, totalAsset decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE markets
		 SET last_ln_implied_rate = $2::NUMERIC,
		     total_pt_amount = $3::NUMERIC,
		     total_asset_amount = $4::NUMERIC
		 WHERE id = $1`,
		id, lastLnImpliedRate.String(), totalPT.String(), totalAsset.String(),
	)
	return err
}

func (s *PostgresStore) UpdateMarketStatus(ctx context.Context, id, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = $2 WHERE id = $1`, id, status)
	return err
}

func (s *PostgresStore) InsertSwap(ctx context.Context, sw *model.SwapRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO swaps (id, market_id, side, sell_size, buy_size, trade_volume,
		                    exchange_rate_before_fees, exchange_rate_after_fees,
		                    reserve_fees, trading_fees, total_fees,
		                    effective_implied_rate, trade_implied_rate, new_implied_rate,
		                    output, yt_id, timestamp)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC,
		         $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC,
		         $12::NUMERIC, $13::NUMERIC, $14::NUMERIC, $15::NUMERIC, $16, $17)`,
		sw.ID, sw.MarketID, sw.Side,
		sw.SellSize.String(), sw.BuySize.String(), sw.TradeVolume.String(),
		sw.ExchangeRateBeforeFees.String(), sw.ExchangeRateAfterFees.String(),
		sw.ReserveFees.String(), sw.TradingFees.String(), sw.TotalFees.String(),
		sw.EffectiveImpliedRate.String(), sw.TradeImpliedRate.String(), sw.NewImpliedRate.String(),
		sw.Output.String(), sw.YTID, sw.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetSwapsByMarket(ctx context.Context, marketID string) ([]model.SwapRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, side,
		        sell_size::TEXT, buy_size::TEXT, trade_volume::TEXT,
		        exchange_rate_before_fees::TEXT, exchange_rate_after_fees::TEXT,
		        reserve_fees::TEXT, trading_fees::TEXT, total_fees::TEXT,
		        effective_implied_rate::TEXT, trade_implied_rate::TEXT, new_implied_rate::TEXT,
		        output::TEXT, yt_id, timestamp
		 FROM swaps WHERE market_id = $1 ORDER BY timestamp`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swaps []model.SwapRecord
	for rows.Next() {
		var sw model.SwapRecord
		var sellS, buyS, volS, preS, postS, resS, tradS, totS, effS, tradeIRS, newIRS, outS string

		if err := rows.Scan(&sw.ID, &sw.MarketID, &sw.Side,
			&sellS, &buyS, &volS, &preS, &postS,
			&resS, &tradS, &totS, &effS, &tradeIRS, &newIRS,
			&outS, &sw.YTID, &sw.Timestamp); err != nil {
			return nil, err
		}

		sw.SellSize, _ = decimal.NewFromString(sellS)
		sw.BuySize, _ = decimal.NewFromString(buyS)
		sw.TradeVolume, _ = decimal.NewFromString(volS)
		sw.ExchangeRateBeforeFees, _ = decimal.NewFromString(preS)
		sw.ExchangeRateAfterFees, _ = decimal.NewFromString(postS)
		sw.ReserveFees, _ = decimal.NewFromString(resS)
		sw.TradingFees, _ = decimal.NewFromString(tradS)
		sw.TotalFees, _ = decimal.NewFromString(totS)
		sw.EffectiveImpliedRate, _ = decimal.NewFromString(effS)
		sw.TradeImpliedRate, _ = decimal.NewFromString(tradeIRS)
		sw.NewImpliedRate, _ = decimal.NewFromString(newIRS)
		sw.Output, _ = decimal.NewFromString(outS)

		swaps = append(swaps, sw)
	}
	return swaps, rows.Err()
}

func (s *PostgresStore) GetFeeSummary(ctx context.Context, marketID string) (*model.FeeSummary, error) {
	var count int64
	var volS, tradS, resS, totS string

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(trade_volume), 0)::TEXT,
		        COALESCE(SUM(trading_fees), 0)::TEXT,
		        COALESCE(SUM(reserve_fees), 0)::TEXT,
		        COALESCE(SUM(total_fees), 0)::TEXT
		 FROM swaps WHERE market_id = $1`, marketID).
		Scan(&count, &volS, &tradS, &resS, &totS)
	if err != nil {
		return nil, fmt.Errorf("fee summary for %s: %w", marketID, err)
	}

	summary := &model.FeeSummary{MarketID: marketID, SwapCount: count}
	summary.Volume, _ = decimal.NewFromString(volS)
	summary.TradingFees, _ = decimal.NewFromString(tradS)
	summary.ReserveFees, _ = decimal.NewFromString(resS)
	summary.TotalFees, _ = decimal.NewFromString(totS)
	return summary, nil
}

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanMarket(row pgxRow) (*model.MarketRecord, error) {
	var m model.MarketRecord
	var scalarS, anchorS, feeS, resPctS, lateS, lnS, ptS, assetS string

	if err := row.Scan(&m.ID, &m.Name, &m.Maturity,
		&scalarS, &anchorS, &feeS, &resPctS, &lateS, &m.Status,
		&lnS, &ptS, &assetS, &m.CreatedAt); err != nil {
		return nil, err
	}

	m.ScalarRoot, _ = decimal.NewFromString(scalarS)
	m.InitialRateAnchor, _ = decimal.NewFromString(anchorS)
	m.FeeRate, _ = decimal.NewFromString(feeS)
	m.ReserveFeePercent, _ = decimal.NewFromString(resPctS)
	m.LateFee, _ = decimal.NewFromString(lateS)
	m.LastLnImpliedRate, _ = decimal.NewFromString(lnS)
	m.TotalPTAmount, _ = decimal.NewFromString(ptS)
	m.TotalAssetAmount, _ = decimal.NewFromString(assetS)

	return &m, nil
}

var _ Store = (*PostgresStore)(nil)
