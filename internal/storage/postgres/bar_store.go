package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// PriceBarStore implements storage.PriceBarStore using PostgreSQL.
type PriceBarStore struct {
	pool *Pool
}

// NewPriceBarStore creates a new PriceBarStore.
func NewPriceBarStore(pool *Pool) *PriceBarStore {
	return &PriceBarStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceBarStore = (*PriceBarStore)(nil)

const priceBarColumns = `
	source, COALESCE(source_ref, ''), run_id, symbol, timeframe, bar_time,
	open, high, low, close, tick_volume, real_volume, spread,
	payload, created_at, ingested_at, updated_at
`

// Upsert inserts or fully overwrites the row keyed by
// (symbol, timeframe, bar_time). Two concurrent upserts to the same key
// serialize at the unique constraint; the committed row carries exactly
// one of the two payloads in full.
func (s *PriceBarStore) Upsert(ctx context.Context, b *domain.PriceBar) error {
	if b == nil {
		return storage.ErrInvalidInput
	}
	if err := b.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO raw.price_bars (
			source, source_ref, run_id, symbol, timeframe, bar_time,
			open, high, low, close, tick_volume, real_volume, spread, payload
		) VALUES (
			$1, NULLIF($2, ''), $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13, COALESCE($14, '{}'::jsonb)
		)
		ON CONFLICT (symbol, timeframe, bar_time) DO UPDATE SET
			source      = EXCLUDED.source,
			source_ref  = EXCLUDED.source_ref,
			run_id      = EXCLUDED.run_id,
			open        = EXCLUDED.open,
			high        = EXCLUDED.high,
			low         = EXCLUDED.low,
			close       = EXCLUDED.close,
			tick_volume = EXCLUDED.tick_volume,
			real_volume = EXCLUDED.real_volume,
			spread      = EXCLUDED.spread,
			payload     = EXCLUDED.payload,
			ingested_at = now(),
			updated_at  = now()
		RETURNING created_at, ingested_at, updated_at
	`

	err := s.pool.QueryRow(ctx, query,
		b.Source, b.SourceRef, b.RunID, b.Symbol, b.Timeframe, b.BarTime,
		b.Open, b.High, b.Low, b.Close, b.TickVolume, b.RealVolume, b.Spread, []byte(b.Payload),
	).Scan(&b.CreatedAt, &b.IngestedAt, &b.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: price bar rejected by schema constraint: %v", domain.ErrValidation, err)
		}
		return fmt.Errorf("upsert price bar: %w", err)
	}
	return nil
}

// GetByKey retrieves one bar. Returns ErrNotFound if not exists.
func (s *PriceBarStore) GetByKey(ctx context.Context, symbol, timeframe string, barTime time.Time) (*domain.PriceBar, error) {
	query := `
		SELECT ` + priceBarColumns + `
		FROM raw.price_bars
		WHERE symbol = $1 AND timeframe = $2 AND bar_time = $3
	`

	b, err := scanPriceBar(s.pool.QueryRow(ctx, query, symbol, timeframe, barTime))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get price bar: %w", err)
	}
	return b, nil
}

// GetBySymbolTimeframe retrieves all bars for a symbol+timeframe, ordered
// by bar_time ASC.
func (s *PriceBarStore) GetBySymbolTimeframe(ctx context.Context, symbol, timeframe string) ([]*domain.PriceBar, error) {
	query := `
		SELECT ` + priceBarColumns + `
		FROM raw.price_bars
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY bar_time ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("get price bars: %w", err)
	}
	defer rows.Close()

	return scanPriceBars(rows)
}

// GetByTimeRange retrieves bars within [start, end] (inclusive), ordered
// by bar_time ASC.
func (s *PriceBarStore) GetByTimeRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]*domain.PriceBar, error) {
	query := `
		SELECT ` + priceBarColumns + `
		FROM raw.price_bars
		WHERE symbol = $1 AND timeframe = $2 AND bar_time >= $3 AND bar_time <= $4
		ORDER BY bar_time ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("get price bars by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceBars(rows)
}

// LatestPerSymbol projects the most recent bar per (symbol, timeframe).
// Reads the latest.price_bars view.
func (s *PriceBarStore) LatestPerSymbol(ctx context.Context) ([]*domain.PriceBar, error) {
	query := `
		SELECT ` + priceBarColumns + `
		FROM latest.price_bars
		ORDER BY symbol ASC, timeframe ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest price bars: %w", err)
	}
	defer rows.Close()

	return scanPriceBars(rows)
}

func scanPriceBar(row pgx.Row) (*domain.PriceBar, error) {
	var b domain.PriceBar
	err := row.Scan(
		&b.Source, &b.SourceRef, &b.RunID, &b.Symbol, &b.Timeframe, &b.BarTime,
		&b.Open, &b.High, &b.Low, &b.Close, &b.TickVolume, &b.RealVolume, &b.Spread,
		&b.Payload, &b.CreatedAt, &b.IngestedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanPriceBars(rows pgx.Rows) ([]*domain.PriceBar, error) {
	var bars []*domain.PriceBar
	for rows.Next() {
		b, err := scanPriceBar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price bar row: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price bar rows: %w", err)
	}
	return bars, nil
}
