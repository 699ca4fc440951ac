package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// BarFeatureStore implements storage.BarFeatureStore using PostgreSQL.
type BarFeatureStore struct {
	pool *Pool
}

// NewBarFeatureStore creates a new BarFeatureStore.
func NewBarFeatureStore(pool *Pool) *BarFeatureStore {
	return &BarFeatureStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BarFeatureStore = (*BarFeatureStore)(nil)

const barFeatureColumns = `
	run_id, symbol, timeframe, bar_time,
	tr, atr14, range, body, upper_wick, lower_wick, close_pos,
	ema20, ema50, pdh, pdl, pdc,
	swing_high, swing_low, bos_up, bos_dn, choch_up, choch_dn,
	sweep_prev_high, sweep_prev_low,
	created_at, ingested_at, updated_at
`

// Upsert inserts or fully overwrites the feature row keyed by
// (symbol, timeframe, bar_time). Recompute against unchanged raw bars
// writes identical values; created_at is preserved.
func (s *BarFeatureStore) Upsert(ctx context.Context, f *domain.BarFeature) error {
	if f == nil || f.Symbol == "" || f.Timeframe == "" || f.BarTime.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO features.bar_features (
			run_id, symbol, timeframe, bar_time,
			tr, atr14, range, body, upper_wick, lower_wick, close_pos,
			ema20, ema50, pdh, pdl, pdc,
			swing_high, swing_low, bos_up, bos_dn, choch_up, choch_dn,
			sweep_prev_high, sweep_prev_low
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22,
			$23, $24
		)
		ON CONFLICT (symbol, timeframe, bar_time) DO UPDATE SET
			run_id          = EXCLUDED.run_id,
			tr              = EXCLUDED.tr,
			atr14           = EXCLUDED.atr14,
			range           = EXCLUDED.range,
			body            = EXCLUDED.body,
			upper_wick      = EXCLUDED.upper_wick,
			lower_wick      = EXCLUDED.lower_wick,
			close_pos       = EXCLUDED.close_pos,
			ema20           = EXCLUDED.ema20,
			ema50           = EXCLUDED.ema50,
			pdh             = EXCLUDED.pdh,
			pdl             = EXCLUDED.pdl,
			pdc             = EXCLUDED.pdc,
			swing_high      = EXCLUDED.swing_high,
			swing_low       = EXCLUDED.swing_low,
			bos_up          = EXCLUDED.bos_up,
			bos_dn          = EXCLUDED.bos_dn,
			choch_up        = EXCLUDED.choch_up,
			choch_dn        = EXCLUDED.choch_dn,
			sweep_prev_high = EXCLUDED.sweep_prev_high,
			sweep_prev_low  = EXCLUDED.sweep_prev_low,
			ingested_at     = now(),
			updated_at      = now()
		RETURNING created_at, ingested_at, updated_at
	`

	err := s.pool.QueryRow(ctx, query,
		f.RunID, f.Symbol, f.Timeframe, f.BarTime,
		f.TR, f.ATR14, f.Range, f.Body, f.UpperWick, f.LowerWick, f.ClosePos,
		f.EMA20, f.EMA50, f.PDH, f.PDL, f.PDC,
		f.SwingHigh, f.SwingLow, f.BOSUp, f.BOSDn, f.ChochUp, f.ChochDn,
		f.SweepPrevHigh, f.SweepPrevLow,
	).Scan(&f.CreatedAt, &f.IngestedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert bar feature: %w", err)
	}
	return nil
}

// GetBySymbolTimeframe retrieves all feature rows for a symbol+timeframe,
// ordered by bar_time ASC.
func (s *BarFeatureStore) GetBySymbolTimeframe(ctx context.Context, symbol, timeframe string) ([]*domain.BarFeature, error) {
	query := `
		SELECT ` + barFeatureColumns + `
		FROM features.bar_features
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY bar_time ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("get bar features: %w", err)
	}
	defer rows.Close()

	return scanBarFeatures(rows)
}

// LatestPerSymbol projects the most recent feature row per
// (symbol, timeframe). Reads the latest.bar_features view.
func (s *BarFeatureStore) LatestPerSymbol(ctx context.Context) ([]*domain.BarFeature, error) {
	query := `
		SELECT ` + barFeatureColumns + `
		FROM latest.bar_features
		ORDER BY symbol ASC, timeframe ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest bar features: %w", err)
	}
	defer rows.Close()

	return scanBarFeatures(rows)
}

func scanBarFeature(row pgx.Row) (*domain.BarFeature, error) {
	var f domain.BarFeature
	err := row.Scan(
		&f.RunID, &f.Symbol, &f.Timeframe, &f.BarTime,
		&f.TR, &f.ATR14, &f.Range, &f.Body, &f.UpperWick, &f.LowerWick, &f.ClosePos,
		&f.EMA20, &f.EMA50, &f.PDH, &f.PDL, &f.PDC,
		&f.SwingHigh, &f.SwingLow, &f.BOSUp, &f.BOSDn, &f.ChochUp, &f.ChochDn,
		&f.SweepPrevHigh, &f.SweepPrevLow,
		&f.CreatedAt, &f.IngestedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanBarFeatures(rows pgx.Rows) ([]*domain.BarFeature, error) {
	var features []*domain.BarFeature
	for rows.Next() {
		f, err := scanBarFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bar feature row: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar feature rows: %w", err)
	}
	return features, nil
}
