package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// MacroObservationStore implements storage.MacroObservationStore using PostgreSQL.
type MacroObservationStore struct {
	pool *Pool
}

// NewMacroObservationStore creates a new MacroObservationStore.
func NewMacroObservationStore(pool *Pool) *MacroObservationStore {
	return &MacroObservationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MacroObservationStore = (*MacroObservationStore)(nil)

const macroObservationColumns = `
	source, COALESCE(source_ref, ''), run_id, series_id, frequency, observation_date,
	value, COALESCE(value_text, ''), COALESCE(units, ''),
	payload, created_at, ingested_at, updated_at
`

// Upsert inserts or fully overwrites the row keyed by
// (series_id, frequency, observation_date).
func (s *MacroObservationStore) Upsert(ctx context.Context, o *domain.MacroObservation) error {
	if o == nil {
		return storage.ErrInvalidInput
	}
	if err := o.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO raw.macro_observations (
			source, source_ref, run_id, series_id, frequency, observation_date,
			value, value_text, units, payload
		) VALUES (
			$1, NULLIF($2, ''), $3, $4, $5, $6,
			$7, NULLIF($8, ''), NULLIF($9, ''), COALESCE($10, '{}'::jsonb)
		)
		ON CONFLICT (series_id, frequency, observation_date) DO UPDATE SET
			source      = EXCLUDED.source,
			source_ref  = EXCLUDED.source_ref,
			run_id      = EXCLUDED.run_id,
			value       = EXCLUDED.value,
			value_text  = EXCLUDED.value_text,
			units       = EXCLUDED.units,
			payload     = EXCLUDED.payload,
			ingested_at = now(),
			updated_at  = now()
		RETURNING created_at, ingested_at, updated_at
	`

	err := s.pool.QueryRow(ctx, query,
		o.Source, o.SourceRef, o.RunID, o.SeriesID, o.Frequency.String(), o.ObservationDate,
		o.Value, o.ValueText, o.Units, []byte(o.Payload),
	).Scan(&o.CreatedAt, &o.IngestedAt, &o.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: macro observation rejected by schema constraint: %v", domain.ErrValidation, err)
		}
		return fmt.Errorf("upsert macro observation: %w", err)
	}
	return nil
}

// GetByKey retrieves one observation. Returns ErrNotFound if not exists.
func (s *MacroObservationStore) GetByKey(ctx context.Context, seriesID string, freq domain.Frequency, date time.Time) (*domain.MacroObservation, error) {
	query := `
		SELECT ` + macroObservationColumns + `
		FROM raw.macro_observations
		WHERE series_id = $1 AND frequency = $2 AND observation_date = $3
	`

	o, err := scanMacroObservation(s.pool.QueryRow(ctx, query, seriesID, freq.String(), date))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get macro observation: %w", err)
	}
	return o, nil
}

// GetBySeries retrieves all observations of a series, ordered by
// observation_date ASC.
func (s *MacroObservationStore) GetBySeries(ctx context.Context, seriesID string, freq domain.Frequency) ([]*domain.MacroObservation, error) {
	query := `
		SELECT ` + macroObservationColumns + `
		FROM raw.macro_observations
		WHERE series_id = $1 AND frequency = $2
		ORDER BY observation_date ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, seriesID, freq.String())
	if err != nil {
		return nil, fmt.Errorf("get macro observations by series: %w", err)
	}
	defer rows.Close()

	return scanMacroObservations(rows)
}

// LatestPerSeries projects the most recent observation per
// (series_id, frequency). Reads the latest.macro_observations view.
func (s *MacroObservationStore) LatestPerSeries(ctx context.Context) ([]*domain.MacroObservation, error) {
	query := `
		SELECT ` + macroObservationColumns + `
		FROM latest.macro_observations
		ORDER BY series_id ASC, frequency ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest macro observations: %w", err)
	}
	defer rows.Close()

	return scanMacroObservations(rows)
}

func scanMacroObservation(row pgx.Row) (*domain.MacroObservation, error) {
	var o domain.MacroObservation
	err := row.Scan(
		&o.Source, &o.SourceRef, &o.RunID, &o.SeriesID, &o.Frequency, &o.ObservationDate,
		&o.Value, &o.ValueText, &o.Units,
		&o.Payload, &o.CreatedAt, &o.IngestedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanMacroObservations(rows pgx.Rows) ([]*domain.MacroObservation, error) {
	var obs []*domain.MacroObservation
	for rows.Next() {
		o, err := scanMacroObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan macro observation row: %w", err)
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate macro observation rows: %w", err)
	}
	return obs, nil
}
