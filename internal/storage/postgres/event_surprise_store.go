package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// EventSurpriseStore implements storage.EventSurpriseStore using PostgreSQL.
type EventSurpriseStore struct {
	pool *Pool
}

// NewEventSurpriseStore creates a new EventSurpriseStore.
func NewEventSurpriseStore(pool *Pool) *EventSurpriseStore {
	return &EventSurpriseStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventSurpriseStore = (*EventSurpriseStore)(nil)

const eventSurpriseColumns = `
	run_id, source, event_id, event_time_utc, event_name,
	actual, forecast, previous, surprise, surprise_pct, surprise_z,
	created_at, ingested_at, updated_at
`

// Upsert inserts or fully overwrites the surprise row keyed by
// (source, event_id, event_time_utc).
func (s *EventSurpriseStore) Upsert(ctx context.Context, es *domain.EventSurprise) error {
	if es == nil || es.Source == "" || es.EventID == "" || es.EventTime.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO features.event_surprises (
			run_id, source, event_id, event_time_utc, event_name,
			actual, forecast, previous, surprise, surprise_pct, surprise_z
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (source, event_id, event_time_utc) DO UPDATE SET
			run_id       = EXCLUDED.run_id,
			event_name   = EXCLUDED.event_name,
			actual       = EXCLUDED.actual,
			forecast     = EXCLUDED.forecast,
			previous     = EXCLUDED.previous,
			surprise     = EXCLUDED.surprise,
			surprise_pct = EXCLUDED.surprise_pct,
			surprise_z   = EXCLUDED.surprise_z,
			ingested_at  = now(),
			updated_at   = now()
		RETURNING created_at, ingested_at, updated_at
	`

	err := s.pool.QueryRow(ctx, query,
		es.RunID, es.Source, es.EventID, es.EventTime, es.EventName,
		es.Actual, es.Forecast, es.Previous, es.Surprise, es.SurprisePct, es.SurpriseZ,
	).Scan(&es.CreatedAt, &es.IngestedAt, &es.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert event surprise: %w", err)
	}
	return nil
}

// GetBySeries retrieves all surprise rows of an event series, ordered by
// event_time ASC.
func (s *EventSurpriseStore) GetBySeries(ctx context.Context, source, eventName string) ([]*domain.EventSurprise, error) {
	query := `
		SELECT ` + eventSurpriseColumns + `
		FROM features.event_surprises
		WHERE source = $1 AND event_name = $2
		ORDER BY event_time_utc ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, source, eventName)
	if err != nil {
		return nil, fmt.Errorf("get event surprises by series: %w", err)
	}
	defer rows.Close()

	return scanEventSurprises(rows)
}

// LatestPerSeries projects the most recent surprise per
// (source, event_name). Reads the latest.event_surprises view.
func (s *EventSurpriseStore) LatestPerSeries(ctx context.Context) ([]*domain.EventSurprise, error) {
	query := `
		SELECT ` + eventSurpriseColumns + `
		FROM latest.event_surprises
		ORDER BY source ASC, event_name ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest event surprises: %w", err)
	}
	defer rows.Close()

	return scanEventSurprises(rows)
}

func scanEventSurprise(row pgx.Row) (*domain.EventSurprise, error) {
	var es domain.EventSurprise
	err := row.Scan(
		&es.RunID, &es.Source, &es.EventID, &es.EventTime, &es.EventName,
		&es.Actual, &es.Forecast, &es.Previous, &es.Surprise, &es.SurprisePct, &es.SurpriseZ,
		&es.CreatedAt, &es.IngestedAt, &es.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &es, nil
}

func scanEventSurprises(rows pgx.Rows) ([]*domain.EventSurprise, error) {
	var surprises []*domain.EventSurprise
	for rows.Next() {
		es, err := scanEventSurprise(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event surprise row: %w", err)
		}
		surprises = append(surprises, es)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event surprise rows: %w", err)
	}
	return surprises, nil
}
