package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// CalendarEventStore implements storage.CalendarEventStore using PostgreSQL.
type CalendarEventStore struct {
	pool *Pool
}

// NewCalendarEventStore creates a new CalendarEventStore.
func NewCalendarEventStore(pool *Pool) *CalendarEventStore {
	return &CalendarEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CalendarEventStore = (*CalendarEventStore)(nil)

const calendarEventColumns = `
	source, COALESCE(source_ref, ''), run_id, event_id, event_time_utc, event_name,
	COALESCE(currency, ''), COALESCE(country, ''), COALESCE(impact, ''), impact_score,
	COALESCE(actual_raw, ''), COALESCE(forecast_raw, ''), COALESCE(previous_raw, ''), COALESCE(revision_raw, ''),
	actual, forecast, previous, revision, COALESCE(url, ''),
	payload, created_at, ingested_at, updated_at
`

// Upsert inserts or fully overwrites the row keyed by
// (source, event_id, event_time_utc). The incoming record is authoritative
// in full; created_at is preserved, ingested_at and updated_at refreshed.
func (s *CalendarEventStore) Upsert(ctx context.Context, e *domain.CalendarEvent) error {
	if e == nil {
		return storage.ErrInvalidInput
	}
	e.NormalizeKey()
	if err := e.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO raw.calendar_events (
			source, source_ref, run_id, event_id, event_time_utc, event_name,
			currency, country, impact, impact_score,
			actual_raw, forecast_raw, previous_raw, revision_raw,
			actual, forecast, previous, revision, url, payload
		) VALUES (
			$1, NULLIF($2, ''), $3, $4, $5, $6,
			NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10,
			NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''),
			$15, $16, $17, $18, NULLIF($19, ''), COALESCE($20, '{}'::jsonb)
		)
		ON CONFLICT (source, event_id, event_time_utc) DO UPDATE SET
			source_ref   = EXCLUDED.source_ref,
			run_id       = EXCLUDED.run_id,
			event_name   = EXCLUDED.event_name,
			currency     = EXCLUDED.currency,
			country      = EXCLUDED.country,
			impact       = EXCLUDED.impact,
			impact_score = EXCLUDED.impact_score,
			actual_raw   = EXCLUDED.actual_raw,
			forecast_raw = EXCLUDED.forecast_raw,
			previous_raw = EXCLUDED.previous_raw,
			revision_raw = EXCLUDED.revision_raw,
			actual       = EXCLUDED.actual,
			forecast     = EXCLUDED.forecast,
			previous     = EXCLUDED.previous,
			revision     = EXCLUDED.revision,
			url          = EXCLUDED.url,
			payload      = EXCLUDED.payload,
			ingested_at  = now(),
			updated_at   = now()
		RETURNING created_at, ingested_at, updated_at
	`

	err := s.pool.QueryRow(ctx, query,
		e.Source, e.SourceRef, e.RunID, e.EventID, e.EventTime, e.EventName,
		e.Currency, e.Country, e.Impact, e.ImpactScore,
		e.ActualRaw, e.ForecastRaw, e.PreviousRaw, e.RevisionRaw,
		e.Actual, e.Forecast, e.Previous, e.Revision, e.URL, []byte(e.Payload),
	).Scan(&e.CreatedAt, &e.IngestedAt, &e.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: calendar event rejected by schema constraint: %v", domain.ErrValidation, err)
		}
		return fmt.Errorf("upsert calendar event: %w", err)
	}
	return nil
}

// GetByKey retrieves one event. Returns ErrNotFound if not exists.
func (s *CalendarEventStore) GetByKey(ctx context.Context, source, eventID string, eventTime time.Time) (*domain.CalendarEvent, error) {
	query := `
		SELECT ` + calendarEventColumns + `
		FROM raw.calendar_events
		WHERE source = $1 AND event_id = $2 AND event_time_utc = $3
	`

	e, err := scanCalendarEvent(s.pool.QueryRow(ctx, query, source, eventID, eventTime))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get calendar event: %w", err)
	}
	return e, nil
}

// GetBySeries retrieves all occurrences of an event series, ordered by
// event_time ASC.
func (s *CalendarEventStore) GetBySeries(ctx context.Context, source, eventName string) ([]*domain.CalendarEvent, error) {
	query := `
		SELECT ` + calendarEventColumns + `
		FROM raw.calendar_events
		WHERE source = $1 AND event_name = $2
		ORDER BY event_time_utc ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, source, eventName)
	if err != nil {
		return nil, fmt.Errorf("get calendar events by series: %w", err)
	}
	defer rows.Close()

	return scanCalendarEvents(rows)
}

// LatestPerSeries projects the most recent occurrence per
// (source, event_name). Reads the latest.calendar_events view.
func (s *CalendarEventStore) LatestPerSeries(ctx context.Context) ([]*domain.CalendarEvent, error) {
	query := `
		SELECT ` + calendarEventColumns + `
		FROM latest.calendar_events
		ORDER BY source ASC, event_name ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest calendar events: %w", err)
	}
	defer rows.Close()

	return scanCalendarEvents(rows)
}

func scanCalendarEvent(row pgx.Row) (*domain.CalendarEvent, error) {
	var e domain.CalendarEvent
	err := row.Scan(
		&e.Source, &e.SourceRef, &e.RunID, &e.EventID, &e.EventTime, &e.EventName,
		&e.Currency, &e.Country, &e.Impact, &e.ImpactScore,
		&e.ActualRaw, &e.ForecastRaw, &e.PreviousRaw, &e.RevisionRaw,
		&e.Actual, &e.Forecast, &e.Previous, &e.Revision, &e.URL,
		&e.Payload, &e.CreatedAt, &e.IngestedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanCalendarEvents(rows pgx.Rows) ([]*domain.CalendarEvent, error) {
	var events []*domain.CalendarEvent
	for rows.Next() {
		e, err := scanCalendarEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendar event rows: %w", err)
	}
	return events, nil
}
