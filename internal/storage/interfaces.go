package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"market-data-warehouse/internal/domain"
)

// RunLedger tracks the lifecycle of pipeline runs.
type RunLedger interface {
	// OpenRun creates a run with status=running and the current time as
	// start. Returns domain.ErrValidation for an unrecognized run mode.
	OpenRun(ctx context.Context, pipelineName string, mode domain.RunMode, sourceRef string) (uuid.UUID, error)

	// CloseRun sets the end timestamp and a terminal status exactly once.
	// Returns ErrNotFound for an unknown run, ErrInvalidState when the run
	// is already terminal, domain.ErrValidation for a non-terminal target
	// status or negative counts.
	CloseRun(ctx context.Context, runID uuid.UUID, status domain.RunStatus, counts domain.RunCounts, errorMessage string) error

	// GetRun retrieves one run. Returns ErrNotFound if it does not exist.
	GetRun(ctx context.Context, runID uuid.UUID) (*domain.PipelineRun, error)

	// StaleRuns lists runs still in running status whose start is older
	// than the given window. Surfaces crashed pipelines; reconciliation is
	// an external operational procedure.
	StaleRuns(ctx context.Context, olderThan time.Duration) ([]*domain.PipelineRun, error)
}

// CalendarEventStore provides idempotent access to raw.calendar_events.
type CalendarEventStore interface {
	// Upsert inserts or fully overwrites the row with the event's natural
	// key (source, event_id, event_time). created_at is preserved on
	// overwrite; ingested_at and updated_at are refreshed.
	Upsert(ctx context.Context, e *domain.CalendarEvent) error

	// GetByKey retrieves one event. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, source, eventID string, eventTime time.Time) (*domain.CalendarEvent, error)

	// GetBySeries retrieves all occurrences of an event series, ordered by
	// event_time ASC.
	GetBySeries(ctx context.Context, source, eventName string) ([]*domain.CalendarEvent, error)

	// LatestPerSeries projects the most recent occurrence per
	// (source, event_name), tie-broken by ingested_at. Computed on read.
	LatestPerSeries(ctx context.Context) ([]*domain.CalendarEvent, error)
}

// MacroObservationStore provides idempotent access to raw.macro_observations.
type MacroObservationStore interface {
	Upsert(ctx context.Context, o *domain.MacroObservation) error

	// GetByKey retrieves one observation. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, seriesID string, freq domain.Frequency, date time.Time) (*domain.MacroObservation, error)

	// GetBySeries retrieves all observations of a series, ordered by
	// observation_date ASC.
	GetBySeries(ctx context.Context, seriesID string, freq domain.Frequency) ([]*domain.MacroObservation, error)

	// LatestPerSeries projects the most recent observation per
	// (series_id, frequency), tie-broken by ingested_at.
	LatestPerSeries(ctx context.Context) ([]*domain.MacroObservation, error)
}

// PriceBarStore provides idempotent access to raw.price_bars.
type PriceBarStore interface {
	Upsert(ctx context.Context, b *domain.PriceBar) error

	// GetByKey retrieves one bar. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, symbol, timeframe string, barTime time.Time) (*domain.PriceBar, error)

	// GetBySymbolTimeframe retrieves all bars for a symbol+timeframe,
	// ordered by bar_time ASC.
	GetBySymbolTimeframe(ctx context.Context, symbol, timeframe string) ([]*domain.PriceBar, error)

	// GetByTimeRange retrieves bars within [start, end] (inclusive),
	// ordered by bar_time ASC.
	GetByTimeRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]*domain.PriceBar, error)

	// LatestPerSymbol projects the most recent bar per (symbol, timeframe),
	// tie-broken by ingested_at.
	LatestPerSymbol(ctx context.Context) ([]*domain.PriceBar, error)
}

// FuturesQuoteStore provides idempotent access to raw.futures_quotes.
type FuturesQuoteStore interface {
	Upsert(ctx context.Context, q *domain.FuturesQuote) error

	// GetByKey retrieves one quote. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, productCode, contractMonth string, asOf time.Time) (*domain.FuturesQuote, error)

	// GetByContract retrieves all quotes for a contract, ordered by
	// as_of_time ASC.
	GetByContract(ctx context.Context, productCode, contractMonth string) ([]*domain.FuturesQuote, error)

	// LatestPerContract projects the most recent quote per
	// (product_code, contract_month), tie-broken by ingested_at.
	LatestPerContract(ctx context.Context) ([]*domain.FuturesQuote, error)
}

// RateProbabilityStore provides idempotent access to raw.rate_probabilities.
type RateProbabilityStore interface {
	Upsert(ctx context.Context, p *domain.RateProbability) error

	// GetByMeeting retrieves all bins for one meeting, ordered by rate_bin.
	GetByMeeting(ctx context.Context, underlying string, meetingDate time.Time) ([]*domain.RateProbability, error)

	// LatestPerBin projects the most recent snapshot per
	// (underlying, meeting_date, rate_bin), tie-broken by ingested_at.
	LatestPerBin(ctx context.Context) ([]*domain.RateProbability, error)
}

// BarFeatureStore provides idempotent access to features.bar_features.
type BarFeatureStore interface {
	Upsert(ctx context.Context, f *domain.BarFeature) error

	// GetBySymbolTimeframe retrieves all feature rows for a
	// symbol+timeframe, ordered by bar_time ASC.
	GetBySymbolTimeframe(ctx context.Context, symbol, timeframe string) ([]*domain.BarFeature, error)

	// LatestPerSymbol projects the most recent feature row per
	// (symbol, timeframe), tie-broken by ingested_at.
	LatestPerSymbol(ctx context.Context) ([]*domain.BarFeature, error)
}

// EventSurpriseStore provides idempotent access to features.event_surprises.
type EventSurpriseStore interface {
	Upsert(ctx context.Context, s *domain.EventSurprise) error

	// GetBySeries retrieves all surprise rows of an event series, ordered
	// by event_time ASC.
	GetBySeries(ctx context.Context, source, eventName string) ([]*domain.EventSurprise, error)

	// LatestPerSeries projects the most recent surprise per
	// (source, event_name), tie-broken by ingested_at.
	LatestPerSeries(ctx context.Context) ([]*domain.EventSurprise, error)
}

// RevisionSink records accepted raw upserts append-only for audit. The
// canonical store stays authoritative; sink failures must not fail the
// ingest that produced the revision.
type RevisionSink interface {
	Append(ctx context.Context, rev *domain.Revision) error

	// LatestByKey returns the most recently ingested revision per natural
	// key within a family.
	LatestByKey(ctx context.Context, family domain.SourceFamily) ([]*domain.Revision, error)
}
