// Package ingestion orchestrates batch writes into the raw layer under
// the run ledger, with per-record failure isolation and best-effort
// revision logging.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/observability"
	"market-data-warehouse/internal/storage"
)

// Runner executes ingestion batches. Every batch runs under a ledger
// entry; a record that fails validation is rejected and counted without
// touching the rest of the batch, while an infrastructure failure aborts
// the batch.
type Runner struct {
	ledger    storage.RunLedger
	calendar  storage.CalendarEventStore
	macro     storage.MacroObservationStore
	bars      storage.PriceBarStore
	futures   storage.FuturesQuoteStore
	rateProbs storage.RateProbabilityStore
	revisions storage.RevisionSink // optional; nil disables revision logging
	metrics   *observability.Metrics
	logger    *log.Logger
}

// RunnerOptions contains the dependencies for creating a Runner.
type RunnerOptions struct {
	Ledger    storage.RunLedger
	Calendar  storage.CalendarEventStore
	Macro     storage.MacroObservationStore
	Bars      storage.PriceBarStore
	Futures   storage.FuturesQuoteStore
	RateProbs storage.RateProbabilityStore
	Revisions storage.RevisionSink
	Metrics   *observability.Metrics
	Logger    *log.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		ledger:    opts.Ledger,
		calendar:  opts.Calendar,
		macro:     opts.Macro,
		bars:      opts.Bars,
		futures:   opts.Futures,
		rateProbs: opts.RateProbs,
		revisions: opts.Revisions,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// RecordError describes one rejected record within a batch.
type RecordError struct {
	Index int
	Key   string
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.Key, e.Err)
}

// Result summarizes one closed ingestion run.
type Result struct {
	RunID   uuid.UUID
	Status  domain.RunStatus
	Counts  domain.RunCounts
	Rejects []RecordError
}

// IngestCalendarEvents writes a batch of calendar events.
func (r *Runner) IngestCalendarEvents(ctx context.Context, mode domain.RunMode, sourceRef string, events []*domain.CalendarEvent) (*Result, error) {
	return runBatch(ctx, r, "calendar-ingest", mode, sourceRef, domain.FamilyCalendarEvent, events,
		func(ctx context.Context, e *domain.CalendarEvent) error { return r.calendar.Upsert(ctx, e) },
		func(e *domain.CalendarEvent) (*domain.Provenance, string, time.Time) {
			// Fill the coalesced event id first so the revision key
			// matches the stored row's key.
			e.NormalizeKey()
			return &e.Provenance, e.NaturalKey(), e.EventTime
		},
	)
}

// IngestMacroObservations writes a batch of macro observations.
func (r *Runner) IngestMacroObservations(ctx context.Context, mode domain.RunMode, sourceRef string, obs []*domain.MacroObservation) (*Result, error) {
	return runBatch(ctx, r, "macro-ingest", mode, sourceRef, domain.FamilyMacroObservation, obs,
		func(ctx context.Context, o *domain.MacroObservation) error { return r.macro.Upsert(ctx, o) },
		func(o *domain.MacroObservation) (*domain.Provenance, string, time.Time) {
			return &o.Provenance, o.NaturalKey(), o.ObservationDate
		},
	)
}

// IngestPriceBars writes a batch of price bars.
func (r *Runner) IngestPriceBars(ctx context.Context, mode domain.RunMode, sourceRef string, bars []*domain.PriceBar) (*Result, error) {
	return runBatch(ctx, r, "bar-ingest", mode, sourceRef, domain.FamilyPriceBar, bars,
		func(ctx context.Context, b *domain.PriceBar) error { return r.bars.Upsert(ctx, b) },
		func(b *domain.PriceBar) (*domain.Provenance, string, time.Time) {
			return &b.Provenance, b.NaturalKey(), b.BarTime
		},
	)
}

// IngestFuturesQuotes writes a batch of futures quotes.
func (r *Runner) IngestFuturesQuotes(ctx context.Context, mode domain.RunMode, sourceRef string, quotes []*domain.FuturesQuote) (*Result, error) {
	return runBatch(ctx, r, "futures-ingest", mode, sourceRef, domain.FamilyFuturesQuote, quotes,
		func(ctx context.Context, q *domain.FuturesQuote) error { return r.futures.Upsert(ctx, q) },
		func(q *domain.FuturesQuote) (*domain.Provenance, string, time.Time) {
			return &q.Provenance, q.NaturalKey(), q.AsOfTime
		},
	)
}

// IngestRateProbabilities writes a batch of rate-probability snapshots.
func (r *Runner) IngestRateProbabilities(ctx context.Context, mode domain.RunMode, sourceRef string, probs []*domain.RateProbability) (*Result, error) {
	return runBatch(ctx, r, "rateprob-ingest", mode, sourceRef, domain.FamilyRateProbability, probs,
		func(ctx context.Context, p *domain.RateProbability) error { return r.rateProbs.Upsert(ctx, p) },
		func(p *domain.RateProbability) (*domain.Provenance, string, time.Time) {
			return &p.Provenance, p.NaturalKey(), p.AsOfTime
		},
	)
}

// runBatch is the shared batch loop. describe extracts the record's
// provenance (for run-id stamping), natural key, and primary timestamp.
func runBatch[T any](
	ctx context.Context,
	r *Runner,
	pipeline string,
	mode domain.RunMode,
	sourceRef string,
	family domain.SourceFamily,
	records []T,
	upsert func(context.Context, T) error,
	describe func(T) (*domain.Provenance, string, time.Time),
) (*Result, error) {
	runID, err := r.ledger.OpenRun(ctx, pipeline, mode, sourceRef)
	if err != nil {
		return nil, fmt.Errorf("open run: %w", err)
	}

	started := time.Now()
	result := &Result{RunID: runID}
	counts := &result.Counts

	var fatal error
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			fatal = err
			break
		}
		counts.RowsRead++
		if r.metrics != nil {
			r.metrics.RecordsRead.WithLabelValues(family.String()).Inc()
		}

		prov, key, primaryTS := describe(rec)
		prov.RunID = &runID

		upsertStart := time.Now()
		if err := upsert(ctx, rec); err != nil {
			if errors.Is(err, domain.ErrValidation) || errors.Is(err, storage.ErrInvalidInput) {
				counts.RowsError++
				result.Rejects = append(result.Rejects, RecordError{Index: i, Key: key, Err: err})
				if r.metrics != nil {
					r.metrics.ValidationFailures.WithLabelValues(family.String()).Inc()
				}
				r.logger.Printf("%s: rejected %s: %v", pipeline, key, err)
				continue
			}
			if r.metrics != nil {
				r.metrics.ObserveDBQuery("postgres", family.String()+"_upsert", upsertStart, err)
			}
			fatal = fmt.Errorf("upsert %s: %w", key, err)
			break
		}
		counts.RowsWritten++
		if r.metrics != nil {
			r.metrics.ObserveDBQuery("postgres", family.String()+"_upsert", upsertStart, nil)
			r.metrics.RecordsUpserted.WithLabelValues(family.String()).Inc()
		}

		r.appendRevision(ctx, family, key, primaryTS, prov)
	}

	result.Status = closeStatus(fatal, counts)

	errMsg := ""
	if fatal != nil {
		errMsg = fatal.Error()
	} else if counts.RowsError > 0 {
		errMsg = fmt.Sprintf("%d of %d records rejected", counts.RowsError, counts.RowsRead)
	}
	// The close must land even when the batch stopped on a cancelled
	// context, or the run would stay running forever.
	if err := r.ledger.CloseRun(context.WithoutCancel(ctx), runID, result.Status, *counts, errMsg); err != nil {
		// The writes themselves landed; surface the bookkeeping failure.
		return result, fmt.Errorf("close run %s: %w", runID, err)
	}

	if r.metrics != nil {
		r.metrics.RunsTotal.WithLabelValues(pipeline, result.Status.String()).Inc()
		r.metrics.RunDuration.WithLabelValues(pipeline).Observe(time.Since(started).Seconds())
		if result.Status == domain.RunStatusSuccess {
			r.metrics.LastSuccessfulRun.SetToCurrentTime()
		}
	}

	if fatal != nil && !errors.Is(fatal, context.Canceled) {
		return result, fatal
	}
	return result, nil
}

// closeStatus derives the terminal status of a batch. Cancellation wins,
// then an infrastructure failure, then the reject counts.
func closeStatus(fatal error, counts *domain.RunCounts) domain.RunStatus {
	switch {
	case errors.Is(fatal, context.Canceled) || errors.Is(fatal, context.DeadlineExceeded):
		return domain.RunStatusCancelled
	case fatal != nil:
		return domain.RunStatusFailed
	case counts.RowsRead == 0:
		return domain.RunStatusSkipped
	case counts.RowsWritten == 0:
		return domain.RunStatusFailed
	case counts.RowsError > 0:
		return domain.RunStatusPartial
	default:
		return domain.RunStatusSuccess
	}
}

// appendRevision records an accepted upsert in the revision log. Sink
// failures are logged and counted, never propagated: the canonical write
// already committed.
func (r *Runner) appendRevision(ctx context.Context, family domain.SourceFamily, key string, primaryTS time.Time, prov *domain.Provenance) {
	if r.revisions == nil {
		return
	}

	payload := prov.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	rev := &domain.Revision{
		Family:     family,
		NaturalKey: key,
		PrimaryTS:  primaryTS,
		IngestedAt: prov.IngestedAt,
		RunID:      prov.RunID,
		Payload:    payload,
	}
	if rev.IngestedAt.IsZero() {
		rev.IngestedAt = time.Now().UTC()
	}

	if err := r.revisions.Append(ctx, rev); err != nil {
		if r.metrics != nil {
			r.metrics.RevisionSinkErrors.Inc()
		}
		r.logger.Printf("revision log append failed for %s %s: %v", family, key, err)
		return
	}
	if r.metrics != nil {
		r.metrics.RevisionsAppended.WithLabelValues(family.String()).Inc()
	}
}
