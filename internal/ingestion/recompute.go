package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/features"
	"market-data-warehouse/internal/observability"
	"market-data-warehouse/internal/storage"
)

// Recompute rebuilds the derived feature layer from raw rows. Feature
// rows are overwritten in place, so a recompute over unchanged raw data
// is a no-op apart from refreshed write timestamps.
type Recompute struct {
	ledger      storage.RunLedger
	bars        storage.PriceBarStore
	calendar    storage.CalendarEventStore
	barFeatures storage.BarFeatureStore
	surprises   storage.EventSurpriseStore
	metrics     *observability.Metrics
	logger      *log.Logger
}

// RecomputeOptions contains the dependencies for creating a Recompute.
type RecomputeOptions struct {
	Ledger      storage.RunLedger
	Bars        storage.PriceBarStore
	Calendar    storage.CalendarEventStore
	BarFeatures storage.BarFeatureStore
	Surprises   storage.EventSurpriseStore
	Metrics     *observability.Metrics
	Logger      *log.Logger
}

// NewRecompute creates a new recompute job runner.
func NewRecompute(opts RecomputeOptions) *Recompute {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Recompute{
		ledger:      opts.Ledger,
		bars:        opts.Bars,
		calendar:    opts.Calendar,
		barFeatures: opts.BarFeatures,
		surprises:   opts.Surprises,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

// BarFeatures recomputes the feature rows of one (symbol, timeframe)
// under a ledger entry.
func (rc *Recompute) BarFeatures(ctx context.Context, mode domain.RunMode, symbol, timeframe string) (*Result, error) {
	sourceRef := fmt.Sprintf("%s/%s", symbol, timeframe)
	return rc.run(ctx, "bar-features-recompute", mode, sourceRef, func(ctx context.Context, result *Result) error {
		return rc.recomputeBarSeries(ctx, result, symbol, timeframe)
	})
}

// AllBarFeatures recomputes every (symbol, timeframe) present in the raw
// bar layer under a single ledger entry.
func (rc *Recompute) AllBarFeatures(ctx context.Context, mode domain.RunMode) (*Result, error) {
	return rc.run(ctx, "bar-features-recompute", mode, "all", func(ctx context.Context, result *Result) error {
		heads, err := rc.bars.LatestPerSymbol(ctx)
		if err != nil {
			return fmt.Errorf("list bar series: %w", err)
		}
		for _, head := range heads {
			if err := rc.recomputeBarSeries(ctx, result, head.Symbol, head.Timeframe); err != nil {
				return err
			}
		}
		return nil
	})
}

// EventSurprises recomputes the surprise rows of one event series under
// a ledger entry.
func (rc *Recompute) EventSurprises(ctx context.Context, mode domain.RunMode, source, eventName string) (*Result, error) {
	sourceRef := fmt.Sprintf("%s/%s", source, eventName)
	return rc.run(ctx, "event-surprises-recompute", mode, sourceRef, func(ctx context.Context, result *Result) error {
		return rc.recomputeSurpriseSeries(ctx, result, source, eventName)
	})
}

// AllEventSurprises recomputes every event series present in the raw
// calendar layer under a single ledger entry.
func (rc *Recompute) AllEventSurprises(ctx context.Context, mode domain.RunMode) (*Result, error) {
	return rc.run(ctx, "event-surprises-recompute", mode, "all", func(ctx context.Context, result *Result) error {
		heads, err := rc.calendar.LatestPerSeries(ctx)
		if err != nil {
			return fmt.Errorf("list event series: %w", err)
		}
		for _, head := range heads {
			if err := rc.recomputeSurpriseSeries(ctx, result, head.Source, head.EventName); err != nil {
				return err
			}
		}
		return nil
	})
}

func (rc *Recompute) recomputeBarSeries(ctx context.Context, result *Result, symbol, timeframe string) error {
	bars, err := rc.bars.GetBySymbolTimeframe(ctx, symbol, timeframe)
	if err != nil {
		return fmt.Errorf("load bars %s/%s: %w", symbol, timeframe, err)
	}
	result.Counts.RowsRead += int64(len(bars))

	for _, f := range features.ComputeBarFeatures(bars) {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.RunID = &result.RunID
		if err := rc.barFeatures.Upsert(ctx, f); err != nil {
			return fmt.Errorf("upsert bar feature %s/%s@%s: %w", symbol, timeframe, f.BarTime.Format(time.RFC3339), err)
		}
		result.Counts.RowsWritten++
		if rc.metrics != nil {
			rc.metrics.BarFeaturesComputed.Inc()
		}
	}
	return nil
}

func (rc *Recompute) recomputeSurpriseSeries(ctx context.Context, result *Result, source, eventName string) error {
	events, err := rc.calendar.GetBySeries(ctx, source, eventName)
	if err != nil {
		return fmt.Errorf("load events %s/%s: %w", source, eventName, err)
	}
	result.Counts.RowsRead += int64(len(events))

	for _, es := range features.ComputeEventSurprises(events) {
		if err := ctx.Err(); err != nil {
			return err
		}
		es.RunID = &result.RunID
		if err := rc.surprises.Upsert(ctx, es); err != nil {
			return fmt.Errorf("upsert surprise %s/%s: %w", source, es.EventID, err)
		}
		result.Counts.RowsWritten++
		if rc.metrics != nil {
			rc.metrics.EventSurprisesComputed.Inc()
		}
	}
	return nil
}

// run wraps a recompute body in ledger bookkeeping.
func (rc *Recompute) run(ctx context.Context, pipeline string, mode domain.RunMode, sourceRef string, body func(context.Context, *Result) error) (*Result, error) {
	runID, err := rc.ledger.OpenRun(ctx, pipeline, mode, sourceRef)
	if err != nil {
		return nil, fmt.Errorf("open run: %w", err)
	}

	started := time.Now()
	result := &Result{RunID: runID}

	fatal := body(ctx, result)
	result.Status = closeStatus(fatal, &result.Counts)
	// A recompute that read rows and wrote none is healthy when the
	// series is too short to produce features.
	if fatal == nil && result.Status == domain.RunStatusFailed {
		result.Status = domain.RunStatusSuccess
	}

	errMsg := ""
	if fatal != nil {
		errMsg = fatal.Error()
	}
	// The close must land even when the body stopped on a cancelled
	// context, or the run would stay running forever.
	if err := rc.ledger.CloseRun(context.WithoutCancel(ctx), runID, result.Status, result.Counts, errMsg); err != nil {
		return result, fmt.Errorf("close run %s: %w", runID, err)
	}
	rc.logger.Printf("%s %s closed %s: read=%d written=%d",
		pipeline, sourceRef, result.Status, result.Counts.RowsRead, result.Counts.RowsWritten)

	if rc.metrics != nil {
		rc.metrics.RunsTotal.WithLabelValues(pipeline, result.Status.String()).Inc()
		rc.metrics.RunDuration.WithLabelValues(pipeline).Observe(time.Since(started).Seconds())
		if result.Status == domain.RunStatusSuccess {
			rc.metrics.LastSuccessfulRun.SetToCurrentTime()
		}
	}

	if fatal != nil && !errors.Is(fatal, context.Canceled) {
		return result, fatal
	}
	return result, nil
}
