package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
	"market-data-warehouse/internal/storage/memory"
)

type runnerFixture struct {
	ledger   *memory.RunLedger
	bars     *memory.PriceBarStore
	calendar *memory.CalendarEventStore
	sink     *memory.RevisionSink
	runner   *Runner
}

func newRunnerFixture(opts func(*RunnerOptions)) *runnerFixture {
	f := &runnerFixture{
		ledger:   memory.NewRunLedger(),
		bars:     memory.NewPriceBarStore(),
		calendar: memory.NewCalendarEventStore(),
		sink:     memory.NewRevisionSink(),
	}

	o := RunnerOptions{
		Ledger:    f.ledger,
		Calendar:  f.calendar,
		Macro:     memory.NewMacroObservationStore(),
		Bars:      f.bars,
		Futures:   memory.NewFuturesQuoteStore(),
		RateProbs: memory.NewRateProbabilityStore(),
		Revisions: f.sink,
	}
	if opts != nil {
		opts(&o)
	}
	f.runner = NewRunner(o)
	return f
}

func testBar(minute int) *domain.PriceBar {
	return &domain.PriceBar{
		Provenance: domain.Provenance{Source: "mt5"},
		Symbol:     "XAUUSD",
		Timeframe:  "M15",
		BarTime:    time.Date(2026, 8, 20, 14, minute, 0, 0, time.UTC),
		Open:       2400, High: 2410, Low: 2395, Close: 2405,
		TickVolume: 100,
	}
}

func TestIngestPriceBarsSuccess(t *testing.T) {
	f := newRunnerFixture(nil)
	ctx := context.Background()

	result, err := f.runner.IngestPriceBars(ctx, domain.RunModeScheduled, "mt5/terminal-1", []*domain.PriceBar{testBar(0), testBar(15)})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSuccess, result.Status)
	assert.Equal(t, int64(2), result.Counts.RowsRead)
	assert.Equal(t, int64(2), result.Counts.RowsWritten)
	assert.Equal(t, int64(0), result.Counts.RowsError)
	assert.Empty(t, result.Rejects)

	run, err := f.ledger.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "bar-ingest", run.PipelineName)
	assert.Equal(t, domain.RunStatusSuccess, run.Status)
	assert.Equal(t, int64(2), run.RowsWritten)
	assert.Empty(t, run.ErrorMessage)
	require.NotNil(t, run.EndedAt)

	stored, err := f.bars.GetByKey(ctx, "XAUUSD", "M15", testBar(0).BarTime)
	require.NoError(t, err)
	require.NotNil(t, stored.RunID)
	assert.Equal(t, result.RunID, *stored.RunID)

	revs, err := f.sink.LatestByKey(ctx, domain.FamilyPriceBar)
	require.NoError(t, err)
	assert.Len(t, revs, 2)
}

func TestIngestPriceBarsPartialOnValidationFailure(t *testing.T) {
	f := newRunnerFixture(nil)
	ctx := context.Background()

	bad := testBar(15)
	bad.High = bad.Low - 1

	result, err := f.runner.IngestPriceBars(ctx, domain.RunModeManual, "mt5/terminal-1", []*domain.PriceBar{testBar(0), bad, testBar(30)})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusPartial, result.Status)
	assert.Equal(t, int64(3), result.Counts.RowsRead)
	assert.Equal(t, int64(2), result.Counts.RowsWritten)
	assert.Equal(t, int64(1), result.Counts.RowsError)

	require.Len(t, result.Rejects, 1)
	assert.Equal(t, 1, result.Rejects[0].Index)
	assert.ErrorIs(t, result.Rejects[0].Err, domain.ErrValidation)

	run, err := f.ledger.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPartial, run.Status)
	assert.Contains(t, run.ErrorMessage, "1 of 3 records rejected")

	// The record after the reject still landed.
	_, err = f.bars.GetByKey(ctx, "XAUUSD", "M15", testBar(30).BarTime)
	assert.NoError(t, err)

	// Only accepted records reach the revision log.
	revs, err := f.sink.LatestByKey(ctx, domain.FamilyPriceBar)
	require.NoError(t, err)
	assert.Len(t, revs, 2)
}

func TestIngestAllRejectedFails(t *testing.T) {
	f := newRunnerFixture(nil)
	ctx := context.Background()

	bad := testBar(0)
	bad.Symbol = ""

	result, err := f.runner.IngestPriceBars(ctx, domain.RunModeManual, "mt5/terminal-1", []*domain.PriceBar{bad})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusFailed, result.Status)
	assert.Equal(t, int64(1), result.Counts.RowsError)
	assert.Equal(t, int64(0), result.Counts.RowsWritten)
}

func TestIngestEmptyBatchSkipped(t *testing.T) {
	f := newRunnerFixture(nil)

	result, err := f.runner.IngestPriceBars(context.Background(), domain.RunModeScheduled, "mt5/terminal-1", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSkipped, result.Status)
	assert.Equal(t, int64(0), result.Counts.RowsRead)
}

// ctxAwareLedger fails writes on a dead context, like the Postgres
// ledger does.
type ctxAwareLedger struct {
	*memory.RunLedger
}

func (l *ctxAwareLedger) CloseRun(ctx context.Context, runID uuid.UUID, status domain.RunStatus, counts domain.RunCounts, errorMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.RunLedger.CloseRun(ctx, runID, status, counts, errorMessage)
}

func TestIngestCancelledContext(t *testing.T) {
	f := newRunnerFixture(func(o *RunnerOptions) {
		o.Ledger = &ctxAwareLedger{RunLedger: o.Ledger.(*memory.RunLedger)}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.runner.IngestPriceBars(ctx, domain.RunModeScheduled, "mt5/terminal-1", []*domain.PriceBar{testBar(0)})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCancelled, result.Status)
	assert.Equal(t, int64(0), result.Counts.RowsWritten)

	// The close must survive the cancellation; the run must not stay
	// running.
	run, err := f.ledger.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	require.NotNil(t, run.EndedAt)
}

type flakyBarStore struct {
	*memory.PriceBarStore
	failAfter int
	seen      int
}

func (s *flakyBarStore) Upsert(ctx context.Context, b *domain.PriceBar) error {
	s.seen++
	if s.seen > s.failAfter {
		return errors.New("connection reset by peer")
	}
	return s.PriceBarStore.Upsert(ctx, b)
}

func TestIngestInfrastructureFailureAborts(t *testing.T) {
	flaky := &flakyBarStore{PriceBarStore: memory.NewPriceBarStore(), failAfter: 1}
	f := newRunnerFixture(func(o *RunnerOptions) { o.Bars = flaky })
	ctx := context.Background()

	result, err := f.runner.IngestPriceBars(ctx, domain.RunModeScheduled, "mt5/terminal-1", []*domain.PriceBar{testBar(0), testBar(15), testBar(30)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, domain.RunStatusFailed, result.Status)
	assert.Equal(t, int64(2), result.Counts.RowsRead)
	assert.Equal(t, int64(1), result.Counts.RowsWritten)

	run, lerr := f.ledger.GetRun(ctx, result.RunID)
	require.NoError(t, lerr)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "connection reset")
}

type failingSink struct{}

func (failingSink) Append(context.Context, *domain.Revision) error {
	return errors.New("clickhouse unavailable")
}

func (failingSink) LatestByKey(context.Context, domain.SourceFamily) ([]*domain.Revision, error) {
	return nil, nil
}

var _ storage.RevisionSink = failingSink{}

func TestIngestSurvivesRevisionSinkFailure(t *testing.T) {
	f := newRunnerFixture(func(o *RunnerOptions) { o.Revisions = failingSink{} })
	ctx := context.Background()

	result, err := f.runner.IngestPriceBars(ctx, domain.RunModeScheduled, "mt5/terminal-1", []*domain.PriceBar{testBar(0)})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSuccess, result.Status)
	assert.Equal(t, int64(1), result.Counts.RowsWritten)

	_, err = f.bars.GetByKey(ctx, "XAUUSD", "M15", testBar(0).BarTime)
	assert.NoError(t, err)
}

func TestIngestCalendarEventsRevisionPayload(t *testing.T) {
	f := newRunnerFixture(nil)
	ctx := context.Background()

	withPayload := &domain.CalendarEvent{
		Provenance: domain.Provenance{
			Source:  "forexfactory",
			Payload: json.RawMessage(`{"impact":"High"}`),
		},
		EventID:   "ff-123",
		EventName: "Non-Farm Payrolls",
		EventTime: time.Date(2026, 8, 7, 12, 30, 0, 0, time.UTC),
	}
	withoutPayload := &domain.CalendarEvent{
		Provenance: domain.Provenance{Source: "forexfactory"},
		EventID:    "ff-456",
		EventName:  "CPI m/m",
		EventTime:  time.Date(2026, 8, 12, 12, 30, 0, 0, time.UTC),
	}

	result, err := f.runner.IngestCalendarEvents(ctx, domain.RunModeScheduled, "forexfactory/this-week", []*domain.CalendarEvent{withPayload, withoutPayload})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, result.Status)

	revs, err := f.sink.LatestByKey(ctx, domain.FamilyCalendarEvent)
	require.NoError(t, err)
	require.Len(t, revs, 2)

	byKey := make(map[string]*domain.Revision)
	for _, rev := range revs {
		byKey[rev.NaturalKey] = rev
		require.NotNil(t, rev.RunID)
		assert.Equal(t, result.RunID, *rev.RunID)
		assert.False(t, rev.IngestedAt.IsZero())
	}

	assert.JSONEq(t, `{"impact":"High"}`, string(byKey[withPayload.NaturalKey()].Payload))
	assert.JSONEq(t, `{}`, string(byKey[withoutPayload.NaturalKey()].Payload))
}

func TestIngestCalendarEventsCoalescesRevisionKey(t *testing.T) {
	f := newRunnerFixture(nil)
	ctx := context.Background()

	// No published id: the stored row's key uses the coalesced
	// source:name:time event id, and the revision row must match it.
	event := &domain.CalendarEvent{
		Provenance: domain.Provenance{Source: "forexfactory"},
		EventName:  "Non-Farm Payrolls",
		EventTime:  time.Date(2026, 8, 7, 12, 30, 0, 0, time.UTC),
	}

	result, err := f.runner.IngestCalendarEvents(ctx, domain.RunModeScheduled, "forexfactory/this-week", []*domain.CalendarEvent{event})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, result.Status)

	wantID := "forexfactory:Non-Farm Payrolls:2026-08-07T12:30:00Z"
	stored, err := f.calendar.GetByKey(ctx, "forexfactory", wantID, event.EventTime)
	require.NoError(t, err)

	revs, err := f.sink.LatestByKey(ctx, domain.FamilyCalendarEvent)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, stored.NaturalKey(), revs[0].NaturalKey)
}
