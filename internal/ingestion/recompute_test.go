package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage/memory"
)

type recomputeFixture struct {
	ledger      *memory.RunLedger
	bars        *memory.PriceBarStore
	calendar    *memory.CalendarEventStore
	barFeatures *memory.BarFeatureStore
	surprises   *memory.EventSurpriseStore
	rc          *Recompute
}

func newRecomputeFixture() *recomputeFixture {
	f := &recomputeFixture{
		ledger:      memory.NewRunLedger(),
		bars:        memory.NewPriceBarStore(),
		calendar:    memory.NewCalendarEventStore(),
		barFeatures: memory.NewBarFeatureStore(),
		surprises:   memory.NewEventSurpriseStore(),
	}
	f.rc = NewRecompute(RecomputeOptions{
		Ledger:      f.ledger,
		Bars:        f.bars,
		Calendar:    f.calendar,
		BarFeatures: f.barFeatures,
		Surprises:   f.surprises,
	})
	return f
}

func (f *recomputeFixture) seedBars(t *testing.T, symbol string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		b := testBar(0)
		b.Symbol = symbol
		b.BarTime = time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC).Add(time.Duration(i) * 15 * time.Minute)
		b.Close = 2400 + float64(i)
		require.NoError(t, f.bars.Upsert(context.Background(), b))
	}
}

func (f *recomputeFixture) seedReleases(t *testing.T, eventName string, values ...float64) {
	t.Helper()
	forecast := 100.0
	for i, v := range values {
		actual := v
		e := &domain.CalendarEvent{
			Provenance: domain.Provenance{Source: "forexfactory"},
			EventName:  eventName,
			EventTime:  time.Date(2026, 1, 7, 13, 30, 0, 0, time.UTC).AddDate(0, i, 0),
			Actual:     &actual,
			Forecast:   &forecast,
		}
		e.NormalizeKey()
		require.NoError(t, f.calendar.Upsert(context.Background(), e))
	}
}

func TestRecomputeBarFeatures(t *testing.T) {
	f := newRecomputeFixture()
	ctx := context.Background()
	f.seedBars(t, "XAUUSD", 3)

	result, err := f.rc.BarFeatures(ctx, domain.RunModeManual, "XAUUSD", "M15")
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSuccess, result.Status)
	assert.Equal(t, int64(3), result.Counts.RowsRead)
	assert.Equal(t, int64(3), result.Counts.RowsWritten)

	run, err := f.ledger.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "bar-features-recompute", run.PipelineName)
	assert.Equal(t, domain.RunStatusSuccess, run.Status)

	rows, err := f.barFeatures.GetBySymbolTimeframe(ctx, "XAUUSD", "M15")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Nil(t, rows[0].TR)
	require.NotNil(t, rows[1].TR)
	require.NotNil(t, rows[0].RunID)
	assert.Equal(t, result.RunID, *rows[0].RunID)
}

func TestRecomputeBarFeaturesUnknownSeries(t *testing.T) {
	f := newRecomputeFixture()

	result, err := f.rc.BarFeatures(context.Background(), domain.RunModeManual, "XAUUSD", "M15")
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSkipped, result.Status)
	assert.Equal(t, int64(0), result.Counts.RowsRead)
}

func TestRecomputeAllBarFeaturesCoversEverySeries(t *testing.T) {
	f := newRecomputeFixture()
	ctx := context.Background()
	f.seedBars(t, "XAUUSD", 2)
	f.seedBars(t, "EURUSD", 2)

	result, err := f.rc.AllBarFeatures(ctx, domain.RunModeScheduled)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSuccess, result.Status)
	assert.Equal(t, int64(4), result.Counts.RowsWritten)

	for _, symbol := range []string{"XAUUSD", "EURUSD"} {
		rows, err := f.barFeatures.GetBySymbolTimeframe(ctx, symbol, "M15")
		require.NoError(t, err)
		assert.Len(t, rows, 2, symbol)
	}
}

func TestRecomputeEventSurprises(t *testing.T) {
	f := newRecomputeFixture()
	ctx := context.Background()
	f.seedReleases(t, "Non-Farm Payrolls", 110, 90, 105, 120)

	result, err := f.rc.EventSurprises(ctx, domain.RunModeManual, "forexfactory", "Non-Farm Payrolls")
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSuccess, result.Status)
	assert.Equal(t, int64(4), result.Counts.RowsWritten)

	rows, err := f.surprises.GetBySeries(ctx, "forexfactory", "Non-Farm Payrolls")
	require.NoError(t, err)
	require.Len(t, rows, 4)

	require.NotNil(t, rows[0].Surprise)
	assert.InDelta(t, 10.0, *rows[0].Surprise, 1e-9)
	assert.Nil(t, rows[0].SurpriseZ)
	assert.NotNil(t, rows[3].SurpriseZ)
}

func TestRecomputeAllEventSurprisesCoversEverySeries(t *testing.T) {
	f := newRecomputeFixture()
	ctx := context.Background()
	f.seedReleases(t, "Non-Farm Payrolls", 110, 90)
	f.seedReleases(t, "CPI m/m", 101)

	result, err := f.rc.AllEventSurprises(ctx, domain.RunModeScheduled)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.Counts.RowsRead)
	assert.Equal(t, int64(3), result.Counts.RowsWritten)

	nfp, err := f.surprises.GetBySeries(ctx, "forexfactory", "Non-Farm Payrolls")
	require.NoError(t, err)
	assert.Len(t, nfp, 2)

	cpi, err := f.surprises.GetBySeries(ctx, "forexfactory", "CPI m/m")
	require.NoError(t, err)
	assert.Len(t, cpi, 1)
}

func TestRecomputeCancelledContext(t *testing.T) {
	f := newRecomputeFixture()
	f.seedBars(t, "XAUUSD", 3)

	// A ledger that fails closes on a dead context must still see the
	// run close cancelled.
	f.rc.ledger = &ctxAwareLedger{RunLedger: f.ledger}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.rc.BarFeatures(ctx, domain.RunModeManual, "XAUUSD", "M15")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, result.Status)

	run, err := f.ledger.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	require.NotNil(t, run.EndedAt)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	f := newRecomputeFixture()
	ctx := context.Background()
	f.seedBars(t, "XAUUSD", 2)

	_, err := f.rc.BarFeatures(ctx, domain.RunModeManual, "XAUUSD", "M15")
	require.NoError(t, err)
	first, err := f.barFeatures.GetBySymbolTimeframe(ctx, "XAUUSD", "M15")
	require.NoError(t, err)

	_, err = f.rc.BarFeatures(ctx, domain.RunModeManual, "XAUUSD", "M15")
	require.NoError(t, err)
	second, err := f.barFeatures.GetBySymbolTimeframe(ctx, "XAUUSD", "M15")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Range, second[i].Range)
		assert.Equal(t, first[i].TR, second[i].TR)
		assert.Equal(t, first[i].CreatedAt, second[i].CreatedAt)
	}
}
