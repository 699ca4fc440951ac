package features

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-warehouse/internal/domain"
)

func ptr[T any](v T) *T {
	return &v
}

func release(i int, actual, forecast *float64) *domain.CalendarEvent {
	return &domain.CalendarEvent{
		Provenance: domain.Provenance{Source: "forexfactory"},
		EventID:    fmt.Sprintf("ff-%d", i),
		EventTime:  time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC).AddDate(0, i, 0),
		EventName:  "Non-Farm Employment Change",
		Actual:     actual,
		Forecast:   forecast,
	}
}

func TestComputeEventSurprises_Empty(t *testing.T) {
	assert.Nil(t, ComputeEventSurprises(nil))
}

func TestComputeEventSurprises_Basic(t *testing.T) {
	events := []*domain.CalendarEvent{
		release(0, ptr(210000.0), ptr(180000.0)),
	}

	surprises := ComputeEventSurprises(events)
	require.Len(t, surprises, 1)

	s := surprises[0]
	require.NotNil(t, s.Surprise)
	assert.Equal(t, 30000.0, *s.Surprise)
	require.NotNil(t, s.SurprisePct)
	assert.InDelta(t, 30000.0/180000.0*100, *s.SurprisePct, 1e-9)
	assert.Nil(t, s.SurpriseZ, "no history yet")
}

func TestComputeEventSurprises_MissingSides(t *testing.T) {
	events := []*domain.CalendarEvent{
		release(0, nil, ptr(180000.0)),    // not yet released
		release(1, ptr(150000.0), nil),    // no forecast published
		release(2, ptr(100.0), ptr(0.0)),  // zero forecast
	}

	surprises := ComputeEventSurprises(events)
	require.Len(t, surprises, 3)

	assert.Nil(t, surprises[0].Surprise)
	assert.Nil(t, surprises[0].SurprisePct)
	assert.Nil(t, surprises[1].Surprise)

	require.NotNil(t, surprises[2].Surprise)
	assert.Equal(t, 100.0, *surprises[2].Surprise)
	assert.Nil(t, surprises[2].SurprisePct, "percent undefined against zero forecast")
}

func TestComputeEventSurprises_ZScore(t *testing.T) {
	// Prior surprises: -10, 0, 10 (mean 0, sample std 10).
	events := []*domain.CalendarEvent{
		release(0, ptr(90.0), ptr(100.0)),
		release(1, ptr(100.0), ptr(100.0)),
		release(2, ptr(110.0), ptr(100.0)),
		release(3, ptr(120.0), ptr(100.0)),
	}

	surprises := ComputeEventSurprises(events)
	require.Len(t, surprises, 4)

	for i := 0; i < 3; i++ {
		assert.Nil(t, surprises[i].SurpriseZ, "release %d lacks %d priors", i, MinSurpriseHistory)
	}

	require.NotNil(t, surprises[3].SurpriseZ)
	assert.InDelta(t, 2.0, *surprises[3].SurpriseZ, 1e-9, "(20 - 0) / 10")
}

func TestComputeEventSurprises_ZeroVariance(t *testing.T) {
	events := []*domain.CalendarEvent{
		release(0, ptr(105.0), ptr(100.0)),
		release(1, ptr(105.0), ptr(100.0)),
		release(2, ptr(105.0), ptr(100.0)),
		release(3, ptr(130.0), ptr(100.0)),
	}

	surprises := ComputeEventSurprises(events)
	assert.Nil(t, surprises[3].SurpriseZ, "identical priors give no spread to standardize against")
}

func TestComputeEventSurprises_SkipsUnreleasedInHistory(t *testing.T) {
	events := []*domain.CalendarEvent{
		release(0, ptr(90.0), ptr(100.0)),
		release(1, nil, ptr(100.0)), // contributes nothing to history
		release(2, ptr(100.0), ptr(100.0)),
		release(3, ptr(110.0), ptr(100.0)),
		release(4, ptr(120.0), ptr(100.0)),
	}

	surprises := ComputeEventSurprises(events)

	assert.Nil(t, surprises[3].SurpriseZ, "only 2 priors carry a surprise")
	require.NotNil(t, surprises[4].SurpriseZ)
	assert.False(t, math.IsNaN(*surprises[4].SurpriseZ))
}

func TestComputeEventSurprises_SortsInput(t *testing.T) {
	later := release(1, ptr(110.0), ptr(100.0))
	earlier := release(0, ptr(90.0), ptr(100.0))

	surprises := ComputeEventSurprises([]*domain.CalendarEvent{later, earlier})
	require.Len(t, surprises, 2)
	assert.Equal(t, "ff-0", surprises[0].EventID)
	assert.Equal(t, "ff-1", surprises[1].EventID)
}
