package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

func nfpEvent(eventTime time.Time) *domain.CalendarEvent {
	return &domain.CalendarEvent{
		Provenance: domain.Provenance{Source: "forexfactory"},
		EventID:    "ff-123",
		EventTime:  eventTime,
		EventName:  "Non-Farm Employment Change",
		Currency:   "USD",
		Country:    "US",
		Impact:     "High",
		ImpactScore: ptr(3),
		ForecastRaw: "180K",
		Forecast:    ptr(180000.0),
	}
}

func TestCalendarEventStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCalendarEventStore(pool)
	ctx := context.Background()

	eventTime := time.Date(2026, 8, 7, 12, 30, 0, 0, time.UTC)
	event := nfpEvent(eventTime)
	event.ActualRaw = "210K"
	event.Actual = ptr(210000.0)

	require.NoError(t, store.Upsert(ctx, event))
	assert.NotZero(t, event.CreatedAt)

	retrieved, err := store.GetByKey(ctx, "forexfactory", "ff-123", eventTime)
	require.NoError(t, err)

	assert.Equal(t, "Non-Farm Employment Change", retrieved.EventName)
	assert.Equal(t, "USD", retrieved.Currency)
	assert.Equal(t, 3, *retrieved.ImpactScore)
	assert.Equal(t, "210K", retrieved.ActualRaw)
	assert.Equal(t, 210000.0, *retrieved.Actual)
	assert.Equal(t, 180000.0, *retrieved.Forecast)
	assert.Nil(t, retrieved.Revision)
	assert.True(t, retrieved.EventTime.Equal(eventTime))
}

func TestCalendarEventStore_ReingestOverwrites(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCalendarEventStore(pool)
	ctx := context.Background()

	eventTime := time.Date(2026, 8, 7, 12, 30, 0, 0, time.UTC)

	// First ingest: before release, actual not yet published.
	first := nfpEvent(eventTime)
	require.NoError(t, store.Upsert(ctx, first))

	// Second ingest of the same occurrence: actual now published.
	second := nfpEvent(eventTime)
	second.ActualRaw = "210K"
	second.Actual = ptr(210000.0)
	require.NoError(t, store.Upsert(ctx, second))

	all, err := store.GetBySeries(ctx, "forexfactory", "Non-Farm Employment Change")
	require.NoError(t, err)
	require.Len(t, all, 1, "re-ingest of the same natural key must not add a row")

	got := all[0]
	assert.Equal(t, 210000.0, *got.Actual)
	assert.Equal(t, 180000.0, *got.Forecast)
	assert.True(t, got.CreatedAt.Equal(first.CreatedAt), "created_at survives overwrite")
	assert.False(t, got.IngestedAt.Before(first.IngestedAt))
	assert.False(t, got.UpdatedAt.Before(first.UpdatedAt))
}

func TestCalendarEventStore_FallbackEventID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCalendarEventStore(pool)
	ctx := context.Background()

	eventTime := time.Date(2026, 8, 13, 12, 30, 0, 0, time.UTC)
	event := &domain.CalendarEvent{
		Provenance: domain.Provenance{Source: "forexfactory"},
		EventTime:  eventTime,
		EventName:  "CPI m/m",
	}
	require.NoError(t, store.Upsert(ctx, event))

	wantID := domain.CalendarEventID("forexfactory", "", "CPI m/m", eventTime)
	assert.Equal(t, wantID, event.EventID)

	_, err := store.GetByKey(ctx, "forexfactory", wantID, eventTime)
	require.NoError(t, err)
}

func TestCalendarEventStore_ValidationRejected(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCalendarEventStore(pool)
	ctx := context.Background()

	event := nfpEvent(time.Date(2026, 8, 7, 12, 30, 0, 0, time.UTC))
	event.ImpactScore = ptr(5)

	err := store.Upsert(ctx, event)
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Rejected record leaves no trace.
	all, err := store.GetBySeries(ctx, "forexfactory", "Non-Farm Employment Change")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCalendarEventStore_GetByKeyNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCalendarEventStore(pool)
	ctx := context.Background()

	_, err := store.GetByKey(ctx, "forexfactory", "missing", time.Now().UTC())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCalendarEventStore_LatestPerSeries(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCalendarEventStore(pool)
	ctx := context.Background()

	july := nfpEvent(time.Date(2026, 7, 3, 12, 30, 0, 0, time.UTC))
	july.EventID = "ff-100"
	august := nfpEvent(time.Date(2026, 8, 7, 12, 30, 0, 0, time.UTC))
	august.EventID = "ff-123"
	other := nfpEvent(time.Date(2026, 8, 13, 12, 30, 0, 0, time.UTC))
	other.EventID = "ff-200"
	other.EventName = "CPI m/m"

	for _, e := range []*domain.CalendarEvent{july, august, other} {
		require.NoError(t, store.Upsert(ctx, e))
	}

	latest, err := store.LatestPerSeries(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	byName := map[string]*domain.CalendarEvent{}
	for _, e := range latest {
		byName[e.EventName] = e
	}
	require.Contains(t, byName, "Non-Farm Employment Change")
	assert.Equal(t, "ff-123", byName["Non-Farm Employment Change"].EventID,
		"latest projection picks the most recent occurrence")
	assert.Equal(t, "ff-200", byName["CPI m/m"].EventID)
}
