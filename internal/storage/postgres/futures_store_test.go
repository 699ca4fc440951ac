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

func zqQuote(asOf time.Time, last float64) *domain.FuturesQuote {
	return &domain.FuturesQuote{
		Provenance:    domain.Provenance{Source: "cme"},
		ProductCode:   "ZQ",
		ContractMonth: "2026-09",
		AsOfTime:      asOf,
		Last:          ptr(last),
		Settlement:    ptr(last - 0.005),
		Volume:        ptr(int64(15000)),
		OpenInterest:  ptr(int64(210000)),
	}
}

func TestFuturesQuoteStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewFuturesQuoteStore(pool)
	ctx := context.Background()

	asOf := time.Date(2026, 8, 21, 20, 0, 0, 0, time.UTC)
	quote := zqQuote(asOf, 95.6425)
	require.NoError(t, store.Upsert(ctx, quote))

	retrieved, err := store.GetByKey(ctx, "ZQ", "2026-09", asOf)
	require.NoError(t, err)

	assert.Equal(t, 95.6425, *retrieved.Last)
	assert.Equal(t, 95.6375, *retrieved.Settlement)
	assert.Equal(t, int64(15000), *retrieved.Volume)
	assert.Equal(t, int64(210000), *retrieved.OpenInterest)
	assert.Nil(t, retrieved.Open)
	assert.Nil(t, retrieved.PriorSettle)
}

func TestFuturesQuoteStore_UpsertIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewFuturesQuoteStore(pool)
	ctx := context.Background()

	asOf := time.Date(2026, 8, 21, 20, 0, 0, 0, time.UTC)

	first := zqQuote(asOf, 95.6425)
	require.NoError(t, store.Upsert(ctx, first))

	second := zqQuote(asOf, 95.6450)
	require.NoError(t, store.Upsert(ctx, second))

	quotes, err := store.GetByContract(ctx, "ZQ", "2026-09")
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 95.6450, *quotes[0].Last)
	assert.True(t, quotes[0].CreatedAt.Equal(first.CreatedAt))
}

func TestFuturesQuoteStore_Validation(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewFuturesQuoteStore(pool)
	ctx := context.Background()

	quote := zqQuote(time.Date(2026, 8, 21, 20, 0, 0, 0, time.UTC), 95.64)
	quote.Last = nil
	quote.Settlement = nil

	err := store.Upsert(ctx, quote)
	assert.ErrorIs(t, err, domain.ErrValidation)

	quote = zqQuote(time.Date(2026, 8, 21, 20, 0, 0, 0, time.UTC), 95.64)
	quote.High = ptr(95.60)
	quote.Low = ptr(95.65)
	err = store.Upsert(ctx, quote)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = store.GetByKey(ctx, "ZQ", "2026-09", quote.AsOfTime)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFuturesQuoteStore_LatestPerContract(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewFuturesQuoteStore(pool)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 20, 20, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 21, 20, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, zqQuote(day1, 95.6400)))
	require.NoError(t, store.Upsert(ctx, zqQuote(day2, 95.6450)))

	october := zqQuote(day2, 95.7000)
	october.ContractMonth = "2026-10"
	require.NoError(t, store.Upsert(ctx, october))

	latest, err := store.LatestPerContract(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	byMonth := map[string]*domain.FuturesQuote{}
	for _, q := range latest {
		byMonth[q.ContractMonth] = q
	}
	assert.Equal(t, 95.6450, *byMonth["2026-09"].Last)
	assert.Equal(t, 95.7000, *byMonth["2026-10"].Last)
}
