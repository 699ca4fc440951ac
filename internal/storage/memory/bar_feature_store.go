package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// BarFeatureStore is an in-memory implementation of storage.BarFeatureStore.
type BarFeatureStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BarFeature // keyed by symbol|timeframe|bar_time
}

// NewBarFeatureStore creates a new in-memory bar feature store.
func NewBarFeatureStore() *BarFeatureStore {
	return &BarFeatureStore{
		data: make(map[string]*domain.BarFeature),
	}
}

// Compile-time interface check.
var _ storage.BarFeatureStore = (*BarFeatureStore)(nil)

func barFeatureKey(symbol, timeframe string, barTime time.Time) string {
	return fmt.Sprintf("%s|%s|%s", symbol, timeframe, barTime.UTC().Format(time.RFC3339))
}

// Upsert inserts or fully overwrites the feature row keyed by
// (symbol, timeframe, bar_time).
func (s *BarFeatureStore) Upsert(_ context.Context, f *domain.BarFeature) error {
	if f == nil || f.Symbol == "" || f.Timeframe == "" || f.BarTime.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := barFeatureKey(f.Symbol, f.Timeframe, f.BarTime)
	if existing, exists := s.data[key]; exists {
		f.CreatedAt = existing.CreatedAt
	} else {
		f.CreatedAt = now
	}
	f.IngestedAt = now
	f.UpdatedAt = now

	featureCopy := *f
	s.data[key] = &featureCopy
	return nil
}

// GetBySymbolTimeframe retrieves all feature rows for a symbol+timeframe,
// ordered by bar_time ASC.
func (s *BarFeatureStore) GetBySymbolTimeframe(_ context.Context, symbol, timeframe string) ([]*domain.BarFeature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BarFeature
	for _, f := range s.data {
		if f.Symbol == symbol && f.Timeframe == timeframe {
			featureCopy := *f
			result = append(result, &featureCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BarTime.Before(result[j].BarTime)
	})
	return result, nil
}

// LatestPerSymbol projects the most recent feature row per
// (symbol, timeframe), tie-broken by ingested_at.
func (s *BarFeatureStore) LatestPerSymbol(_ context.Context) ([]*domain.BarFeature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.BarFeature)
	for _, f := range s.data {
		group := f.Symbol + "|" + f.Timeframe
		cur, exists := latest[group]
		if !exists || newerFeature(f, cur) {
			latest[group] = f
		}
	}

	var result []*domain.BarFeature
	for _, f := range latest {
		featureCopy := *f
		result = append(result, &featureCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].Timeframe < result[j].Timeframe
	})
	return result, nil
}

func newerFeature(a, b *domain.BarFeature) bool {
	if !a.BarTime.Equal(b.BarTime) {
		return a.BarTime.After(b.BarTime)
	}
	return a.IngestedAt.After(b.IngestedAt)
}
