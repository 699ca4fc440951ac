package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// PriceBarStore is an in-memory implementation of storage.PriceBarStore.
type PriceBarStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceBar // keyed by natural key
}

// NewPriceBarStore creates a new in-memory price bar store.
func NewPriceBarStore() *PriceBarStore {
	return &PriceBarStore{
		data: make(map[string]*domain.PriceBar),
	}
}

// Compile-time interface check.
var _ storage.PriceBarStore = (*PriceBarStore)(nil)

// Upsert inserts or fully overwrites the row with the bar's natural key.
func (s *PriceBarStore) Upsert(_ context.Context, b *domain.PriceBar) error {
	if b == nil {
		return storage.ErrInvalidInput
	}
	if err := b.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := b.NaturalKey()
	if existing, exists := s.data[key]; exists {
		b.CreatedAt = existing.CreatedAt
	} else {
		b.CreatedAt = now
	}
	b.IngestedAt = now
	b.UpdatedAt = now

	barCopy := *b
	s.data[key] = &barCopy
	return nil
}

// GetByKey retrieves one bar. Returns ErrNotFound if not exists.
func (s *PriceBarStore) GetByKey(_ context.Context, symbol, timeframe string, barTime time.Time) (*domain.PriceBar, error) {
	lookup := &domain.PriceBar{Symbol: symbol, Timeframe: timeframe, BarTime: barTime}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.data[lookup.NaturalKey()]
	if !exists {
		return nil, storage.ErrNotFound
	}

	barCopy := *b
	return &barCopy, nil
}

// GetBySymbolTimeframe retrieves all bars for a symbol+timeframe, ordered
// by bar_time ASC.
func (s *PriceBarStore) GetBySymbolTimeframe(_ context.Context, symbol, timeframe string) ([]*domain.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceBar
	for _, b := range s.data {
		if b.Symbol == symbol && b.Timeframe == timeframe {
			barCopy := *b
			result = append(result, &barCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BarTime.Before(result[j].BarTime)
	})
	return result, nil
}

// GetByTimeRange retrieves bars within [start, end] (inclusive), ordered
// by bar_time ASC.
func (s *PriceBarStore) GetByTimeRange(_ context.Context, symbol, timeframe string, start, end time.Time) ([]*domain.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceBar
	for _, b := range s.data {
		if b.Symbol != symbol || b.Timeframe != timeframe {
			continue
		}
		if b.BarTime.Before(start) || b.BarTime.After(end) {
			continue
		}
		barCopy := *b
		result = append(result, &barCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BarTime.Before(result[j].BarTime)
	})
	return result, nil
}

// LatestPerSymbol projects the most recent bar per (symbol, timeframe),
// tie-broken by ingested_at.
func (s *PriceBarStore) LatestPerSymbol(_ context.Context) ([]*domain.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.PriceBar)
	for _, b := range s.data {
		group := b.Symbol + "|" + b.Timeframe
		cur, exists := latest[group]
		if !exists || newerBar(b, cur) {
			latest[group] = b
		}
	}

	var result []*domain.PriceBar
	for _, b := range latest {
		barCopy := *b
		result = append(result, &barCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].Timeframe < result[j].Timeframe
	})
	return result, nil
}

func newerBar(a, b *domain.PriceBar) bool {
	if !a.BarTime.Equal(b.BarTime) {
		return a.BarTime.After(b.BarTime)
	}
	return a.IngestedAt.After(b.IngestedAt)
}
