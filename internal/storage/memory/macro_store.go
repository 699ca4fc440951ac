package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// MacroObservationStore is an in-memory implementation of
// storage.MacroObservationStore.
type MacroObservationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MacroObservation // keyed by natural key
}

// NewMacroObservationStore creates a new in-memory macro observation store.
func NewMacroObservationStore() *MacroObservationStore {
	return &MacroObservationStore{
		data: make(map[string]*domain.MacroObservation),
	}
}

// Compile-time interface check.
var _ storage.MacroObservationStore = (*MacroObservationStore)(nil)

// Upsert inserts or fully overwrites the row with the observation's
// natural key.
func (s *MacroObservationStore) Upsert(_ context.Context, o *domain.MacroObservation) error {
	if o == nil {
		return storage.ErrInvalidInput
	}
	if err := o.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := o.NaturalKey()
	if existing, exists := s.data[key]; exists {
		o.CreatedAt = existing.CreatedAt
	} else {
		o.CreatedAt = now
	}
	o.IngestedAt = now
	o.UpdatedAt = now

	obsCopy := *o
	s.data[key] = &obsCopy
	return nil
}

// GetByKey retrieves one observation. Returns ErrNotFound if not exists.
func (s *MacroObservationStore) GetByKey(_ context.Context, seriesID string, freq domain.Frequency, date time.Time) (*domain.MacroObservation, error) {
	lookup := &domain.MacroObservation{SeriesID: seriesID, Frequency: freq, ObservationDate: date}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[lookup.NaturalKey()]
	if !exists {
		return nil, storage.ErrNotFound
	}

	obsCopy := *o
	return &obsCopy, nil
}

// GetBySeries retrieves all observations of a series, ordered by
// observation_date ASC.
func (s *MacroObservationStore) GetBySeries(_ context.Context, seriesID string, freq domain.Frequency) ([]*domain.MacroObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MacroObservation
	for _, o := range s.data {
		if o.SeriesID == seriesID && o.Frequency == freq {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ObservationDate.Before(result[j].ObservationDate)
	})
	return result, nil
}

// LatestPerSeries projects the most recent observation per
// (series_id, frequency), tie-broken by ingested_at.
func (s *MacroObservationStore) LatestPerSeries(_ context.Context) ([]*domain.MacroObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.MacroObservation)
	for _, o := range s.data {
		group := o.SeriesID + "|" + o.Frequency.String()
		cur, exists := latest[group]
		if !exists || newerObservation(o, cur) {
			latest[group] = o
		}
	}

	var result []*domain.MacroObservation
	for _, o := range latest {
		obsCopy := *o
		result = append(result, &obsCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SeriesID != result[j].SeriesID {
			return result[i].SeriesID < result[j].SeriesID
		}
		return result[i].Frequency < result[j].Frequency
	})
	return result, nil
}

func newerObservation(a, b *domain.MacroObservation) bool {
	if !a.ObservationDate.Equal(b.ObservationDate) {
		return a.ObservationDate.After(b.ObservationDate)
	}
	return a.IngestedAt.After(b.IngestedAt)
}
