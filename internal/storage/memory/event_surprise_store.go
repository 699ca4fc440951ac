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

// EventSurpriseStore is an in-memory implementation of
// storage.EventSurpriseStore.
type EventSurpriseStore struct {
	mu   sync.RWMutex
	data map[string]*domain.EventSurprise // keyed by source|event_id|event_time
}

// NewEventSurpriseStore creates a new in-memory event surprise store.
func NewEventSurpriseStore() *EventSurpriseStore {
	return &EventSurpriseStore{
		data: make(map[string]*domain.EventSurprise),
	}
}

// Compile-time interface check.
var _ storage.EventSurpriseStore = (*EventSurpriseStore)(nil)

func eventSurpriseKey(source, eventID string, eventTime time.Time) string {
	return fmt.Sprintf("%s|%s|%s", source, eventID, eventTime.UTC().Format(time.RFC3339))
}

// Upsert inserts or fully overwrites the surprise row keyed by
// (source, event_id, event_time).
func (s *EventSurpriseStore) Upsert(_ context.Context, es *domain.EventSurprise) error {
	if es == nil || es.Source == "" || es.EventID == "" || es.EventTime.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := eventSurpriseKey(es.Source, es.EventID, es.EventTime)
	if existing, exists := s.data[key]; exists {
		es.CreatedAt = existing.CreatedAt
	} else {
		es.CreatedAt = now
	}
	es.IngestedAt = now
	es.UpdatedAt = now

	surpriseCopy := *es
	s.data[key] = &surpriseCopy
	return nil
}

// GetBySeries retrieves all surprise rows of an event series, ordered by
// event_time ASC.
func (s *EventSurpriseStore) GetBySeries(_ context.Context, source, eventName string) ([]*domain.EventSurprise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EventSurprise
	for _, es := range s.data {
		if es.Source == source && es.EventName == eventName {
			surpriseCopy := *es
			result = append(result, &surpriseCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EventTime.Before(result[j].EventTime)
	})
	return result, nil
}

// LatestPerSeries projects the most recent surprise per
// (source, event_name), tie-broken by ingested_at.
func (s *EventSurpriseStore) LatestPerSeries(_ context.Context) ([]*domain.EventSurprise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.EventSurprise)
	for _, es := range s.data {
		group := es.Source + "|" + es.EventName
		cur, exists := latest[group]
		if !exists || newerSurprise(es, cur) {
			latest[group] = es
		}
	}

	var result []*domain.EventSurprise
	for _, es := range latest {
		surpriseCopy := *es
		result = append(result, &surpriseCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Source != result[j].Source {
			return result[i].Source < result[j].Source
		}
		return result[i].EventName < result[j].EventName
	})
	return result, nil
}

func newerSurprise(a, b *domain.EventSurprise) bool {
	if !a.EventTime.Equal(b.EventTime) {
		return a.EventTime.After(b.EventTime)
	}
	return a.IngestedAt.After(b.IngestedAt)
}
