package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// CalendarEventStore is an in-memory implementation of
// storage.CalendarEventStore.
type CalendarEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CalendarEvent // keyed by natural key
}

// NewCalendarEventStore creates a new in-memory calendar event store.
func NewCalendarEventStore() *CalendarEventStore {
	return &CalendarEventStore{
		data: make(map[string]*domain.CalendarEvent),
	}
}

// Compile-time interface check.
var _ storage.CalendarEventStore = (*CalendarEventStore)(nil)

// Upsert inserts or fully overwrites the row with the event's natural key.
func (s *CalendarEventStore) Upsert(_ context.Context, e *domain.CalendarEvent) error {
	if e == nil {
		return storage.ErrInvalidInput
	}
	e.NormalizeKey()
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := e.NaturalKey()
	if existing, exists := s.data[key]; exists {
		e.CreatedAt = existing.CreatedAt
	} else {
		e.CreatedAt = now
	}
	e.IngestedAt = now
	e.UpdatedAt = now

	eventCopy := *e
	s.data[key] = &eventCopy
	return nil
}

// GetByKey retrieves one event. Returns ErrNotFound if not exists.
func (s *CalendarEventStore) GetByKey(_ context.Context, source, eventID string, eventTime time.Time) (*domain.CalendarEvent, error) {
	lookup := &domain.CalendarEvent{
		Provenance: domain.Provenance{Source: source},
		EventID:    eventID,
		EventTime:  eventTime,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[lookup.NaturalKey()]
	if !exists {
		return nil, storage.ErrNotFound
	}

	eventCopy := *e
	return &eventCopy, nil
}

// GetBySeries retrieves all occurrences of an event series, ordered by
// event_time ASC.
func (s *CalendarEventStore) GetBySeries(_ context.Context, source, eventName string) ([]*domain.CalendarEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CalendarEvent
	for _, e := range s.data {
		if e.Source == source && e.EventName == eventName {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EventTime.Before(result[j].EventTime)
	})
	return result, nil
}

// LatestPerSeries projects the most recent occurrence per
// (source, event_name), tie-broken by ingested_at.
func (s *CalendarEventStore) LatestPerSeries(_ context.Context) ([]*domain.CalendarEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.CalendarEvent)
	for _, e := range s.data {
		group := e.Source + "|" + e.EventName
		cur, exists := latest[group]
		if !exists || newerEvent(e, cur) {
			latest[group] = e
		}
	}

	var result []*domain.CalendarEvent
	for _, e := range latest {
		eventCopy := *e
		result = append(result, &eventCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Source != result[j].Source {
			return result[i].Source < result[j].Source
		}
		return result[i].EventName < result[j].EventName
	})
	return result, nil
}

func newerEvent(a, b *domain.CalendarEvent) bool {
	if !a.EventTime.Equal(b.EventTime) {
		return a.EventTime.After(b.EventTime)
	}
	return a.IngestedAt.After(b.IngestedAt)
}
