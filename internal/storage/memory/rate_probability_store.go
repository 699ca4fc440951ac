package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// RateProbabilityStore is an in-memory implementation of
// storage.RateProbabilityStore.
type RateProbabilityStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RateProbability // keyed by natural key
}

// NewRateProbabilityStore creates a new in-memory rate probability store.
func NewRateProbabilityStore() *RateProbabilityStore {
	return &RateProbabilityStore{
		data: make(map[string]*domain.RateProbability),
	}
}

// Compile-time interface check.
var _ storage.RateProbabilityStore = (*RateProbabilityStore)(nil)

// Upsert inserts or fully overwrites the row with the snapshot's natural key.
func (s *RateProbabilityStore) Upsert(_ context.Context, p *domain.RateProbability) error {
	if p == nil {
		return storage.ErrInvalidInput
	}
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := p.NaturalKey()
	if existing, exists := s.data[key]; exists {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.IngestedAt = now
	p.UpdatedAt = now

	probCopy := *p
	s.data[key] = &probCopy
	return nil
}

// GetByMeeting retrieves all bins for one meeting, ordered by rate_bin.
func (s *RateProbabilityStore) GetByMeeting(_ context.Context, underlying string, meetingDate time.Time) ([]*domain.RateProbability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := meetingDate.UTC().Format("2006-01-02")

	var result []*domain.RateProbability
	for _, p := range s.data {
		if p.Underlying == underlying && p.MeetingDate.UTC().Format("2006-01-02") == day {
			probCopy := *p
			result = append(result, &probCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RateBin < result[j].RateBin
	})
	return result, nil
}

// LatestPerBin projects the most recent snapshot per
// (underlying, meeting_date, rate_bin). The natural key is the grouping,
// so this is every stored row.
func (s *RateProbabilityStore) LatestPerBin(_ context.Context) ([]*domain.RateProbability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RateProbability
	for _, p := range s.data {
		probCopy := *p
		result = append(result, &probCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Underlying != result[j].Underlying {
			return result[i].Underlying < result[j].Underlying
		}
		if !result[i].MeetingDate.Equal(result[j].MeetingDate) {
			return result[i].MeetingDate.Before(result[j].MeetingDate)
		}
		return result[i].RateBin < result[j].RateBin
	})
	return result, nil
}
