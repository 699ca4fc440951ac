package memory

import (
	"context"
	"sort"
	"sync"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// RevisionSink is an in-memory implementation of storage.RevisionSink.
// Revisions are retained append-only in arrival order.
type RevisionSink struct {
	mu        sync.RWMutex
	revisions []*domain.Revision
}

// NewRevisionSink creates a new in-memory revision sink.
func NewRevisionSink() *RevisionSink {
	return &RevisionSink{}
}

// Compile-time interface check.
var _ storage.RevisionSink = (*RevisionSink)(nil)

// Append records one accepted upsert.
func (s *RevisionSink) Append(_ context.Context, rev *domain.Revision) error {
	if rev == nil || !rev.Family.IsValid() || rev.NaturalKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	revCopy := *rev
	s.revisions = append(s.revisions, &revCopy)
	return nil
}

// LatestByKey returns the most recently ingested revision per natural key
// within a family.
func (s *RevisionSink) LatestByKey(_ context.Context, family domain.SourceFamily) ([]*domain.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.Revision)
	for _, rev := range s.revisions {
		if rev.Family != family {
			continue
		}
		cur, exists := latest[rev.NaturalKey]
		if !exists || !rev.IngestedAt.Before(cur.IngestedAt) {
			latest[rev.NaturalKey] = rev
		}
	}

	var result []*domain.Revision
	for _, rev := range latest {
		revCopy := *rev
		result = append(result, &revCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].NaturalKey < result[j].NaturalKey
	})
	return result, nil
}

// All returns every recorded revision in arrival order. Test helper.
func (s *RevisionSink) All() []*domain.Revision {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Revision, 0, len(s.revisions))
	for _, rev := range s.revisions {
		revCopy := *rev
		result = append(result, &revCopy)
	}
	return result
}
