package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// FuturesQuoteStore is an in-memory implementation of
// storage.FuturesQuoteStore.
type FuturesQuoteStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FuturesQuote // keyed by natural key
}

// NewFuturesQuoteStore creates a new in-memory futures quote store.
func NewFuturesQuoteStore() *FuturesQuoteStore {
	return &FuturesQuoteStore{
		data: make(map[string]*domain.FuturesQuote),
	}
}

// Compile-time interface check.
var _ storage.FuturesQuoteStore = (*FuturesQuoteStore)(nil)

// Upsert inserts or fully overwrites the row with the quote's natural key.
func (s *FuturesQuoteStore) Upsert(_ context.Context, q *domain.FuturesQuote) error {
	if q == nil {
		return storage.ErrInvalidInput
	}
	if err := q.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := q.NaturalKey()
	if existing, exists := s.data[key]; exists {
		q.CreatedAt = existing.CreatedAt
	} else {
		q.CreatedAt = now
	}
	q.IngestedAt = now
	q.UpdatedAt = now

	quoteCopy := *q
	s.data[key] = &quoteCopy
	return nil
}

// GetByKey retrieves one quote. Returns ErrNotFound if not exists.
func (s *FuturesQuoteStore) GetByKey(_ context.Context, productCode, contractMonth string, asOf time.Time) (*domain.FuturesQuote, error) {
	lookup := &domain.FuturesQuote{ProductCode: productCode, ContractMonth: contractMonth, AsOfTime: asOf}

	s.mu.RLock()
	defer s.mu.RUnlock()

	q, exists := s.data[lookup.NaturalKey()]
	if !exists {
		return nil, storage.ErrNotFound
	}

	quoteCopy := *q
	return &quoteCopy, nil
}

// GetByContract retrieves all quotes for a contract, ordered by
// as_of_time ASC.
func (s *FuturesQuoteStore) GetByContract(_ context.Context, productCode, contractMonth string) ([]*domain.FuturesQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FuturesQuote
	for _, q := range s.data {
		if q.ProductCode == productCode && q.ContractMonth == contractMonth {
			quoteCopy := *q
			result = append(result, &quoteCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AsOfTime.Before(result[j].AsOfTime)
	})
	return result, nil
}

// LatestPerContract projects the most recent quote per
// (product_code, contract_month), tie-broken by ingested_at.
func (s *FuturesQuoteStore) LatestPerContract(_ context.Context) ([]*domain.FuturesQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.FuturesQuote)
	for _, q := range s.data {
		group := q.ProductCode + "|" + q.ContractMonth
		cur, exists := latest[group]
		if !exists || newerQuote(q, cur) {
			latest[group] = q
		}
	}

	var result []*domain.FuturesQuote
	for _, q := range latest {
		quoteCopy := *q
		result = append(result, &quoteCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ProductCode != result[j].ProductCode {
			return result[i].ProductCode < result[j].ProductCode
		}
		return result[i].ContractMonth < result[j].ContractMonth
	})
	return result, nil
}

func newerQuote(a, b *domain.FuturesQuote) bool {
	if !a.AsOfTime.Equal(b.AsOfTime) {
		return a.AsOfTime.After(b.AsOfTime)
	}
	return a.IngestedAt.After(b.IngestedAt)
}
