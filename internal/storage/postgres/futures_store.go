package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// FuturesQuoteStore implements storage.FuturesQuoteStore using PostgreSQL.
type FuturesQuoteStore struct {
	pool *Pool
}

// NewFuturesQuoteStore creates a new FuturesQuoteStore.
func NewFuturesQuoteStore(pool *Pool) *FuturesQuoteStore {
	return &FuturesQuoteStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FuturesQuoteStore = (*FuturesQuoteStore)(nil)

const futuresQuoteColumns = `
	source, COALESCE(source_ref, ''), run_id, product_code, contract_month, as_of_time,
	last, settlement, prior_settle, open, high, low, volume, open_interest,
	payload, created_at, ingested_at, updated_at
`

// Upsert inserts or fully overwrites the row keyed by
// (product_code, contract_month, as_of_time).
func (s *FuturesQuoteStore) Upsert(ctx context.Context, q *domain.FuturesQuote) error {
	if q == nil {
		return storage.ErrInvalidInput
	}
	if err := q.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO raw.futures_quotes (
			source, source_ref, run_id, product_code, contract_month, as_of_time,
			last, settlement, prior_settle, open, high, low, volume, open_interest, payload
		) VALUES (
			$1, NULLIF($2, ''), $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13, $14, COALESCE($15, '{}'::jsonb)
		)
		ON CONFLICT (product_code, contract_month, as_of_time) DO UPDATE SET
			source        = EXCLUDED.source,
			source_ref    = EXCLUDED.source_ref,
			run_id        = EXCLUDED.run_id,
			last          = EXCLUDED.last,
			settlement    = EXCLUDED.settlement,
			prior_settle  = EXCLUDED.prior_settle,
			open          = EXCLUDED.open,
			high          = EXCLUDED.high,
			low           = EXCLUDED.low,
			volume        = EXCLUDED.volume,
			open_interest = EXCLUDED.open_interest,
			payload       = EXCLUDED.payload,
			ingested_at   = now(),
			updated_at    = now()
		RETURNING created_at, ingested_at, updated_at
	`

	err := s.pool.QueryRow(ctx, query,
		q.Source, q.SourceRef, q.RunID, q.ProductCode, q.ContractMonth, q.AsOfTime,
		q.Last, q.Settlement, q.PriorSettle, q.Open, q.High, q.Low, q.Volume, q.OpenInterest, []byte(q.Payload),
	).Scan(&q.CreatedAt, &q.IngestedAt, &q.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: futures quote rejected by schema constraint: %v", domain.ErrValidation, err)
		}
		return fmt.Errorf("upsert futures quote: %w", err)
	}
	return nil
}

// GetByKey retrieves one quote. Returns ErrNotFound if not exists.
func (s *FuturesQuoteStore) GetByKey(ctx context.Context, productCode, contractMonth string, asOf time.Time) (*domain.FuturesQuote, error) {
	query := `
		SELECT ` + futuresQuoteColumns + `
		FROM raw.futures_quotes
		WHERE product_code = $1 AND contract_month = $2 AND as_of_time = $3
	`

	q, err := scanFuturesQuote(s.pool.QueryRow(ctx, query, productCode, contractMonth, asOf))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get futures quote: %w", err)
	}
	return q, nil
}

// GetByContract retrieves all quotes for a contract, ordered by
// as_of_time ASC.
func (s *FuturesQuoteStore) GetByContract(ctx context.Context, productCode, contractMonth string) ([]*domain.FuturesQuote, error) {
	query := `
		SELECT ` + futuresQuoteColumns + `
		FROM raw.futures_quotes
		WHERE product_code = $1 AND contract_month = $2
		ORDER BY as_of_time ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, productCode, contractMonth)
	if err != nil {
		return nil, fmt.Errorf("get futures quotes by contract: %w", err)
	}
	defer rows.Close()

	return scanFuturesQuotes(rows)
}

// LatestPerContract projects the most recent quote per
// (product_code, contract_month). Reads the latest.futures_quotes view.
func (s *FuturesQuoteStore) LatestPerContract(ctx context.Context) ([]*domain.FuturesQuote, error) {
	query := `
		SELECT ` + futuresQuoteColumns + `
		FROM latest.futures_quotes
		ORDER BY product_code ASC, contract_month ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest futures quotes: %w", err)
	}
	defer rows.Close()

	return scanFuturesQuotes(rows)
}

func scanFuturesQuote(row pgx.Row) (*domain.FuturesQuote, error) {
	var q domain.FuturesQuote
	err := row.Scan(
		&q.Source, &q.SourceRef, &q.RunID, &q.ProductCode, &q.ContractMonth, &q.AsOfTime,
		&q.Last, &q.Settlement, &q.PriorSettle, &q.Open, &q.High, &q.Low, &q.Volume, &q.OpenInterest,
		&q.Payload, &q.CreatedAt, &q.IngestedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func scanFuturesQuotes(rows pgx.Rows) ([]*domain.FuturesQuote, error) {
	var quotes []*domain.FuturesQuote
	for rows.Next() {
		q, err := scanFuturesQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan futures quote row: %w", err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate futures quote rows: %w", err)
	}
	return quotes, nil
}
