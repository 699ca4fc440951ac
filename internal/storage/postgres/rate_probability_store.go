package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// RateProbabilityStore implements storage.RateProbabilityStore using PostgreSQL.
type RateProbabilityStore struct {
	pool *Pool
}

// NewRateProbabilityStore creates a new RateProbabilityStore.
func NewRateProbabilityStore(pool *Pool) *RateProbabilityStore {
	return &RateProbabilityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RateProbabilityStore = (*RateProbabilityStore)(nil)

const rateProbabilityColumns = `
	source, COALESCE(source_ref, ''), run_id, underlying, meeting_date, rate_bin,
	probability, as_of_time, COALESCE(current_target_range, ''),
	payload, created_at, ingested_at, updated_at
`

// Upsert inserts or fully overwrites the row keyed by
// (underlying, meeting_date, rate_bin). A fresher snapshot for the same
// bin replaces the previous one; as_of_time records when the surviving
// snapshot was taken.
func (s *RateProbabilityStore) Upsert(ctx context.Context, p *domain.RateProbability) error {
	if p == nil {
		return storage.ErrInvalidInput
	}
	if err := p.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO raw.rate_probabilities (
			source, source_ref, run_id, underlying, meeting_date, rate_bin,
			probability, as_of_time, current_target_range, payload
		) VALUES (
			$1, NULLIF($2, ''), $3, $4, $5, $6,
			$7, $8, NULLIF($9, ''), COALESCE($10, '{}'::jsonb)
		)
		ON CONFLICT (underlying, meeting_date, rate_bin) DO UPDATE SET
			source               = EXCLUDED.source,
			source_ref           = EXCLUDED.source_ref,
			run_id               = EXCLUDED.run_id,
			probability          = EXCLUDED.probability,
			as_of_time           = EXCLUDED.as_of_time,
			current_target_range = EXCLUDED.current_target_range,
			payload              = EXCLUDED.payload,
			ingested_at          = now(),
			updated_at           = now()
		RETURNING created_at, ingested_at, updated_at
	`

	err := s.pool.QueryRow(ctx, query,
		p.Source, p.SourceRef, p.RunID, p.Underlying, p.MeetingDate, p.RateBin,
		p.Probability, p.AsOfTime, p.CurrentTargetRange, []byte(p.Payload),
	).Scan(&p.CreatedAt, &p.IngestedAt, &p.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: rate probability rejected by schema constraint: %v", domain.ErrValidation, err)
		}
		return fmt.Errorf("upsert rate probability: %w", err)
	}
	return nil
}

// GetByMeeting retrieves all bins for one meeting, ordered by rate_bin.
func (s *RateProbabilityStore) GetByMeeting(ctx context.Context, underlying string, meetingDate time.Time) ([]*domain.RateProbability, error) {
	query := `
		SELECT ` + rateProbabilityColumns + `
		FROM raw.rate_probabilities
		WHERE underlying = $1 AND meeting_date = $2
		ORDER BY rate_bin ASC
	`

	rows, err := s.pool.Query(ctx, query, underlying, meetingDate)
	if err != nil {
		return nil, fmt.Errorf("get rate probabilities by meeting: %w", err)
	}
	defer rows.Close()

	return scanRateProbabilities(rows)
}

// LatestPerBin projects the most recent snapshot per
// (underlying, meeting_date, rate_bin). Reads the latest.rate_probabilities view.
func (s *RateProbabilityStore) LatestPerBin(ctx context.Context) ([]*domain.RateProbability, error) {
	query := `
		SELECT ` + rateProbabilityColumns + `
		FROM latest.rate_probabilities
		ORDER BY underlying ASC, meeting_date ASC, rate_bin ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest rate probabilities: %w", err)
	}
	defer rows.Close()

	return scanRateProbabilities(rows)
}

func scanRateProbability(row pgx.Row) (*domain.RateProbability, error) {
	var p domain.RateProbability
	err := row.Scan(
		&p.Source, &p.SourceRef, &p.RunID, &p.Underlying, &p.MeetingDate, &p.RateBin,
		&p.Probability, &p.AsOfTime, &p.CurrentTargetRange,
		&p.Payload, &p.CreatedAt, &p.IngestedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanRateProbabilities(rows pgx.Rows) ([]*domain.RateProbability, error) {
	var probs []*domain.RateProbability
	for rows.Next() {
		p, err := scanRateProbability(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rate probability row: %w", err)
		}
		probs = append(probs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rate probability rows: %w", err)
	}
	return probs, nil
}
