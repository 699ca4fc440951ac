package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// RevisionStore implements storage.RevisionSink using ClickHouse.
//
// The log is append-only by construction: MergeTree never collapses rows,
// so every accepted upsert of the same natural key adds one more entry.
type RevisionStore struct {
	conn *Conn
}

// NewRevisionStore creates a new RevisionStore.
func NewRevisionStore(conn *Conn) *RevisionStore {
	return &RevisionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RevisionSink = (*RevisionStore)(nil)

// Append records one accepted upsert.
func (s *RevisionStore) Append(ctx context.Context, rev *domain.Revision) error {
	if rev == nil || !rev.Family.IsValid() || rev.NaturalKey == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO revision_log (family, natural_key, primary_ts, ingested_at, run_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		rev.Family.String(), rev.NaturalKey,
		rev.PrimaryTS.UTC(), rev.IngestedAt.UTC(),
		rev.RunID, string(rev.Payload),
	)
	if err != nil {
		return fmt.Errorf("append revision: %w", err)
	}
	return nil
}

// AppendBatch records many accepted upserts in one insert. Used by the
// ingestion runner to flush per batch instead of per record.
func (s *RevisionStore) AppendBatch(ctx context.Context, revs []*domain.Revision) error {
	if len(revs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO revision_log (family, natural_key, primary_ts, ingested_at, run_id, payload)
	`)
	if err != nil {
		return fmt.Errorf("prepare revision batch: %w", err)
	}

	for _, rev := range revs {
		if rev == nil || !rev.Family.IsValid() || rev.NaturalKey == "" {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			rev.Family.String(), rev.NaturalKey,
			rev.PrimaryTS.UTC(), rev.IngestedAt.UTC(),
			rev.RunID, string(rev.Payload),
		)
		if err != nil {
			return fmt.Errorf("append to revision batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send revision batch: %w", err)
	}
	return nil
}

// LatestByKey returns the most recently ingested revision per natural key
// within a family.
func (s *RevisionStore) LatestByKey(ctx context.Context, family domain.SourceFamily) ([]*domain.Revision, error) {
	query := `
		SELECT natural_key,
		       argMax(primary_ts, ingested_at)  AS primary_ts,
		       max(ingested_at)                 AS ingested_at,
		       argMax(run_id, ingested_at)      AS run_id,
		       argMax(payload, ingested_at)     AS payload
		FROM revision_log
		WHERE family = ?
		GROUP BY natural_key
		ORDER BY natural_key ASC
	`

	rows, err := s.conn.Query(ctx, query, family.String())
	if err != nil {
		return nil, fmt.Errorf("query latest revisions: %w", err)
	}
	defer rows.Close()

	var revs []*domain.Revision
	for rows.Next() {
		var (
			rev     domain.Revision
			runID   *uuid.UUID
			payload string
		)
		if err := rows.Scan(&rev.NaturalKey, &rev.PrimaryTS, &rev.IngestedAt, &runID, &payload); err != nil {
			return nil, fmt.Errorf("scan revision row: %w", err)
		}
		rev.Family = family
		rev.RunID = runID
		if payload != "" {
			rev.Payload = json.RawMessage(payload)
		}
		revs = append(revs, &rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revision rows: %w", err)
	}
	return revs, nil
}

// CountByKey returns the number of recorded revisions for one natural key.
// Audit helper: how many times a key has been rewritten.
func (s *RevisionStore) CountByKey(ctx context.Context, family domain.SourceFamily, naturalKey string) (uint64, error) {
	query := `SELECT count(*) FROM revision_log WHERE family = ? AND natural_key = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, family.String(), naturalKey).Scan(&count); err != nil {
		return 0, fmt.Errorf("count revisions: %w", err)
	}
	return count, nil
}
