package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// RunLedger implements storage.RunLedger using PostgreSQL.
type RunLedger struct {
	pool *Pool
}

// NewRunLedger creates a new RunLedger.
func NewRunLedger(pool *Pool) *RunLedger {
	return &RunLedger{pool: pool}
}

// Compile-time interface check.
var _ storage.RunLedger = (*RunLedger)(nil)

// OpenRun creates a run with status=running and the current time as start.
func (l *RunLedger) OpenRun(ctx context.Context, pipelineName string, mode domain.RunMode, sourceRef string) (uuid.UUID, error) {
	if pipelineName == "" {
		return uuid.Nil, fmt.Errorf("%w: pipeline name required", storage.ErrInvalidInput)
	}
	if !mode.IsValid() {
		return uuid.Nil, fmt.Errorf("%w: run mode %q not recognized", domain.ErrValidation, mode)
	}

	runID := uuid.New()
	query := `
		INSERT INTO ops.pipeline_runs (run_id, pipeline_name, run_mode, status, source_ref)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`

	_, err := l.pool.Exec(ctx, query, runID, pipelineName, mode.String(), domain.RunStatusRunning.String(), sourceRef)
	if err != nil {
		return uuid.Nil, fmt.Errorf("open run: %w", err)
	}
	return runID, nil
}

// CloseRun sets the end timestamp and a terminal status exactly once.
// A second close is rejected with ErrInvalidState to surface pipeline bugs.
func (l *RunLedger) CloseRun(ctx context.Context, runID uuid.UUID, status domain.RunStatus, counts domain.RunCounts, errorMessage string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: close status %q is not terminal", domain.ErrValidation, status)
	}
	if counts.RowsRead < 0 || counts.RowsWritten < 0 || counts.RowsError < 0 {
		return fmt.Errorf("%w: negative row counts", domain.ErrValidation)
	}

	query := `
		UPDATE ops.pipeline_runs
		SET status = $2,
		    ended_at = now(),
		    rows_read = $3,
		    rows_written = $4,
		    rows_error = $5,
		    error_message = NULLIF($6, '')
		WHERE run_id = $1 AND status = 'running'
	`

	tag, err := l.pool.Exec(ctx, query, runID, status.String(), counts.RowsRead, counts.RowsWritten, counts.RowsError, errorMessage)
	if err != nil {
		return fmt.Errorf("close run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing run from already-terminal run.
		if _, err := l.GetRun(ctx, runID); err != nil {
			return err
		}
		return fmt.Errorf("%w: run %s already closed", storage.ErrInvalidState, runID)
	}
	return nil
}

// GetRun retrieves one run. Returns ErrNotFound if it does not exist.
func (l *RunLedger) GetRun(ctx context.Context, runID uuid.UUID) (*domain.PipelineRun, error) {
	query := `
		SELECT run_id, pipeline_name, run_mode, status, started_at, ended_at,
		       COALESCE(source_ref, ''), rows_read, rows_written, rows_error,
		       COALESCE(error_message, ''), metadata
		FROM ops.pipeline_runs
		WHERE run_id = $1
	`

	run, err := scanRun(l.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// StaleRuns lists runs still running whose start is older than the window.
func (l *RunLedger) StaleRuns(ctx context.Context, olderThan time.Duration) ([]*domain.PipelineRun, error) {
	query := `
		SELECT run_id, pipeline_name, run_mode, status, started_at, ended_at,
		       COALESCE(source_ref, ''), rows_read, rows_written, rows_error,
		       COALESCE(error_message, ''), metadata
		FROM ops.pipeline_runs
		WHERE status = 'running' AND started_at < now() - make_interval(secs => $1)
		ORDER BY started_at ASC
	`

	rows, err := l.pool.Query(ctx, query, olderThan.Seconds())
	if err != nil {
		return nil, fmt.Errorf("stale runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale runs: %w", err)
	}
	return runs, nil
}

// scanRun scans one pipeline run row.
func scanRun(row pgx.Row) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	err := row.Scan(
		&run.RunID,
		&run.PipelineName,
		&run.RunMode,
		&run.Status,
		&run.StartedAt,
		&run.EndedAt,
		&run.SourceRef,
		&run.RowsRead,
		&run.RowsWritten,
		&run.RowsError,
		&run.ErrorMessage,
		&run.Metadata,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
