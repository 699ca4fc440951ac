package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/storage"
)

// RunLedger is an in-memory implementation of storage.RunLedger.
type RunLedger struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*domain.PipelineRun
}

// NewRunLedger creates a new in-memory run ledger.
func NewRunLedger() *RunLedger {
	return &RunLedger{
		data: make(map[uuid.UUID]*domain.PipelineRun),
	}
}

// Compile-time interface check.
var _ storage.RunLedger = (*RunLedger)(nil)

// OpenRun creates a run with status=running and the current time as start.
func (l *RunLedger) OpenRun(_ context.Context, pipelineName string, mode domain.RunMode, sourceRef string) (uuid.UUID, error) {
	if pipelineName == "" {
		return uuid.Nil, fmt.Errorf("%w: pipeline name required", storage.ErrInvalidInput)
	}
	if !mode.IsValid() {
		return uuid.Nil, fmt.Errorf("%w: run mode %q not recognized", domain.ErrValidation, mode)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	runID := uuid.New()
	l.data[runID] = &domain.PipelineRun{
		RunID:        runID,
		PipelineName: pipelineName,
		RunMode:      mode,
		Status:       domain.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
		SourceRef:    sourceRef,
		Metadata:     map[string]string{},
	}
	return runID, nil
}

// CloseRun sets the end timestamp and a terminal status exactly once.
func (l *RunLedger) CloseRun(_ context.Context, runID uuid.UUID, status domain.RunStatus, counts domain.RunCounts, errorMessage string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: close status %q is not terminal", domain.ErrValidation, status)
	}
	if counts.RowsRead < 0 || counts.RowsWritten < 0 || counts.RowsError < 0 {
		return fmt.Errorf("%w: negative row counts", domain.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	run, exists := l.data[runID]
	if !exists {
		return storage.ErrNotFound
	}
	if run.Status != domain.RunStatusRunning {
		return fmt.Errorf("%w: run %s already closed", storage.ErrInvalidState, runID)
	}

	now := time.Now().UTC()
	run.Status = status
	run.EndedAt = &now
	run.RowsRead = counts.RowsRead
	run.RowsWritten = counts.RowsWritten
	run.RowsError = counts.RowsError
	run.ErrorMessage = errorMessage
	return nil
}

// GetRun retrieves one run. Returns ErrNotFound if it does not exist.
func (l *RunLedger) GetRun(_ context.Context, runID uuid.UUID) (*domain.PipelineRun, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	run, exists := l.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	runCopy := *run
	return &runCopy, nil
}

// StaleRuns lists runs still running whose start is older than the window.
func (l *RunLedger) StaleRuns(_ context.Context, olderThan time.Duration) ([]*domain.PipelineRun, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-olderThan)

	var runs []*domain.PipelineRun
	for _, run := range l.data {
		if run.Status == domain.RunStatusRunning && run.StartedAt.Before(cutoff) {
			runCopy := *run
			runs = append(runs, &runCopy)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, nil
}
