package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunMode says how a pipeline run was triggered.
type RunMode string

const (
	RunModeScheduled RunMode = "scheduled"
	RunModeManual    RunMode = "manual"
	RunModeBackfill  RunMode = "backfill"
	RunModeAdhoc     RunMode = "adhoc"
)

// String returns the string representation of RunMode.
func (m RunMode) String() string {
	return string(m)
}

// IsValid checks if the mode is a recognized value.
func (m RunMode) IsValid() bool {
	switch m {
	case RunModeScheduled, RunModeManual, RunModeBackfill, RunModeAdhoc:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailed    RunStatus = "failed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusSkipped   RunStatus = "skipped"
)

// String returns the string representation of RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a recognized value.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusSuccess, RunStatusFailed,
		RunStatusPartial, RunStatusCancelled, RunStatusSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends a run. A run leaves
// running exactly once; terminal statuses never change again.
func (s RunStatus) IsTerminal() bool {
	return s.IsValid() && s != RunStatusRunning
}

// RunCounts are the row totals reported when a run closes.
type RunCounts struct {
	RowsRead    int64
	RowsWritten int64
	RowsError   int64
}

// PipelineRun is one entry in the pipeline-run ledger. Every batch write
// into the raw or feature layers happens under an open run; the ledger
// row is the audit record of what that run read, wrote, and rejected.
type PipelineRun struct {
	RunID        uuid.UUID
	PipelineName string
	RunMode      RunMode
	Status       RunStatus

	StartedAt time.Time
	EndedAt   *time.Time // nil while running

	SourceRef    string
	RowsRead     int64
	RowsWritten  int64
	RowsError    int64
	ErrorMessage string

	Metadata map[string]string
}
