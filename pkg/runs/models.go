package runs

import (
	"time"
)

// RunState represents the lifecycle state of a pipeline run.
type RunState string

const (
	RunStateQueued    RunState = "queued"
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// PipelineRun is the GORM model for one tracked stage execution. Failed
// runs stay failed; the caller re-triggers the stage rather than the
// tracker retrying it.
type PipelineRun struct {
	ID          string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	Stage       string     `gorm:"column:stage;index:idx_run_stage_state,priority:1;not null"`
	Generation  int64      `gorm:"column:generation;index:idx_run_generation"`
	State       RunState   `gorm:"column:state;index:idx_run_stage_state,priority:2;index:idx_run_state;not null;default:queued"`
	RowsWritten int64      `gorm:"column:rows_written"`
	RequestedAt time.Time  `gorm:"column:requested_at;not null"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	FinishedAt  *time.Time `gorm:"column:finished_at"`
	LastError   string     `gorm:"column:last_error"`
	DurationMs  int64      `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (PipelineRun) TableName() string { return "pipeline_runs" }

// IsTerminal returns true if the run is in a terminal state.
func (r *PipelineRun) IsTerminal() bool {
	switch r.State {
	case RunStateSucceeded, RunStateFailed:
		return true
	}
	return false
}
