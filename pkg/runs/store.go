// Package runs tracks pipeline stage executions: every triggered stage
// gets a persistent run record that moves through
// queued/running/succeeded/failed, so background stages stay observable
// after the trigger request returns.
package runs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunStore provides database operations for pipeline runs.
type RunStore struct {
	db *gorm.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *gorm.DB) *RunStore {
	return &RunStore{db: db}
}

// AutoMigrate creates or updates the pipeline_runs table.
func (s *RunStore) AutoMigrate() error {
	return s.db.AutoMigrate(&PipelineRun{})
}

// RunListFilter defines filters for listing runs.
type RunListFilter struct {
	Stage string
	State string
}

// Create records a new queued run. A missing id gets a fresh UUID.
func (s *RunStore) Create(run *PipelineRun) (*PipelineRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.State == "" {
		run.State = RunStateQueued
	}
	if run.RequestedAt.IsZero() {
		run.RequestedAt = time.Now().UTC()
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// Start transitions a queued run to running.
func (s *RunStore) Start(runID string) error {
	now := time.Now().UTC()
	result := s.db.Model(&PipelineRun{}).
		Where("id = ? AND state = ?", runID, RunStateQueued).
		Updates(map[string]any{
			"state":      RunStateRunning,
			"started_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("start run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("start run: %s is not queued", runID)
	}
	return nil
}

// Complete marks a run as succeeded.
func (s *RunStore) Complete(runID string, rowsWritten, durationMs int64) error {
	now := time.Now().UTC()
	result := s.db.Model(&PipelineRun{}).Where("id = ?", runID).Updates(map[string]any{
		"state":        RunStateSucceeded,
		"finished_at":  now,
		"rows_written": rowsWritten,
		"duration_ms":  durationMs,
	})
	if result.Error != nil {
		return fmt.Errorf("complete run: %w", result.Error)
	}
	return nil
}

// Fail marks a run as failed. Failed runs are terminal; re-triggering
// the stage creates a new run.
func (s *RunStore) Fail(runID, errMsg string, durationMs int64) error {
	now := time.Now().UTC()
	result := s.db.Model(&PipelineRun{}).Where("id = ?", runID).Updates(map[string]any{
		"state":       RunStateFailed,
		"finished_at": now,
		"last_error":  errMsg,
		"duration_ms": durationMs,
	})
	if result.Error != nil {
		return fmt.Errorf("fail run: %w", result.Error)
	}
	return nil
}

// Get retrieves a run by id. Returns nil when the run does not exist.
func (s *RunStore) Get(runID string) (*PipelineRun, error) {
	var run PipelineRun
	if err := s.db.First(&run, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// GetByGeneration retrieves the newest run of a stage for a generation.
// Returns nil when no such run exists.
func (s *RunStore) GetByGeneration(stage string, generation int64) (*PipelineRun, error) {
	var run PipelineRun
	err := s.db.
		Where("stage = ? AND generation = ?", stage, generation).
		Order("requested_at DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run by generation: %w", err)
	}
	return &run, nil
}

// List returns paginated runs matching the given filter, newest first.
func (s *RunStore) List(filter RunListFilter, pageSize int, pageToken string) ([]PipelineRun, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&PipelineRun{})
		if filter.Stage != "" {
			q = q.Where("stage = ?", filter.Stage)
		}
		if filter.State != "" {
			q = q.Where("state = ?", filter.State)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count runs: %w", err)
	}

	query := buildQuery(s.db).Order("requested_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("requested_at < ?", t)
	}

	var records []PipelineRun
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list runs: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].RequestedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// CleanupStuckRuns fails running runs whose started_at is older than
// claimTimeout. Their stage process died without reporting; marking them
// failed keeps the tracker honest without retrying the work.
func (s *RunStore) CleanupStuckRuns(claimTimeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-claimTimeout)
	result := s.db.Model(&PipelineRun{}).
		Where("state = ? AND started_at < ?", RunStateRunning, cutoff).
		Updates(map[string]any{
			"state":       RunStateFailed,
			"finished_at": time.Now().UTC(),
			"last_error":  "timed out (stuck run recovery)",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup stuck runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan removes terminal runs older than the given cutoff.
func (s *RunStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("state IN ? AND finished_at < ?",
		[]RunState{RunStateSucceeded, RunStateFailed}, cutoff).
		Delete(&PipelineRun{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
