package runs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StageFunc is one stage execution. It returns the number of rows
// written.
type StageFunc func(ctx context.Context) (int64, error)

// Runner supervises background stage executions: each launched run gets
// its own goroutine, state transitions are written to the store, and a
// panic is recorded as a failure instead of taking the process down.
type Runner struct {
	store  *RunStore
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRunner creates a new Runner.
func NewRunner(store *RunStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: store, logger: logger}
}

// Launch starts a created run on a supervised goroutine and returns
// immediately. The run record must already exist in the queued state.
func (r *Runner) Launch(ctx context.Context, runID string, fn StageFunc) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(ctx, runID, fn)
	}()
}

func (r *Runner) execute(ctx context.Context, runID string, fn StageFunc) {
	if err := r.store.Start(runID); err != nil {
		r.logger.Error("failed to start run", "runID", runID, "error", err)
		return
	}
	started := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("panic: %v", rec)
			r.logger.Error("run panicked", "runID", runID, "panic", rec)
			if err := r.store.Fail(runID, msg, time.Since(started).Milliseconds()); err != nil {
				r.logger.Error("failed to mark panicked run as failed", "runID", runID, "error", err)
			}
		}
	}()

	rows, err := fn(ctx)
	duration := time.Since(started)
	if err != nil {
		r.logger.Error("run failed", "runID", runID, "error", err)
		if failErr := r.store.Fail(runID, err.Error(), duration.Milliseconds()); failErr != nil {
			r.logger.Error("failed to mark run as failed", "runID", runID, "error", failErr)
		}
		return
	}

	r.logger.Info("run completed",
		"runID", runID,
		"rowsWritten", rows,
		"duration", duration.String())
	if err := r.store.Complete(runID, rows, duration.Milliseconds()); err != nil {
		r.logger.Error("failed to mark run as complete", "runID", runID, "error", err)
	}
}

// Wait blocks until every launched run has finished. Called during
// server shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Janitor periodically recovers stuck runs and prunes old terminal
// runs. It blocks until the context is cancelled.
func (r *Runner) Janitor(ctx context.Context, cfg *RunConfig) {
	if !cfg.Enabled {
		r.logger.Info("run janitor disabled")
		return
	}

	ticker := time.NewTicker(cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cfg.ClaimTimeout > 0 {
				recovered, err := r.store.CleanupStuckRuns(cfg.ClaimTimeout)
				if err != nil {
					r.logger.Error("failed to cleanup stuck runs", "error", err)
				} else if recovered > 0 {
					r.logger.Info("failed stuck runs", "count", recovered)
				}
			}

			if cfg.RetentionDays > 0 {
				cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)
				deleted, err := r.store.DeleteOlderThan(cutoff)
				if err != nil {
					r.logger.Error("failed to delete old runs", "error", err)
				} else if deleted > 0 {
					r.logger.Info("deleted old runs", "count", deleted)
				}
			}
		}
	}
}
