// Package runs implements the Run Recorder (C4): the sole writer of Run
// status, timestamps, and counters, including the parent/child rollup
// protocol.
package runs

import (
	"context"
	"fmt"

	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/logger"
	"github.com/northcloud/eventorch/internal/scheduler"
	"github.com/northcloud/eventorch/internal/store"
)

// Recorder implements create-parent-run, create-child-run, attach-job-id,
// mark-running, mark-finished, mark-cancelled, and rollup-parent (§4.4).
type Recorder struct {
	runs *store.RunRepository
	log  logger.Logger
}

// NewRecorder builds a Recorder over runs.
func NewRecorder(runRepo *store.RunRepository, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Recorder{runs: runRepo, log: log}
}

// CreateParentRun inserts a queued parent Run carrying metadata.
func (r *Recorder) CreateParentRun(ctx context.Context, sourceID *string, metadata domain.JSONBMap) (*domain.Run, error) {
	run := &domain.Run{
		SourceID: sourceID,
		Status:   domain.RunStatusQueued,
		Metadata: metadata,
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("runs: create parent run: %w", err)
	}
	return run, nil
}

// CreateChildRun inserts a queued Run with parent_run_id = parentID.
func (r *Recorder) CreateChildRun(ctx context.Context, parentID string, sourceID *string, metadata domain.JSONBMap) (*domain.Run, error) {
	run := &domain.Run{
		SourceID:    sourceID,
		Status:      domain.RunStatusQueued,
		ParentRunID: &parentID,
		Metadata:    metadata,
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("runs: create child run of %s: %w", parentID, err)
	}
	return run, nil
}

// AttachJobID merges metadata.jobId into a Run once the broker has handed
// back a job id for it (§4.4.1 step 4).
func (r *Recorder) AttachJobID(ctx context.Context, runID, jobID string) error {
	patch := domain.JSONBMap{domain.MetadataKeyJobID: jobID}
	if err := r.runs.MergeMetadata(ctx, runID, patch); err != nil {
		return fmt.Errorf("runs: attach job id to run %s: %w", runID, err)
	}
	return nil
}

// MarkRunning transitions a Run from queued to running.
func (r *Recorder) MarkRunning(ctx context.Context, runID string) error {
	if err := r.runs.MarkRunning(ctx, runID); err != nil {
		return fmt.Errorf("runs: mark run %s running: %w", runID, err)
	}
	return nil
}

// MarkFinished transitions a Run to a terminal status with final counters,
// validating the transition against the status machine first.
func (r *Recorder) MarkFinished(ctx context.Context, run domain.Run, status domain.RunStatus, eventsFound, pagesCrawled int64) error {
	if err := scheduler.ValidateStateTransition(run.Status, status); err != nil {
		return err
	}
	if err := r.runs.MarkTerminal(ctx, run.ID, status, eventsFound, pagesCrawled); err != nil {
		return fmt.Errorf("runs: mark run %s finished: %w", run.ID, err)
	}
	if run.ParentRunID != nil {
		return r.RollupParent(ctx, *run.ParentRunID)
	}
	return nil
}

// MarkCancelled transitions a Run to partial as a cancellation outcome,
// preserving whatever counters were already recorded (§4.5's "mark Run
// cancelled" action — the core keeps cancelled Runs in the `partial`
// status, per the Open Question decision in DESIGN.md).
func (r *Recorder) MarkCancelled(ctx context.Context, run domain.Run) error {
	return r.MarkFinished(ctx, run, domain.RunStatusPartial, run.EventsFound, run.PagesCrawled)
}

// RollupParent recomputes parentID's status and counters from its children
// in a single query, per §4.4.2. It is idempotent and monotonic on
// finished_at.
func (r *Recorder) RollupParent(ctx context.Context, parentID string) error {
	agg, err := r.runs.ComputeRollup(ctx, parentID)
	if err != nil {
		return err
	}

	status := RollupStatus(agg)

	batch := domain.BatchRollup{
		Total:   agg.Total,
		Success: agg.SuccessCount,
		Failed:  agg.FailedCount,
		Pending: agg.PendingCount,
	}

	if err := r.runs.ApplyRollup(ctx, parentID, status, agg.EventsTotal, agg.PagesTotal, batch, agg.PendingCount == 0); err != nil {
		return fmt.Errorf("runs: rollup parent %s: %w", parentID, err)
	}
	return nil
}

// Get loads one Run by id, exposed so callers (dispatcher, cancellation)
// need not depend on store directly.
func (r *Recorder) Get(ctx context.Context, id string) (*domain.Run, error) {
	run, err := r.runs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("runs: get run %s: %w", id, err)
	}
	return run, nil
}

// Children returns every Run whose parent_run_id is parentID.
func (r *Recorder) Children(ctx context.Context, parentID string) ([]domain.Run, error) {
	children, err := r.runs.Children(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("runs: list children of %s: %w", parentID, err)
	}
	return children, nil
}

// FindByJobID looks up the Run carrying metadata.jobId = jobID. Used by the
// cancellation service when a job id has already disappeared from the
// broker (§4.5's "not found in broker" branch).
func (r *Recorder) FindByJobID(ctx context.Context, jobID string) (*domain.Run, error) {
	run, err := r.runs.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("runs: find run by job id %s: %w", jobID, err)
	}
	return run, nil
}

// RequestCancellation patches metadata.cancelRequested = true on an active
// Run, the durable counterpart to the broker-side "requested" cancel-flag.
func (r *Recorder) RequestCancellation(ctx context.Context, runID string) error {
	patch := domain.JSONBMap{"cancelRequested": true}
	if err := r.runs.MergeMetadata(ctx, runID, patch); err != nil {
		return fmt.Errorf("runs: request cancellation on run %s: %w", runID, err)
	}
	return nil
}
