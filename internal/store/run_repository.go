package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/northcloud/eventorch/internal/domain"
)

// ErrRunNotFound is returned when a lookup finds no matching row.
var ErrRunNotFound = errors.New("store: run not found")

const runSelectColumns = `id, source_id, status, started_at, finished_at,
	events_found, pages_crawled, parent_run_id, metadata, created_at, updated_at`

// RunRepository is the only writer of Run.status/started_at/finished_at and
// the counter fields, per the Run Recorder contract.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs a RunRepository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a Run in the given status, optionally as a child of
// parentRunID.
func (r *RunRepository) Create(ctx context.Context, run *domain.Run) error {
	query := `INSERT INTO runs (source_id, status, parent_run_id, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	if err := r.db.QueryRowContext(ctx, query,
		run.SourceID, run.Status, run.ParentRunID, &run.Metadata,
	).Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

// Get loads one Run by id.
func (r *RunRepository) Get(ctx context.Context, id string) (*domain.Run, error) {
	query := `SELECT ` + runSelectColumns + ` FROM runs WHERE id = $1`

	var run domain.Run
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("store: get run %s: %w", id, err)
	}
	return &run, nil
}

// Children returns every Run with parent_run_id = parentID, via the
// idx_runs_parent_run_id index (sub-linear lookup, per §4.1's contract).
func (r *RunRepository) Children(ctx context.Context, parentID string) ([]domain.Run, error) {
	query := `SELECT ` + runSelectColumns + ` FROM runs WHERE parent_run_id = $1 ORDER BY created_at`

	var rows []domain.Run
	if err := r.db.SelectContext(ctx, &rows, query, parentID); err != nil {
		return nil, fmt.Errorf("store: list children of run %s: %w", parentID, err)
	}
	return rows, nil
}

// FindByJobID looks up the Run carrying metadata.jobId = jobID, used by the
// cancellation service's "not found in broker" branch (§4.5).
func (r *RunRepository) FindByJobID(ctx context.Context, jobID string) (*domain.Run, error) {
	query := `SELECT ` + runSelectColumns + ` FROM runs WHERE metadata->>'jobId' = $1`

	var run domain.Run
	if err := r.db.GetContext(ctx, &run, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("store: find run by job id %s: %w", jobID, err)
	}
	return &run, nil
}

// MergeMetadata shallow-merges patch into the Run's metadata JSONB column,
// used to attach metadata.jobId and metadata.cancelRequested without a
// read-modify-write race.
func (r *RunRepository) MergeMetadata(ctx context.Context, id string, patch domain.JSONBMap) error {
	query := `UPDATE runs SET metadata = metadata || $2::jsonb, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, &patch); err != nil {
		return fmt.Errorf("store: merge metadata on run %s: %w", id, err)
	}
	return nil
}

// MarkRunning transitions a Run to running and stamps started_at, per C4's
// mark-running operation.
func (r *RunRepository) MarkRunning(ctx context.Context, id string) error {
	query := `UPDATE runs SET status = $2, started_at = now(), updated_at = now()
		WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, domain.RunStatusRunning); err != nil {
		return fmt.Errorf("store: mark run %s running: %w", id, err)
	}
	return nil
}

// MarkTerminal transitions a Run to a terminal status (success, partial, or
// error), stamping finished_at and the event/page counters. Only C4 calls
// this.
func (r *RunRepository) MarkTerminal(ctx context.Context, id string, status domain.RunStatus, eventsFound, pagesCrawled int64) error {
	query := `UPDATE runs SET status = $2, finished_at = now(),
			events_found = $3, pages_crawled = $4, updated_at = now()
		WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, eventsFound, pagesCrawled); err != nil {
		return fmt.Errorf("store: mark run %s terminal: %w", id, err)
	}
	return nil
}

// RollupRow is the aggregate computed by the rollup SQL, per §4.4.2.
type RollupRow struct {
	Total        int   `db:"total"`
	SuccessCount int   `db:"success_count"`
	FailedCount  int   `db:"failed_count"`
	PendingCount int   `db:"pending_count"`
	EventsTotal  int64 `db:"events_total"`
	PagesTotal   int64 `db:"pages_total"`
}

// ComputeRollup runs the §4.4.2 aggregate query over parentID's children in
// a single round trip.
func (r *RunRepository) ComputeRollup(ctx context.Context, parentID string) (RollupRow, error) {
	query := `SELECT
			count(*) AS total,
			count(*) FILTER (WHERE status = 'success') AS success_count,
			count(*) FILTER (WHERE status IN ('error', 'partial')) AS failed_count,
			count(*) FILTER (WHERE status IN ('queued', 'running')) AS pending_count,
			coalesce(sum(events_found), 0) AS events_total,
			coalesce(sum(pages_crawled), 0) AS pages_total
		FROM runs WHERE parent_run_id = $1`

	var row RollupRow
	if err := r.db.GetContext(ctx, &row, query, parentID); err != nil {
		return RollupRow{}, fmt.Errorf("store: compute rollup for %s: %w", parentID, err)
	}
	return row, nil
}

// ApplyRollup writes the status/counters/metadata.batch a rollup computed.
// finishedAt is only set (never cleared), preserving the monotonic
// finished_at invariant — pass true only when pending_count == 0.
func (r *RunRepository) ApplyRollup(ctx context.Context, parentID string, status domain.RunStatus, eventsTotal, pagesTotal int64, batch domain.BatchRollup, setFinished bool) error {
	query := `UPDATE runs SET
			status = $2,
			events_found = $3,
			pages_crawled = $4,
			metadata = jsonb_set(metadata, '{batch}', $5::jsonb, true),
			finished_at = CASE WHEN $6 THEN now() ELSE finished_at END,
			updated_at = now()
		WHERE id = $1`

	batchJSON := domain.JSONBMap{
		"total":   batch.Total,
		"success": batch.Success,
		"failed":  batch.Failed,
		"pending": batch.Pending,
	}

	if _, err := r.db.ExecContext(ctx, query, parentID, status, eventsTotal, pagesTotal, &batchJSON, setFinished); err != nil {
		return fmt.Errorf("store: apply rollup to run %s: %w", parentID, err)
	}
	return nil
}
