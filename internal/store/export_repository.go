package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/northcloud/eventorch/internal/domain"
)

// ExportRepository persists Export rows for the wordpress_export dispatch
// branch (§4.3.4).
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository constructs an ExportRepository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create inserts an Export row in processing status.
func (r *ExportRepository) Create(ctx context.Context, e *domain.Export) error {
	query := `INSERT INTO exports (wordpress_settings_id, schedule_id, status, format)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	if err := r.db.QueryRowContext(ctx, query,
		e.WordPressSettingsID, e.ScheduleID, e.Status, e.Format,
	).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("store: create export: %w", err)
	}
	return nil
}

// MarkCompleted transitions an Export to completed.
func (r *ExportRepository) MarkCompleted(ctx context.Context, id string) error {
	query := `UPDATE exports SET status = $2, completed_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, domain.ExportStatusCompleted); err != nil {
		return fmt.Errorf("store: mark export %s completed: %w", id, err)
	}
	return nil
}

// MarkFailed transitions an Export to failed. Per the Open Question in
// §9, this core marks the row failed before re-raising to the broker,
// rather than leaving it in processing.
func (r *ExportRepository) MarkFailed(ctx context.Context, id string) error {
	query := `UPDATE exports SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, domain.ExportStatusFailed); err != nil {
		return fmt.Errorf("store: mark export %s failed: %w", id, err)
	}
	return nil
}
