package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/northcloud/eventorch/internal/domain"
)

// ErrScheduleNotFound is returned when a lookup finds no matching row.
var ErrScheduleNotFound = errors.New("store: schedule not found")

const scheduleSelectColumns = `id, schedule_type, source_id, wordpress_settings_id,
	cron, timezone, active, config, repeat_key, created_at, updated_at`

// ScheduleRepository persists Schedule rows, enforcing the
// schedules_config_check invariant on every write.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs a ScheduleRepository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ListAll returns every Schedule row, active or not, for reconciliation.
func (r *ScheduleRepository) ListAll(ctx context.Context) ([]domain.Schedule, error) {
	query := `SELECT ` + scheduleSelectColumns + ` FROM schedules ORDER BY id`

	var rows []domain.Schedule
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("store: list schedules: %w", err)
	}
	return rows, nil
}

// Get loads one Schedule by id.
func (r *ScheduleRepository) Get(ctx context.Context, id string) (*domain.Schedule, error) {
	query := `SELECT ` + scheduleSelectColumns + ` FROM schedules WHERE id = $1`

	var s domain.Schedule
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("store: get schedule %s: %w", id, err)
	}
	return &s, nil
}

// Create inserts a Schedule. The schedules_config_check constraint is the
// database's own enforcement of domain.Schedule.Validate; Create runs
// Validate before the insert so a violation surfaces as
// domain.ErrScheduleInvariant.
func (r *ScheduleRepository) Create(ctx context.Context, s *domain.Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO schedules (schedule_type, source_id, wordpress_settings_id,
			cron, timezone, active, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	if err := r.db.QueryRowContext(ctx, query,
		s.ScheduleType, s.SourceID, s.WordPressSettingsID,
		s.Cron, s.Timezone, s.Active, &s.Config,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("store: create schedule: %w", err)
	}
	return nil
}

// SetRepeatKey persists the broker-assigned repeat_key onto a Schedule row.
func (r *ScheduleRepository) SetRepeatKey(ctx context.Context, id string, repeatKey *string) error {
	query := `UPDATE schedules SET repeat_key = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, repeatKey); err != nil {
		return fmt.Errorf("store: set repeat_key for schedule %s: %w", id, err)
	}
	return nil
}
