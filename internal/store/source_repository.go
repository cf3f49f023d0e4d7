package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/northcloud/eventorch/internal/domain"
)

// ErrSourceNotFound is returned when a lookup finds no matching row.
var ErrSourceNotFound = errors.New("store: source not found")

const sourceSelectColumns = `id, module_key, name, base_url, active,
	default_timezone, rate_limit_per_min, source_type, created_at, updated_at`

// SourceRepository reads the admin-owned sources table. The core never
// writes to it.
type SourceRepository struct {
	db *sqlx.DB
}

// NewSourceRepository constructs a SourceRepository.
func NewSourceRepository(db *sqlx.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// Get loads one Source by id.
func (r *SourceRepository) Get(ctx context.Context, id string) (*domain.Source, error) {
	query := `SELECT ` + sourceSelectColumns + ` FROM sources WHERE id = $1`

	var s domain.Source
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSourceNotFound
		}
		return nil, fmt.Errorf("store: get source %s: %w", id, err)
	}
	return &s, nil
}
