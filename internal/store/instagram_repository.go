package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/northcloud/eventorch/internal/domain"
)

// InstagramAccountRepository reads the admin-owned instagram_accounts
// table the Instagram Batch Coordinator uses to compute its fan-out target
// set. The core never writes to it.
type InstagramAccountRepository struct {
	db *sqlx.DB
}

// NewInstagramAccountRepository constructs an InstagramAccountRepository.
func NewInstagramAccountRepository(db *sqlx.DB) *InstagramAccountRepository {
	return &InstagramAccountRepository{db: db}
}

// ListActive returns every active Instagram account, ordered for stable
// queue-position assignment.
func (r *InstagramAccountRepository) ListActive(ctx context.Context) ([]domain.InstagramAccount, error) {
	query := `SELECT id, username, active FROM instagram_accounts WHERE active = true ORDER BY username`

	var rows []domain.InstagramAccount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("store: list active instagram accounts: %w", err)
	}
	return rows, nil
}
