package domain

import "time"

// ExportStatus is the lifecycle state of a WordPress export record,
// supplemented from original_source/'s WordPress push path (§4.3.4).
type ExportStatus string

const (
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusCompleted  ExportStatus = "completed"
	ExportStatusFailed     ExportStatus = "failed"
)

// Export tracks one invocation of the external WordPress export pipeline.
// It is owned by the dispatcher and is not part of the Run tree.
type Export struct {
	ID                  string       `db:"id" json:"id"`
	WordPressSettingsID string       `db:"wordpress_settings_id" json:"wordpressSettingsId"`
	ScheduleID          *string      `db:"schedule_id" json:"scheduleId,omitempty"`
	Status              ExportStatus `db:"status" json:"status"`
	Format              string       `db:"format" json:"format"`
	CreatedAt           time.Time    `db:"created_at" json:"createdAt"`
	CompletedAt         *time.Time   `db:"completed_at" json:"completedAt,omitempty"`
}

// InstagramAccount is a read-only external collaborator record the
// Instagram Batch Coordinator queries to compute its fan-out target set.
// The core never writes to it.
type InstagramAccount struct {
	ID       string `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Active   bool   `db:"active" json:"active"`
}
