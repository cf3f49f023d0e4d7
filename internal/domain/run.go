package domain

import "time"

// RunStatus is the lifecycle state of one execution unit.
type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusError   RunStatus = "error"
)

// IsTerminal reports whether status is absorbing.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusPartial, RunStatusError:
		return true
	default:
		return false
	}
}

// Reserved top-level Run.Metadata keys the core owns. Every other key is
// opaque pass-through, per the Persistent Store contract.
const (
	MetadataKeyJobID = "jobId"
	MetadataKeyBatch = "batch"
)

// Run is one execution record, parent or child. Only the Run Recorder (C4)
// writes Status, StartedAt, FinishedAt, and the counter fields.
type Run struct {
	ID            string     `db:"id" json:"id"`
	SourceID      *string    `db:"source_id" json:"sourceId,omitempty"`
	Status        RunStatus  `db:"status" json:"status"`
	StartedAt     *time.Time `db:"started_at" json:"startedAt,omitempty"`
	FinishedAt    *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
	EventsFound   int64      `db:"events_found" json:"eventsFound"`
	PagesCrawled  int64      `db:"pages_crawled" json:"pagesCrawled"`
	ParentRunID   *string    `db:"parent_run_id" json:"parentRunId,omitempty"`
	Metadata      JSONBMap   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// JobID reads the reserved metadata.jobId key, if present.
func (r Run) JobID() (string, bool) {
	if r.Metadata == nil {
		return "", false
	}
	v, ok := r.Metadata[MetadataKeyJobID]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// IsParent reports whether this Run has no parent of its own.
func (r Run) IsParent() bool {
	return r.ParentRunID == nil
}

// BatchRollup is the shape written to parent.metadata.batch by rollup-parent.
type BatchRollup struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}
