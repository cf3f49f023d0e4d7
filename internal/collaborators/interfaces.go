// Package collaborators declares the contracts the core consumes from
// external components (§6) without implementing them: HTML parsing, LLM
// classification, the admin UI, and the concrete scrape/export pipelines
// remain out of scope.
package collaborators

import (
	"context"

	"github.com/northcloud/eventorch/internal/domain"
)

// SourceLoader validates a Source before the dispatcher enqueues a scrape
// job for it.
type SourceLoader interface {
	GetSource(ctx context.Context, id string) (*domain.Source, error)
}

// ScrapeJobPayload is handed to a Scrape Worker.
type ScrapeJobPayload struct {
	RunID             string         `json:"runId"`
	SourceID          string         `json:"sourceId"`
	ModuleKey         string         `json:"moduleKey"`
	SourceName        string         `json:"sourceName"`
	TestMode          bool           `json:"testMode,omitempty"`
	UploadedFile      string         `json:"uploadedFile,omitempty"`
	PaginationOptions map[string]any `json:"paginationOptions,omitempty"`
	ScrapeMode        string         `json:"scrapeMode,omitempty"`
}

// InstagramJobPayload is handed to an Instagram Worker.
type InstagramJobPayload struct {
	AccountID    string `json:"accountId"`
	PostLimit    int    `json:"postLimit"`
	BatchSize    int    `json:"batchSize,omitempty"`
	RunID        string `json:"runId"`
	ParentRunID  string `json:"parentRunId"`
}

// ExportRequest is handed to the WordPress Exporter.
type ExportRequest struct {
	ExportID string         `json:"exportId"`
	Format   string         `json:"format"`
	WPSiteID string         `json:"wpSiteId"`
	Status   string         `json:"status"`
	Filters  map[string]any `json:"filters,omitempty"`
	FieldMap map[string]any `json:"fieldMap,omitempty"`
}

// WordPressExporter performs one export run, raising an error that the
// dispatcher propagates to the broker on failure.
type WordPressExporter interface {
	Export(ctx context.Context, req ExportRequest) error
}
