package domain

import "time"

// SourceType distinguishes a catalogued scrape target's collection method.
type SourceType string

const (
	SourceTypeWebsite   SourceType = "website"
	SourceTypeInstagram SourceType = "instagram"
)

// Source is a catalogued scrape target, owned by the admin surface.
// The core never creates or mutates a Source; it only reads it.
type Source struct {
	ID              string     `db:"id" json:"id"`
	ModuleKey       string     `db:"module_key" json:"moduleKey"`
	Name            string     `db:"name" json:"name"`
	BaseURL         string     `db:"base_url" json:"baseUrl"`
	Active          bool       `db:"active" json:"active"`
	DefaultTimezone string     `db:"default_timezone" json:"defaultTimezone"`
	RateLimitPerMin int        `db:"rate_limit_per_min" json:"rateLimitPerMin"`
	SourceType      SourceType `db:"source_type" json:"sourceType"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}
