package domain

import (
	"errors"
	"time"
)

// ScheduleType selects which dispatcher branch a fired trigger takes.
type ScheduleType string

const (
	ScheduleTypeScrape          ScheduleType = "scrape"
	ScheduleTypeWordPressExport ScheduleType = "wordpress_export"
	ScheduleTypeInstagramScrape ScheduleType = "instagram_scrape"
)

// ErrScheduleInvariant is returned when a Schedule's type/foreign-key
// combination violates the schedules_config_check invariant (spec scenario 6).
var ErrScheduleInvariant = errors.New("domain: schedule violates type/foreign-key invariant")

// Schedule is a cron-backed recurring trigger definition. Owned by the admin
// surface; C3 only reads and reconciles it against the broker's repeatable set.
type Schedule struct {
	ID                  string       `db:"id" json:"id"`
	ScheduleType        ScheduleType `db:"schedule_type" json:"scheduleType"`
	SourceID            *string      `db:"source_id" json:"sourceId,omitempty"`
	WordPressSettingsID *string      `db:"wordpress_settings_id" json:"wordpressSettingsId,omitempty"`
	Cron                string       `db:"cron" json:"cron"`
	Timezone            string       `db:"timezone" json:"timezone"`
	Active              bool         `db:"active" json:"active"`
	Config              JSONBMap     `db:"config" json:"config,omitempty"`
	RepeatKey           *string      `db:"repeat_key" json:"repeatKey,omitempty"`
	CreatedAt           time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updatedAt"`
}

// JobID is the broker repeatable-job key this Schedule registers under.
func (s Schedule) JobID() string {
	return "schedule:" + s.ID
}

// Validate enforces the schedules_config_check invariant: exactly one of
// source_id / wordpress_settings_id is set, matching the schedule type.
func (s Schedule) Validate() error {
	switch s.ScheduleType {
	case ScheduleTypeScrape:
		if s.SourceID == nil || s.WordPressSettingsID != nil {
			return ErrScheduleInvariant
		}
	case ScheduleTypeWordPressExport:
		if s.WordPressSettingsID == nil {
			return ErrScheduleInvariant
		}
	case ScheduleTypeInstagramScrape:
		if s.SourceID != nil || s.WordPressSettingsID != nil {
			return ErrScheduleInvariant
		}
	default:
		return ErrScheduleInvariant
	}
	return nil
}
