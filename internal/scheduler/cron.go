package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextFireAfter computes the next instant pattern fires strictly after from,
// in the IANA zone tz.
func nextFireAfter(pattern, tz string, from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: load timezone %q: %w", tz, err)
	}

	schedule, err := cronParser.Parse(pattern)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: parse cron %q: %w", pattern, err)
	}

	return schedule.Next(from.In(loc)), nil
}
