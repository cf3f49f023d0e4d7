package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/northcloud/eventorch/internal/store"
)

// scheduleIDFromJobID strips the "schedule:" prefix a Schedule's JobID()
// carries, per §4.3.1.
func scheduleIDFromJobID(jobID string) (string, bool) {
	const prefix = "schedule:"
	if !strings.HasPrefix(jobID, prefix) {
		return "", false
	}
	return strings.TrimPrefix(jobID, prefix), true
}

// PromoteDue runs one promotion-loop tick, per §4.3.3: fetch up to
// batchSize due delayed jobs and move them to waiting. For any promoted
// firing that belongs to a still-active repeatable binding, it also
// schedules that binding's next firing, so the cron cycle continues
// without the reconciliation loop having to notice.
func (p *Promoter) PromoteDue(ctx context.Context, lookahead time.Duration, batchSize int64) ([]string, error) {
	promoted, err := p.queue.PromoteDue(ctx, time.Now(), lookahead, batchSize)
	if err != nil {
		return nil, err
	}

	for _, firingID := range promoted {
		scheduleJobID, ok := scheduleJobIDFromFiring(firingID)
		if !ok {
			continue
		}
		scheduleID, ok := scheduleIDFromJobID(scheduleJobID)
		if !ok {
			continue
		}

		s, err := p.schedules.Get(ctx, scheduleID)
		if err != nil {
			if errors.Is(err, store.ErrScheduleNotFound) {
				// Deleted since this firing was scheduled; reconciliation
				// will unregister the orphan binding on its next pass.
				continue
			}
			return promoted, err
		}
		if !s.Active {
			continue
		}

		// Compute the next firing from this firing's own instant when that is
		// still ahead (promoted early within lookahead), so the same instant
		// is not scheduled a second time.
		from := time.Now()
		if at, perr := time.Parse(time.RFC3339, firingID[len(scheduleJobID)+len(firingIDSeparator):]); perr == nil && at.After(from) {
			from = at
		}

		if err := p.scheduleNextFiring(ctx, *s, from); err != nil {
			return promoted, err
		}
	}

	return promoted, nil
}

// RunPromotionLoop runs PromoteDue on every tick of interval until ctx is
// done, per §4.3.3's default five-second cadence.
func (p *Promoter) RunPromotionLoop(ctx context.Context, interval, lookahead time.Duration, batchSize int64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PromoteDue(ctx, lookahead, batchSize); err != nil {
				p.log.Error("scheduler: promotion tick failed", "error", err.Error())
			}
		}
	}
}
