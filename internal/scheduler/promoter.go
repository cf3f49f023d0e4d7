package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/northcloud/eventorch/internal/broker"
	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/logger"
)

// ScheduleStore is the subset of store.ScheduleRepository the Promoter
// depends on.
type ScheduleStore interface {
	ListAll(ctx context.Context) ([]domain.Schedule, error)
	Get(ctx context.Context, id string) (*domain.Schedule, error)
	SetRepeatKey(ctx context.Context, id string, repeatKey *string) error
}

// Promoter is the Schedule Promoter (C3): it keeps the broker's repeatable
// set equal to the active Schedule rows and promotes due delayed triggers.
type Promoter struct {
	schedules ScheduleStore
	queue     *broker.Queue
	log       logger.Logger

	syncInProgress atomic.Bool
}

// NewPromoter builds a Promoter bound to the schedule-queue.
func NewPromoter(schedules ScheduleStore, scheduleQueue *broker.Queue, log logger.Logger) *Promoter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Promoter{schedules: schedules, queue: scheduleQueue, log: log}
}

const firingIDSeparator = "@"

func firingJobID(scheduleJobID string, at time.Time) string {
	return scheduleJobID + firingIDSeparator + at.UTC().Format(time.RFC3339)
}

func scheduleJobIDFromFiring(firingID string) (string, bool) {
	idx := strings.LastIndex(firingID, firingIDSeparator)
	if idx < 0 {
		return "", false
	}
	return firingID[:idx], true
}

// Register enqueues a repeatable job for s (§4.3.1) and schedules its next
// firing, then persists the returned repeat_key on the Schedule row.
func (p *Promoter) Register(ctx context.Context, s domain.Schedule) error {
	repeatKey, err := p.queue.EnqueueRepeatable(ctx, s.JobID(), s.Cron, s.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler: register schedule %s: %w", s.ID, err)
	}

	if err := p.scheduleNextFiring(ctx, s, time.Now()); err != nil {
		return err
	}

	if err := p.schedules.SetRepeatKey(ctx, s.ID, &repeatKey); err != nil {
		return fmt.Errorf("scheduler: persist repeat_key for %s: %w", s.ID, err)
	}
	return nil
}

// Unregister removes s's repeatable job and clears its stored repeat_key.
func (p *Promoter) Unregister(ctx context.Context, s domain.Schedule) error {
	if err := p.queue.RemoveRepeatable(ctx, s.JobID()); err != nil {
		return fmt.Errorf("scheduler: unregister schedule %s: %w", s.ID, err)
	}
	if err := p.schedules.SetRepeatKey(ctx, s.ID, nil); err != nil {
		return fmt.Errorf("scheduler: clear repeat_key for %s: %w", s.ID, err)
	}
	return nil
}

func (p *Promoter) scheduleNextFiring(ctx context.Context, s domain.Schedule, from time.Time) error {
	next, err := nextFireAfter(s.Cron, s.Timezone, from)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"scheduleId":   s.ID,
		"scheduleType": string(s.ScheduleType),
		"sourceId":     s.SourceID,
		"config":       map[string]any(s.Config),
	}

	jobID := firingJobID(s.JobID(), next)
	if _, err := p.queue.EnqueueDelayed(ctx, jobID, payload, time.Until(next)); err != nil {
		return fmt.Errorf("scheduler: schedule next firing for %s: %w", s.ID, err)
	}
	return p.queue.MarkFired(ctx, s.JobID(), next)
}

// Sync runs one reconciliation pass, per §4.3.2. A syncInProgress latch
// makes concurrent calls re-entrant-safe; a call that finds one already
// running is a no-op.
func (p *Promoter) Sync(ctx context.Context) error {
	if !p.syncInProgress.CompareAndSwap(false, true) {
		p.log.Debug("scheduler: sync already in progress, skipping")
		return nil
	}
	defer p.syncInProgress.Store(false)

	schedules, err := p.schedules.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: sync: list schedules: %w", err)
	}

	bindings, err := p.queue.ListRepeatable(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: sync: list repeatable: %w", err)
	}

	seen := make(map[string]bool, len(schedules))
	for _, s := range schedules {
		seen[s.JobID()] = true
		binding, hasBinding := bindings[s.JobID()]

		switch {
		case !s.Active && hasBinding:
			if err := p.Unregister(ctx, s); err != nil {
				return err
			}
		case s.Active && !hasBinding:
			if err := p.Register(ctx, s); err != nil {
				return err
			}
		case s.Active && hasBinding && (binding.Pattern != s.Cron || binding.Timezone != s.Timezone):
			if err := p.Unregister(ctx, s); err != nil {
				return err
			}
			if err := p.Register(ctx, s); err != nil {
				return err
			}
		case s.Active && hasBinding:
			if s.RepeatKey == nil || *s.RepeatKey != binding.RepeatKey {
				repeatKey := binding.RepeatKey
				if err := p.schedules.SetRepeatKey(ctx, s.ID, &repeatKey); err != nil {
					return fmt.Errorf("scheduler: sync: correct repeat_key for %s: %w", s.ID, err)
				}
			}
		}
	}

	for jobID := range bindings {
		if seen[jobID] {
			continue
		}
		p.log.Info("scheduler: unregistering orphan repeatable binding", "jobId", jobID)
		if err := p.queue.RemoveRepeatable(ctx, jobID); err != nil {
			return fmt.Errorf("scheduler: sync: remove orphan %s: %w", jobID, err)
		}
	}

	return nil
}

// RunSyncLoop runs Sync once immediately, then on every tick of interval,
// until ctx is done. An interval of zero disables the loop (§6's
// SCHEDULE_SYNC_INTERVAL_MS=0 meaning).
func (p *Promoter) RunSyncLoop(ctx context.Context, interval time.Duration) {
	if err := p.Sync(ctx); err != nil {
		p.log.Error("scheduler: initial sync failed", "error", err.Error())
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Sync(ctx); err != nil {
				p.log.Error("scheduler: sync failed", "error", err.Error())
			}
		}
	}
}
