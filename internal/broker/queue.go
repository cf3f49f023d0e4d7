package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/northcloud/eventorch/internal/domain"
)

// Queue is one named queue on the broker (schedule-queue, scrape-queue,
// instagram-scrape-queue), implementing the four primitive operations from
// §4.2.
type Queue struct {
	client *redis.Client
	name   string
}

// NewQueue binds a Queue to name on client.
func NewQueue(client *redis.Client, name string) *Queue {
	return &Queue{client: client, name: name}
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }

// EnqueueImmediate adds a job directly to the waiting list. jobID is
// generated if empty.
func (q *Queue) EnqueueImmediate(ctx context.Context, jobID string, data map[string]any) (domain.Job, error) {
	return q.enqueue(ctx, jobID, data, 0)
}

// EnqueueDelayed schedules a job to become eligible after delay, via the
// delayed sorted set scored by scheduled_at. A negative delay yields a job
// that is already past due; a zero delay goes straight to the waiting list.
func (q *Queue) EnqueueDelayed(ctx context.Context, jobID string, data map[string]any, delay time.Duration) (domain.Job, error) {
	return q.enqueue(ctx, jobID, data, delay)
}

func (q *Queue) enqueue(ctx context.Context, jobID string, data map[string]any, delay time.Duration) (domain.Job, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}

	now := time.Now().UTC()
	j := domain.Job{
		ID:        jobID,
		Queue:     q.name,
		Data:      data,
		Timestamp: now,
		Delay:     delay,
	}

	if delay == 0 {
		j.State = domain.JobStateWaiting
		if err := q.saveJob(ctx, j); err != nil {
			return domain.Job{}, err
		}
		if err := q.client.LPush(ctx, waitingKey(q.name), jobID).Err(); err != nil {
			return domain.Job{}, fmt.Errorf("broker: push waiting %s: %w", jobID, err)
		}
		return j, nil
	}

	j.State = domain.JobStateDelayed
	if err := q.saveJob(ctx, j); err != nil {
		return domain.Job{}, err
	}
	score := float64(j.ScheduledAt().UnixMilli())
	if err := q.client.ZAdd(ctx, delayedKey(q.name), redis.Z{Score: score, Member: jobID}).Err(); err != nil {
		return domain.Job{}, fmt.Errorf("broker: schedule delayed %s: %w", jobID, err)
	}
	return j, nil
}

// Dequeue blocks up to timeout for a waiting job, moving it atomically into
// the processing list, which holds taken-but-unacknowledged jobs until Ack,
// Fail, or Remove takes them out. Nothing moves a processing job back to
// waiting: a job whose worker crashes stays in the processing list.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (domain.Job, error) {
	jobID, err := q.client.BRPopLPush(ctx, waitingKey(q.name), processingKey(q.name), timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Job{}, ErrJobNotFound
		}
		return domain.Job{}, fmt.Errorf("broker: dequeue from %s: %w", q.name, err)
	}

	var j domain.Job
	err = q.updateJobStateReturning(ctx, jobID, func(job *domain.Job) {
		job.State = domain.JobStateActive
		now := time.Now().UTC()
		job.ProcessedOn = &now
		job.AttemptsMade++
		j = *job
	})
	return j, err
}

func (q *Queue) updateJobStateReturning(ctx context.Context, jobID string, mutate func(*domain.Job)) error {
	return q.updateJobState(ctx, jobID, mutate)
}

// Ack marks a job completed, removes it from processing, and appends it to
// the bounded completed history.
func (q *Queue) Ack(ctx context.Context, jobID string) error {
	if err := q.updateJobState(ctx, jobID, func(j *domain.Job) {
		j.State = domain.JobStateCompleted
		now := time.Now().UTC()
		j.FinishedOn = &now
	}); err != nil {
		return err
	}
	return q.finishProcessing(ctx, jobID, completedKey(q.name))
}

// Fail marks a job failed with reason, removes it from processing, and
// appends it to the bounded failed history.
func (q *Queue) Fail(ctx context.Context, jobID, reason string) error {
	if err := q.updateJobState(ctx, jobID, func(j *domain.Job) {
		j.State = domain.JobStateFailed
		j.FailedReason = reason
		now := time.Now().UTC()
		j.FinishedOn = &now
	}); err != nil {
		return err
	}
	return q.finishProcessing(ctx, jobID, failedKey(q.name))
}

func (q *Queue) finishProcessing(ctx context.Context, jobID, historyKey string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey(q.name), 1, jobID)
	pipe.LPush(ctx, historyKey, jobID)
	pipe.LTrim(ctx, historyKey, 0, historyLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: finish processing %s: %w", jobID, err)
	}
	return nil
}

// Remove deletes a job from the broker entirely: its waiting/delayed/
// processing membership and its hash. Used by cancelJobs for waiting,
// delayed, and paused jobs (§4.5).
func (q *Queue) Remove(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, waitingKey(q.name), 0, jobID)
	pipe.ZRem(ctx, delayedKey(q.name), jobID)
	pipe.LRem(ctx, processingKey(q.name), 0, jobID)
	pipe.Del(ctx, jobKey(q.name, jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: remove job %s: %w", jobID, err)
	}
	return nil
}

// GetJob loads the current state of a job, or ErrJobNotFound if it is
// missing (evicted history, never enqueued, or removed).
func (q *Queue) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	return q.loadJob(ctx, jobID)
}

// PromoteDue moves up to batchSize delayed jobs whose scheduled_at has
// passed lookahead into the waiting list, per §4.3.3. Returns the promoted
// job ids.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time, lookahead time.Duration, batchSize int64) ([]string, error) {
	cutoff := float64(now.Add(lookahead).UnixMilli())

	ids, err := q.client.ZRangeByScore(ctx, delayedKey(q.name), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", cutoff),
		Count: batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: scan due delayed jobs for %s: %w", q.name, err)
	}

	promoted := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := q.promoteOne(ctx, id); err != nil {
			if errors.Is(err, ErrAlreadyPromoted) {
				continue
			}
			return promoted, err
		}
		promoted = append(promoted, id)
	}
	return promoted, nil
}

func (q *Queue) promoteOne(ctx context.Context, jobID string) error {
	removed, err := q.client.ZRem(ctx, delayedKey(q.name), jobID).Result()
	if err != nil {
		return fmt.Errorf("broker: promote %s: %w", jobID, err)
	}
	if removed == 0 {
		// Another promoter already moved it between the scan and this call.
		return ErrAlreadyPromoted
	}

	if err := q.updateJobState(ctx, jobID, func(j *domain.Job) {
		j.State = domain.JobStateWaiting
	}); err != nil {
		return err
	}

	if err := q.client.LPush(ctx, waitingKey(q.name), jobID).Err(); err != nil {
		return fmt.Errorf("broker: push promoted %s: %w", jobID, err)
	}
	return nil
}
