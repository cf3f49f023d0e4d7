package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northcloud/eventorch/internal/domain"
)

// jobRecord is the wire shape persisted in each job's Redis hash.
type jobRecord struct {
	ID           string         `json:"id"`
	Queue        string         `json:"queue"`
	Data         map[string]any `json:"data"`
	State        string         `json:"state"`
	AttemptsMade int            `json:"attemptsMade"`
	FailedReason string         `json:"failedReason,omitempty"`
	ProcessedOn  *time.Time     `json:"processedOn,omitempty"`
	FinishedOn   *time.Time     `json:"finishedOn,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	DelayMillis  int64          `json:"delayMillis"`
}

func toRecord(j domain.Job) jobRecord {
	return jobRecord{
		ID:           j.ID,
		Queue:        j.Queue,
		Data:         j.Data,
		State:        string(j.State),
		AttemptsMade: j.AttemptsMade,
		FailedReason: j.FailedReason,
		ProcessedOn:  j.ProcessedOn,
		FinishedOn:   j.FinishedOn,
		Timestamp:    j.Timestamp,
		DelayMillis:  j.Delay.Milliseconds(),
	}
}

func (r jobRecord) toDomain() domain.Job {
	return domain.Job{
		ID:           r.ID,
		Queue:        r.Queue,
		Data:         r.Data,
		State:        domain.JobState(r.State),
		AttemptsMade: r.AttemptsMade,
		FailedReason: r.FailedReason,
		ProcessedOn:  r.ProcessedOn,
		FinishedOn:   r.FinishedOn,
		Timestamp:    r.Timestamp,
		Delay:        time.Duration(r.DelayMillis) * time.Millisecond,
	}
}

func (q *Queue) saveJob(ctx context.Context, j domain.Job) error {
	rec := toRecord(j)
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("broker: marshal job %s: %w", j.ID, err)
	}
	if err := q.client.Set(ctx, jobKey(q.name, j.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("broker: save job %s: %w", j.ID, err)
	}
	return nil
}

func (q *Queue) loadJob(ctx context.Context, jobID string) (domain.Job, error) {
	payload, err := q.client.Get(ctx, jobKey(q.name, jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Job{}, ErrJobNotFound
		}
		return domain.Job{}, fmt.Errorf("broker: load job %s: %w", jobID, err)
	}

	var rec jobRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return domain.Job{}, fmt.Errorf("broker: unmarshal job %s: %w", jobID, err)
	}
	return rec.toDomain(), nil
}

func (q *Queue) updateJobState(ctx context.Context, jobID string, mutate func(*domain.Job)) error {
	j, err := q.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	mutate(&j)
	return q.saveJob(ctx, j)
}
