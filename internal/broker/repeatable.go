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

type repeatableRecord struct {
	Pattern     string     `json:"pattern"`
	Timezone    string     `json:"timezone"`
	RepeatKey   string     `json:"repeatKey"`
	LastFiredAt *time.Time `json:"lastFiredAt,omitempty"`
}

// EnqueueRepeatable registers a repeatable job definition, keyed by jobID,
// per §4.3.1. Re-registering the same jobID with the same pattern/timezone
// is a no-op that returns the existing repeat_key (§5 idempotency
// guarantee); a changed pattern/timezone overwrites the binding in place.
func (q *Queue) EnqueueRepeatable(ctx context.Context, jobID, pattern, timezone string) (string, error) {
	existing, err := q.getRepeatable(ctx, jobID)
	if err == nil && existing.Pattern == pattern && existing.Timezone == timezone {
		return existing.RepeatKey, nil
	}
	if err != nil && !errors.Is(err, ErrJobNotFound) {
		return "", err
	}

	rec := repeatableRecord{
		Pattern:   pattern,
		Timezone:  timezone,
		RepeatKey: "repeat:" + jobID,
	}
	if err := q.saveRepeatable(ctx, jobID, rec); err != nil {
		return "", err
	}
	return rec.RepeatKey, nil
}

// RemoveRepeatable unregisters a repeatable job definition by jobID.
func (q *Queue) RemoveRepeatable(ctx context.Context, jobID string) error {
	if err := q.client.HDel(ctx, repeatableKey(q.name), jobID).Err(); err != nil {
		return fmt.Errorf("broker: remove repeatable %s: %w", jobID, err)
	}
	return nil
}

// ListRepeatable returns every registered repeatable binding for this
// queue, used by the reconciliation loop (§4.3.2).
func (q *Queue) ListRepeatable(ctx context.Context) (map[string]domain.RepeatableBinding, error) {
	raw, err := q.client.HGetAll(ctx, repeatableKey(q.name)).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: list repeatable for %s: %w", q.name, err)
	}

	out := make(map[string]domain.RepeatableBinding, len(raw))
	for jobID, payload := range raw {
		var rec repeatableRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("broker: unmarshal repeatable %s: %w", jobID, err)
		}
		out[jobID] = domain.RepeatableBinding{
			JobID:       jobID,
			Pattern:     rec.Pattern,
			Timezone:    rec.Timezone,
			RepeatKey:   rec.RepeatKey,
			LastFiredAt: rec.LastFiredAt,
		}
	}
	return out, nil
}

// MarkFired stamps the last-fired timestamp on a repeatable binding, called
// each time its next delayed job is scheduled.
func (q *Queue) MarkFired(ctx context.Context, jobID string, at time.Time) error {
	rec, err := q.getRepeatable(ctx, jobID)
	if err != nil {
		return err
	}
	rec.LastFiredAt = &at
	return q.saveRepeatable(ctx, jobID, rec)
}

func (q *Queue) getRepeatable(ctx context.Context, jobID string) (repeatableRecord, error) {
	payload, err := q.client.HGet(ctx, repeatableKey(q.name), jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return repeatableRecord{}, ErrJobNotFound
		}
		return repeatableRecord{}, fmt.Errorf("broker: get repeatable %s: %w", jobID, err)
	}
	var rec repeatableRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return repeatableRecord{}, fmt.Errorf("broker: unmarshal repeatable %s: %w", jobID, err)
	}
	return rec, nil
}

func (q *Queue) saveRepeatable(ctx context.Context, jobID string, rec repeatableRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("broker: marshal repeatable %s: %w", jobID, err)
	}
	if err := q.client.HSet(ctx, repeatableKey(q.name), jobID, payload).Err(); err != nil {
		return fmt.Errorf("broker: save repeatable %s: %w", jobID, err)
	}
	return nil
}
