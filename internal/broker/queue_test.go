package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northcloud/eventorch/internal/broker"
	"github.com/northcloud/eventorch/internal/domain"
)

func newTestQueue(t *testing.T, name string) *broker.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return broker.NewQueue(client, name)
}

func TestEnqueueImmediateThenDequeue(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, "scrape-queue")

	enqueued, err := q.EnqueueImmediate(ctx, "", map[string]any{"runId": "r1"})
	require.NoError(t, err)
	require.Equal(t, domain.JobStateWaiting, enqueued.State)

	dequeued, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, enqueued.ID, dequeued.ID)
	require.Equal(t, domain.JobStateActive, dequeued.State)
	require.Equal(t, 1, dequeued.AttemptsMade)
}

func TestEnqueueDelayedNotPromotedBeforeDue(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, "schedule-queue")

	j, err := q.EnqueueDelayed(ctx, "job-1", map[string]any{}, time.Hour)
	require.NoError(t, err)
	require.Equal(t, domain.JobStateDelayed, j.State)

	promoted, err := q.PromoteDue(ctx, time.Now(), time.Second, 50)
	require.NoError(t, err)
	require.Empty(t, promoted)
}

func TestPromoteDuePromotesPastDueJobs(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, "schedule-queue")

	_, err := q.EnqueueDelayed(ctx, "job-1", map[string]any{}, -time.Minute)
	require.NoError(t, err)

	promoted, err := q.PromoteDue(ctx, time.Now(), time.Second, 50)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, promoted)

	job, err := q.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, domain.JobStateWaiting, job.State)

	// Idempotent: calling again finds nothing left to promote.
	promoted, err = q.PromoteDue(ctx, time.Now(), time.Second, 50)
	require.NoError(t, err)
	require.Empty(t, promoted)
}

func TestAckMovesJobToCompletedHistory(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, "scrape-queue")

	j, err := q.EnqueueImmediate(ctx, "", map[string]any{})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Ack(ctx, j.ID))

	job, err := q.GetJob(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, job.State)
	require.NotNil(t, job.FinishedOn)
}

func TestRemoveDeletesWaitingJob(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, "scrape-queue")

	j, err := q.EnqueueImmediate(ctx, "", map[string]any{})
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, j.ID))

	_, err = q.GetJob(ctx, j.ID)
	require.ErrorIs(t, err, broker.ErrJobNotFound)
}

func TestEnqueueRepeatableIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, "schedule-queue")

	key1, err := q.EnqueueRepeatable(ctx, "schedule:abc", "*/5 * * * *", "UTC")
	require.NoError(t, err)

	key2, err := q.EnqueueRepeatable(ctx, "schedule:abc", "*/5 * * * *", "UTC")
	require.NoError(t, err)
	require.Equal(t, key1, key2)

	bindings, err := q.ListRepeatable(ctx)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
}

func TestEnqueueRepeatableUpdatesOnPatternChange(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, "schedule-queue")

	_, err := q.EnqueueRepeatable(ctx, "schedule:abc", "*/5 * * * *", "UTC")
	require.NoError(t, err)

	_, err = q.EnqueueRepeatable(ctx, "schedule:abc", "*/10 * * * *", "UTC")
	require.NoError(t, err)

	bindings, err := q.ListRepeatable(ctx)
	require.NoError(t, err)
	require.Equal(t, "*/10 * * * *", bindings["schedule:abc"].Pattern)
}

func TestRemoveRepeatable(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, "schedule-queue")

	_, err := q.EnqueueRepeatable(ctx, "schedule:abc", "*/5 * * * *", "UTC")
	require.NoError(t, err)

	require.NoError(t, q.RemoveRepeatable(ctx, "schedule:abc"))

	bindings, err := q.ListRepeatable(ctx)
	require.NoError(t, err)
	require.Empty(t, bindings)
}
