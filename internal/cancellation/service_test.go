package cancellation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northcloud/eventorch/internal/broker"
	"github.com/northcloud/eventorch/internal/cancellation"
	"github.com/northcloud/eventorch/internal/coordination"
	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/logger"
)

var errRunNotFound = errors.New("fake: run not found")

type fakeRunFinder struct {
	byJobID         map[string]domain.Run
	cancelledRuns   []string
	requestedRuns   []string
	rolledUpParents []string
}

func newFakeRunFinder() *fakeRunFinder {
	return &fakeRunFinder{byJobID: map[string]domain.Run{}}
}

func (f *fakeRunFinder) FindByJobID(ctx context.Context, jobID string) (*domain.Run, error) {
	run, ok := f.byJobID[jobID]
	if !ok {
		return nil, errRunNotFound
	}
	return &run, nil
}

func (f *fakeRunFinder) MarkCancelled(ctx context.Context, run domain.Run) error {
	f.cancelledRuns = append(f.cancelledRuns, run.ID)
	return nil
}

func (f *fakeRunFinder) RequestCancellation(ctx context.Context, runID string) error {
	f.requestedRuns = append(f.requestedRuns, runID)
	return nil
}

func (f *fakeRunFinder) RollupParent(ctx context.Context, parentID string) error {
	f.rolledUpParents = append(f.rolledUpParents, parentID)
	return nil
}

func newTestService(t *testing.T, runFinder *fakeRunFinder) (*cancellation.Service, *broker.Queue, *coordination.CancelFlags, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	queue := broker.NewQueue(client, "scrape-queue")
	flags := coordination.NewCancelFlags(client)
	svc := cancellation.New(queue, flags, runFinder, client, logger.NewNop())
	return svc, queue, flags, client
}

func TestCancelJobsMissingJobMarksRunCancelled(t *testing.T) {
	ctx := context.Background()
	finder := newFakeRunFinder()
	parentID := "parent1"
	finder.byJobID["ghost-job"] = domain.Run{ID: "run1", ParentRunID: &parentID}

	svc, _, flags, _ := newTestService(t, finder)

	results := svc.CancelJobs(ctx, []string{"ghost-job"})
	require.Len(t, results, 1)
	assert.Equal(t, domain.CancelActionMissing, results[0].Action)
	assert.Equal(t, domain.JobStateMissing, results[0].State)
	assert.Contains(t, finder.cancelledRuns, "run1")
	assert.Contains(t, finder.rolledUpParents, parentID)

	state, ok, err := flags.Get(ctx, "ghost-job")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.CancelStateCancelled, state)
}

func TestCancelJobsCompletedClearsFlag(t *testing.T) {
	ctx := context.Background()
	finder := newFakeRunFinder()
	svc, queue, flags, _ := newTestService(t, finder)

	job, err := queue.EnqueueImmediate(ctx, "", map[string]any{})
	require.NoError(t, err)
	_, err = queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, queue.Ack(ctx, job.ID))
	require.NoError(t, flags.Set(ctx, job.ID, domain.CancelStateRequested))

	results := svc.CancelJobs(ctx, []string{job.ID})
	require.Len(t, results, 1)
	assert.Equal(t, domain.CancelActionAlreadyFinished, results[0].Action)

	_, ok, err := flags.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelJobsWaitingRemovesFromBroker(t *testing.T) {
	ctx := context.Background()
	finder := newFakeRunFinder()
	svc, queue, _, _ := newTestService(t, finder)

	job, err := queue.EnqueueImmediate(ctx, "", map[string]any{})
	require.NoError(t, err)
	finder.byJobID[job.ID] = domain.Run{ID: "run2"}

	results := svc.CancelJobs(ctx, []string{job.ID})
	require.Len(t, results, 1)
	assert.Equal(t, domain.CancelActionRemoved, results[0].Action)
	assert.Contains(t, finder.cancelledRuns, "run2")

	_, err = queue.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, broker.ErrJobNotFound)
}

func TestCancelJobsActiveSetsRequestedFlag(t *testing.T) {
	ctx := context.Background()
	finder := newFakeRunFinder()
	svc, queue, flags, _ := newTestService(t, finder)

	job, err := queue.EnqueueImmediate(ctx, "", map[string]any{})
	require.NoError(t, err)
	_, err = queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	finder.byJobID[job.ID] = domain.Run{ID: "run3"}

	results := svc.CancelJobs(ctx, []string{job.ID})
	require.Len(t, results, 1)
	assert.Equal(t, domain.CancelActionRequested, results[0].Action)
	assert.Contains(t, finder.requestedRuns, "run3")

	state, ok, err := flags.Get(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.CancelStateRequested, state)
}

func TestGetJobStatusesReportsMissingAndKnown(t *testing.T) {
	ctx := context.Background()
	finder := newFakeRunFinder()
	svc, queue, _, _ := newTestService(t, finder)

	job, err := queue.EnqueueImmediate(ctx, "", map[string]any{"foo": "bar"})
	require.NoError(t, err)

	statuses := svc.GetJobStatuses(ctx, []string{job.ID, "unknown-job"})
	require.Len(t, statuses, 2)
	assert.Equal(t, domain.JobStateWaiting, statuses[0].State)
	assert.Equal(t, domain.JobStateMissing, statuses[1].State)
}
