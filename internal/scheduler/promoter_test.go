package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northcloud/eventorch/internal/broker"
	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/logger"
	"github.com/northcloud/eventorch/internal/scheduler"
	"github.com/northcloud/eventorch/internal/store"
)

type fakeScheduleStore struct {
	byID map[string]*domain.Schedule
}

func newFakeScheduleStore(schedules ...domain.Schedule) *fakeScheduleStore {
	s := &fakeScheduleStore{byID: map[string]*domain.Schedule{}}
	for i := range schedules {
		sched := schedules[i]
		s.byID[sched.ID] = &sched
	}
	return s
}

func (f *fakeScheduleStore) ListAll(ctx context.Context) ([]domain.Schedule, error) {
	out := make([]domain.Schedule, 0, len(f.byID))
	for _, s := range f.byID {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeScheduleStore) Get(ctx context.Context, id string) (*domain.Schedule, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, store.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeScheduleStore) SetRepeatKey(ctx context.Context, id string, repeatKey *string) error {
	s, ok := f.byID[id]
	if !ok {
		return store.ErrScheduleNotFound
	}
	s.RepeatKey = repeatKey
	return nil
}

func newTestPromoter(t *testing.T, schedules *fakeScheduleStore) (*scheduler.Promoter, *broker.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := broker.NewQueue(client, "schedule-queue")
	return scheduler.NewPromoter(schedules, q, logger.NewNop()), q
}

func activeScrapeSchedule(id, sourceID string) domain.Schedule {
	return domain.Schedule{
		ID:           id,
		ScheduleType: domain.ScheduleTypeScrape,
		SourceID:     &sourceID,
		Cron:         "*/5 * * * *",
		Timezone:     "UTC",
		Active:       true,
	}
}

func TestSyncRegistersActiveSchedule(t *testing.T) {
	ctx := context.Background()
	schedules := newFakeScheduleStore(activeScrapeSchedule("s1", "src1"))
	p, q := newTestPromoter(t, schedules)

	require.NoError(t, p.Sync(ctx))

	bindings, err := q.ListRepeatable(ctx)
	require.NoError(t, err)
	require.Contains(t, bindings, "schedule:s1")

	got, err := schedules.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got.RepeatKey)
}

func TestSyncUnregistersInactiveSchedule(t *testing.T) {
	ctx := context.Background()
	s := activeScrapeSchedule("s1", "src1")
	schedules := newFakeScheduleStore(s)
	p, q := newTestPromoter(t, schedules)
	require.NoError(t, p.Sync(ctx))

	inactive := s
	inactive.Active = false
	schedules.byID["s1"] = &inactive

	require.NoError(t, p.Sync(ctx))

	bindings, err := q.ListRepeatable(ctx)
	require.NoError(t, err)
	require.NotContains(t, bindings, "schedule:s1")

	got, err := schedules.Get(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got.RepeatKey)
}

func TestSyncRemovesOrphanBindings(t *testing.T) {
	ctx := context.Background()
	schedules := newFakeScheduleStore()
	p, q := newTestPromoter(t, schedules)

	_, err := q.EnqueueRepeatable(ctx, "schedule:deadbeef", "* * * * *", "UTC")
	require.NoError(t, err)

	require.NoError(t, p.Sync(ctx))

	bindings, err := q.ListRepeatable(ctx)
	require.NoError(t, err)
	require.Empty(t, bindings)
}

func TestSyncReRegistersOnCronChange(t *testing.T) {
	ctx := context.Background()
	s := activeScrapeSchedule("s1", "src1")
	schedules := newFakeScheduleStore(s)
	p, q := newTestPromoter(t, schedules)
	require.NoError(t, p.Sync(ctx))

	changed := s
	changed.Cron = "0 * * * *"
	schedules.byID["s1"] = &changed

	require.NoError(t, p.Sync(ctx))

	bindings, err := q.ListRepeatable(ctx)
	require.NoError(t, err)
	require.Equal(t, "0 * * * *", bindings["schedule:s1"].Pattern)
}

func TestPromoteDueReschedulesNextFiring(t *testing.T) {
	ctx := context.Background()
	schedules := newFakeScheduleStore(activeScrapeSchedule("s1", "src1"))
	p, q := newTestPromoter(t, schedules)
	require.NoError(t, p.Sync(ctx))

	bindings, err := q.ListRepeatable(ctx)
	require.NoError(t, err)
	require.NotNil(t, bindings["schedule:s1"].LastFiredAt)
	firstFire := *bindings["schedule:s1"].LastFiredAt

	promoted, err := p.PromoteDue(ctx, 10*time.Minute, 50)
	require.NoError(t, err)
	require.Len(t, promoted, 1)

	bindings, err = q.ListRepeatable(ctx)
	require.NoError(t, err)
	require.True(t, bindings["schedule:s1"].LastFiredAt.After(firstFire))
}
