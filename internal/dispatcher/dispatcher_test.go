package dispatcher_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northcloud/eventorch/internal/broker"
	"github.com/northcloud/eventorch/internal/dispatcher"
	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/logger"
	"github.com/northcloud/eventorch/internal/store"
)

type fakeScheduleLoader struct {
	byID map[string]*domain.Schedule
}

func (f *fakeScheduleLoader) Get(ctx context.Context, id string) (*domain.Schedule, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, store.ErrScheduleNotFound
	}
	return s, nil
}

type fakeSourceLoader struct {
	byID map[string]*domain.Source
}

func (f *fakeSourceLoader) Get(ctx context.Context, id string) (*domain.Source, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, store.ErrSourceNotFound
	}
	return s, nil
}

func newTestDispatcher(t *testing.T, schedules *fakeScheduleLoader, sources *fakeSourceLoader) *dispatcher.Dispatcher {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	scrapeQueue := broker.NewQueue(client, "scrape-queue")

	return dispatcher.New(dispatcher.Config{
		Schedules:   schedules,
		Sources:     sources,
		ScrapeQueue: scrapeQueue,
		Log:         logger.NewNop(),
	})
}

func TestHandleFiringSkipsDeletedSchedule(t *testing.T) {
	d := newTestDispatcher(t, &fakeScheduleLoader{byID: map[string]*domain.Schedule{}}, &fakeSourceLoader{})

	job := domain.Job{ID: "job1", Data: map[string]any{"scheduleId": "gone"}}
	require.NoError(t, d.HandleFiring(context.Background(), job))
}

func TestHandleFiringSkipsInactiveSchedule(t *testing.T) {
	sourceID := "src1"
	schedules := &fakeScheduleLoader{byID: map[string]*domain.Schedule{
		"s1": {ID: "s1", ScheduleType: domain.ScheduleTypeScrape, SourceID: &sourceID, Active: false},
	}}
	d := newTestDispatcher(t, schedules, &fakeSourceLoader{})

	job := domain.Job{ID: "job1", Data: map[string]any{"scheduleId": "s1"}}
	require.NoError(t, d.HandleFiring(context.Background(), job))
}

func TestHandleFiringSkipsInactiveSource(t *testing.T) {
	sourceID := "src1"
	schedules := &fakeScheduleLoader{byID: map[string]*domain.Schedule{
		"s1": {ID: "s1", ScheduleType: domain.ScheduleTypeScrape, SourceID: &sourceID, Active: true},
	}}
	sources := &fakeSourceLoader{byID: map[string]*domain.Source{
		"src1": {ID: "src1", Active: false},
	}}
	d := newTestDispatcher(t, schedules, sources)

	job := domain.Job{ID: "job1", Data: map[string]any{"scheduleId": "s1"}}
	require.NoError(t, d.HandleFiring(context.Background(), job))
}

func TestHandleFiringRejectsMissingScheduleID(t *testing.T) {
	d := newTestDispatcher(t, &fakeScheduleLoader{byID: map[string]*domain.Schedule{}}, &fakeSourceLoader{})

	job := domain.Job{ID: "job1", Data: map[string]any{}}
	require.Error(t, d.HandleFiring(context.Background(), job))
}
