package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northcloud/eventorch/internal/api"
	"github.com/northcloud/eventorch/internal/broker"
	"github.com/northcloud/eventorch/internal/cancellation"
	"github.com/northcloud/eventorch/internal/coordination"
	"github.com/northcloud/eventorch/internal/dispatcher"
	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/logger"
)

type emptyAccountLister struct{}

func (emptyAccountLister) ListActive(ctx context.Context) ([]domain.InstagramAccount, error) {
	return nil, nil
}

var errNoRun = errors.New("api_test: no run for job id")

type noopRunFinder struct{}

func (noopRunFinder) FindByJobID(ctx context.Context, jobID string) (*domain.Run, error) {
	return nil, errNoRun
}
func (noopRunFinder) MarkCancelled(ctx context.Context, run domain.Run) error     { return nil }
func (noopRunFinder) RequestCancellation(ctx context.Context, runID string) error { return nil }
func (noopRunFinder) RollupParent(ctx context.Context, parentID string) error     { return nil }

func newTestRouter(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	scrapeQueue := broker.NewQueue(client, "scrape-queue")
	instagramQueue := broker.NewQueue(client, "instagram-scrape-queue")
	flags := coordination.NewCancelFlags(client)

	instagramCoordinator := dispatcher.NewInstagramCoordinator(emptyAccountLister{}, instagramQueue, nil, logger.NewNop())

	cancelServices := map[string]*cancellation.Service{
		"scrape-queue": cancellation.New(scrapeQueue, flags, noopRunFinder{}, client, logger.NewNop()),
	}

	h := api.NewHandler(nil, instagramCoordinator, cancelServices, logger.NewNop())
	router := api.NewRouter(h, logger.NewNop())
	return httptest.NewServer(router)
}

func TestTriggerScheduleNowRejectsMissingBody(t *testing.T) {
	srv := newTestRouter(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/schedules/trigger-now", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTriggerAllActiveInstagramScrapesReturnsConflictWhenNoAccounts(t *testing.T) {
	srv := newTestRouter(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/instagram/trigger-all", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestJobStatusesRejectsUnknownQueue(t *testing.T) {
	srv := newTestRouter(t)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"queue": "no-such-queue", "jobIds": []string{"j1"}})
	resp, err := http.Post(srv.URL+"/api/v1/jobs/statuses", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelJobsOnKnownQueueReturnsOK(t *testing.T) {
	srv := newTestRouter(t)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"queue": "scrape-queue", "jobIds": []string{"unknown-job"}})
	resp, err := http.Post(srv.URL+"/api/v1/jobs/cancel", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
