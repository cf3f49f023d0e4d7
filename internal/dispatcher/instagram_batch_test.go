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
	"github.com/northcloud/eventorch/internal/runs"
)

type fakeAccountLister struct {
	accounts []domain.InstagramAccount
}

func (f *fakeAccountLister) ListActive(ctx context.Context) ([]domain.InstagramAccount, error) {
	return f.accounts, nil
}

func TestTriggerBatchReturnsErrWhenNoActiveAccounts(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	queue := broker.NewQueue(client, "instagram-scrape-queue")
	recorder := runs.NewRecorder(nil, logger.NewNop())
	coordinator := dispatcher.NewInstagramCoordinator(&fakeAccountLister{}, queue, recorder, logger.NewNop())

	_, err := coordinator.TriggerBatch(ctx, nil)
	require.ErrorIs(t, err, dispatcher.ErrNoActiveInstagramAccounts)
}
