package coordination_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northcloud/eventorch/internal/coordination"
	"github.com/northcloud/eventorch/internal/domain"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCancelFlagsRoundTrip(t *testing.T) {
	ctx := context.Background()
	flags := coordination.NewCancelFlags(newTestClient(t))

	_, found, err := flags.Get(ctx, "job-1")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, flags.Set(ctx, "job-1", domain.CancelStateRequested))

	state, found, err := flags.Get(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.CancelStateRequested, state)

	require.NoError(t, flags.Clear(ctx, "job-1"))
	_, found, err = flags.Get(ctx, "job-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDistributedLockMutualExclusion(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	lockA := coordination.NewDistributedLock(client, "job:1", coordination.DefaultLockConfig())
	lockB := coordination.NewDistributedLock(client, "job:1", coordination.DefaultLockConfig())

	acquired, err := lockA.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = lockB.TryLock(ctx)
	require.NoError(t, err)
	require.False(t, acquired)

	require.NoError(t, lockA.Unlock(ctx))

	acquired, err = lockB.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)
}
