package runs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/runs"
	"github.com/northcloud/eventorch/internal/store"
)

func TestRollupStatusRunningWhilePending(t *testing.T) {
	got := runs.RollupStatus(store.RollupRow{Total: 3, PendingCount: 1, SuccessCount: 2})
	assert.Equal(t, domain.RunStatusRunning, got)
}

func TestRollupStatusPartialWhenAnyFailed(t *testing.T) {
	got := runs.RollupStatus(store.RollupRow{Total: 3, SuccessCount: 2, FailedCount: 1})
	assert.Equal(t, domain.RunStatusPartial, got)
}

func TestRollupStatusSuccessWhenAllSucceeded(t *testing.T) {
	got := runs.RollupStatus(store.RollupRow{Total: 3, SuccessCount: 3})
	assert.Equal(t, domain.RunStatusSuccess, got)
}

func TestRollupStatusIdempotentAcrossRepeatedCalls(t *testing.T) {
	agg := store.RollupRow{Total: 4, SuccessCount: 3, FailedCount: 1}
	first := runs.RollupStatus(agg)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, runs.RollupStatus(agg))
	}
}
