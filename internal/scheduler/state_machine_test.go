package scheduler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/scheduler"
)

func TestValidateStateTransitionAllowed(t *testing.T) {
	cases := []struct{ from, to domain.RunStatus }{
		{domain.RunStatusQueued, domain.RunStatusRunning},
		{domain.RunStatusQueued, domain.RunStatusPartial},
		{domain.RunStatusRunning, domain.RunStatusSuccess},
		{domain.RunStatusRunning, domain.RunStatusPartial},
		{domain.RunStatusRunning, domain.RunStatusError},
	}
	for _, c := range cases {
		assert.NoError(t, scheduler.ValidateStateTransition(c.from, c.to))
	}
}

func TestValidateStateTransitionRejectsTerminalMoves(t *testing.T) {
	cases := []struct{ from, to domain.RunStatus }{
		{domain.RunStatusSuccess, domain.RunStatusRunning},
		{domain.RunStatusPartial, domain.RunStatusSuccess},
		{domain.RunStatusError, domain.RunStatusQueued},
		{domain.RunStatusQueued, domain.RunStatusSuccess},
	}
	for _, c := range cases {
		assert.Error(t, scheduler.ValidateStateTransition(c.from, c.to))
	}
}

func TestCanCancel(t *testing.T) {
	assert.True(t, scheduler.CanCancel(domain.RunStatusQueued))
	assert.True(t, scheduler.CanCancel(domain.RunStatusRunning))
	assert.False(t, scheduler.CanCancel(domain.RunStatusSuccess))
	assert.False(t, scheduler.CanCancel(domain.RunStatusPartial))
	assert.False(t, scheduler.CanCancel(domain.RunStatusError))
}
