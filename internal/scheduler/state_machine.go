// Package scheduler implements the Schedule Promoter (C3): registration,
// reconciliation, and promotion of repeatable schedules, plus the Run
// status machine shared with the Run Recorder.
package scheduler

import (
	"fmt"

	"github.com/northcloud/eventorch/internal/domain"
)

// ValidateStateTransition checks one Run status transition against §4.4.3's
// state machine: queued -> running -> {success, partial, error}, with
// running also reachable back to partial/error on cancellation or fatal
// failure. Terminal states are absorbing.
func ValidateStateTransition(from, to domain.RunStatus) error {
	validTransitions := map[domain.RunStatus][]domain.RunStatus{
		domain.RunStatusQueued: {
			domain.RunStatusRunning,
			domain.RunStatusPartial, // removed/cancelled before a worker ever claimed it
			domain.RunStatusError,
		},
		domain.RunStatusRunning: {
			domain.RunStatusSuccess,
			domain.RunStatusPartial,
			domain.RunStatusError,
		},
		domain.RunStatusSuccess: {},
		domain.RunStatusPartial: {},
		domain.RunStatusError:   {},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("scheduler: unknown run status: %s", from)
	}

	for _, candidate := range allowed {
		if candidate == to {
			return nil
		}
	}
	return fmt.Errorf("scheduler: invalid run status transition from %s to %s", from, to)
}

// CanCancel reports whether a Run in status can still be meaningfully
// cancelled (it has not yet reached a terminal state).
func CanCancel(status domain.RunStatus) bool {
	return !status.IsTerminal()
}
