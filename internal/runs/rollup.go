package runs

import (
	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/store"
)

// RollupStatus is the pure decision half of §4.4.2's rollup protocol: given
// the child-state aggregate, what should the parent's status become. It is
// factored out of RollupParent so the rule is testable without a store.
func RollupStatus(agg store.RollupRow) domain.RunStatus {
	switch {
	case agg.PendingCount > 0:
		return domain.RunStatusRunning
	case agg.FailedCount > 0:
		return domain.RunStatusPartial
	default:
		return domain.RunStatusSuccess
	}
}
