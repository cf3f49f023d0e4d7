package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/northcloud/eventorch/internal/broker"
	"github.com/northcloud/eventorch/internal/collaborators"
	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/logger"
	"github.com/northcloud/eventorch/internal/runs"
)

// ErrNoActiveInstagramAccounts is returned when a fan-out is triggered with
// zero active accounts to scrape, per §7's user-visible failure kinds.
var ErrNoActiveInstagramAccounts = errors.New("dispatcher: no active instagram accounts")

// AccountLister is the subset of store.InstagramAccountRepository the
// coordinator depends on.
type AccountLister interface {
	ListActive(ctx context.Context) ([]domain.InstagramAccount, error)
}

// InstagramCoordinator is the Instagram Batch Coordinator (§4.4.1): it
// fans one trigger out into one parent Run plus one child Run and one
// broker job per active account.
type InstagramCoordinator struct {
	accounts AccountLister
	queue    *broker.Queue
	recorder *runs.Recorder
	log      logger.Logger
}

// NewInstagramCoordinator builds an InstagramCoordinator bound to the
// instagram-scrape-queue.
func NewInstagramCoordinator(accounts AccountLister, instagramQueue *broker.Queue, recorder *runs.Recorder, log logger.Logger) *InstagramCoordinator {
	if log == nil {
		log = logger.NewNop()
	}
	return &InstagramCoordinator{accounts: accounts, queue: instagramQueue, recorder: recorder, log: log}
}

// ChildResult summarizes one fanned-out child job, per §6's
// triggerAllActiveInstagramScrapes return shape.
type ChildResult struct {
	AccountID string `json:"accountId"`
	Username  string `json:"username"`
	JobID     string `json:"jobId"`
	RunID     string `json:"runId"`
}

// BatchResult is the return shape of triggerAllActiveInstagramScrapes.
type BatchResult struct {
	ParentRunID string        `json:"parentRunId"`
	Children    []ChildResult `json:"children"`
}

// TriggerBatch runs the exact ordered sequence from §4.4.1: insert the
// parent, insert every child with its queue position, enqueue one broker
// job per child, attach each returned job id, then roll the parent up so
// its metadata.batch reflects the fan-out width immediately.
func (c *InstagramCoordinator) TriggerBatch(ctx context.Context, options map[string]any) (*BatchResult, error) {
	accounts, err := c.accounts.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoActiveInstagramAccounts
	}

	parentMeta := domain.JSONBMap{
		"type":          "instagram_batch",
		"accountsTotal": len(accounts),
		"options":       options,
	}
	parent, err := c.recorder.CreateParentRun(ctx, nil, parentMeta)
	if err != nil {
		return nil, err
	}

	postLimit := intFromConfig(options, "postLimit", 0)
	result := &BatchResult{ParentRunID: parent.ID, Children: make([]ChildResult, 0, len(accounts))}

	for i, account := range accounts {
		childMeta := domain.JSONBMap{
			"queuePosition":      i + 1,
			"instagramAccountId": account.ID,
			"instagramUsername":  account.Username,
		}
		child, err := c.recorder.CreateChildRun(ctx, parent.ID, nil, childMeta)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: create child run for account %s: %w", account.ID, err)
		}

		payload := collaborators.InstagramJobPayload{
			AccountID:   account.ID,
			PostLimit:   postLimit,
			RunID:       child.ID,
			ParentRunID: parent.ID,
		}
		data, err := toJobData(payload)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: encode instagram payload: %w", err)
		}

		job, err := c.queue.EnqueueImmediate(ctx, "", data)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: enqueue instagram job for account %s: %w", account.ID, err)
		}

		if err := c.recorder.AttachJobID(ctx, child.ID, job.ID); err != nil {
			return nil, err
		}

		result.Children = append(result.Children, ChildResult{
			AccountID: account.ID,
			Username:  account.Username,
			JobID:     job.ID,
			RunID:     child.ID,
		})
	}

	if err := c.recorder.RollupParent(ctx, parent.ID); err != nil {
		return nil, err
	}

	return result, nil
}
