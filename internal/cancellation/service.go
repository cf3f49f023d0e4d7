// Package cancellation implements the Cancellation Service (C5): the
// classification table in §4.5 that turns a set of job ids into per-id
// removal/flag actions against the broker, Runs, and the cancel-flag
// namespace.
package cancellation

import (
	"context"
	"errors"
	"fmt"

	"github.com/northcloud/eventorch/internal/broker"
	"github.com/northcloud/eventorch/internal/coordination"
	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/logger"
	"github.com/northcloud/eventorch/internal/runs"
	"github.com/redis/go-redis/v9"
)

// RunFinder is the subset of runs.Recorder the service depends on for the
// "not found in broker" and "active" branches.
type RunFinder interface {
	FindByJobID(ctx context.Context, jobID string) (*domain.Run, error)
	MarkCancelled(ctx context.Context, run domain.Run) error
	RequestCancellation(ctx context.Context, runID string) error
	RollupParent(ctx context.Context, parentID string) error
}

// Service cancels jobs on one broker queue. A deployment with several
// queues (schedule, scrape, instagram-scrape) constructs one Service per
// queue, since a job id only ever lives on the queue it was enqueued to.
type Service struct {
	queue      *broker.Queue
	flags      *coordination.CancelFlags
	runs       RunFinder
	lockClient *redis.Client
	log        logger.Logger
}

// New builds a Service bound to queue.
func New(queue *broker.Queue, flags *coordination.CancelFlags, runFinder RunFinder, lockClient *redis.Client, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{queue: queue, flags: flags, runs: runFinder, lockClient: lockClient, log: log}
}

func cancelLockKey(jobID string) string {
	return "eventorch:cancel-lock:" + jobID
}

// CancelJobs classifies and acts on each job id per §4.5's table. A
// per-job-id distributed lock serializes two concurrent cancelJobs calls
// racing on the same id so they cannot both decide "remove" independently.
func (s *Service) CancelJobs(ctx context.Context, jobIDs []string) []domain.CancelResult {
	results := make([]domain.CancelResult, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		results = append(results, s.cancelOne(ctx, jobID))
	}
	return results
}

func (s *Service) cancelOne(ctx context.Context, jobID string) domain.CancelResult {
	lock := coordination.NewDistributedLock(s.lockClient, cancelLockKey(jobID), coordination.DefaultLockConfig())
	if err := lock.Lock(ctx); err != nil {
		s.log.Error("cancellation: lock job", "jobId", jobID, "error", err.Error())
		return domain.CancelResult{JobID: jobID, State: domain.JobStateError, Action: domain.CancelActionMissing}
	}
	defer func() {
		if err := lock.Unlock(ctx); err != nil && !errors.Is(err, coordination.ErrLockNotHeld) {
			s.log.Error("cancellation: unlock job", "jobId", jobID, "error", err.Error())
		}
	}()

	job, err := s.queue.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, broker.ErrJobNotFound) {
			return s.cancelMissing(ctx, jobID)
		}
		s.log.Error("cancellation: load job", "jobId", jobID, "error", err.Error())
		return domain.CancelResult{JobID: jobID, State: domain.JobStateError, Action: domain.CancelActionMissing}
	}

	switch job.State {
	case domain.JobStateCompleted, domain.JobStateFailed:
		return s.cancelFinished(ctx, job)
	case domain.JobStateWaiting, domain.JobStateDelayed, domain.JobStatePaused:
		return s.cancelPending(ctx, job)
	case domain.JobStateActive:
		return s.cancelActive(ctx, job)
	default:
		return domain.CancelResult{JobID: jobID, State: job.State, Action: domain.CancelActionMissing}
	}
}

func (s *Service) cancelMissing(ctx context.Context, jobID string) domain.CancelResult {
	run, err := s.runs.FindByJobID(ctx, jobID)
	if err == nil {
		if markErr := s.runs.MarkCancelled(ctx, *run); markErr != nil {
			s.log.Error("cancellation: mark missing run cancelled", "runId", run.ID, "error", markErr.Error())
		} else if run.ParentRunID != nil {
			if rollErr := s.runs.RollupParent(ctx, *run.ParentRunID); rollErr != nil {
				s.log.Error("cancellation: rollup after missing job", "parentRunId", *run.ParentRunID, "error", rollErr.Error())
			}
		}
	}

	if flagErr := s.flags.Set(ctx, jobID, domain.CancelStateCancelled); flagErr != nil {
		s.log.Error("cancellation: set cancelled flag", "jobId", jobID, "error", flagErr.Error())
	}

	return domain.CancelResult{JobID: jobID, State: domain.JobStateMissing, Action: domain.CancelActionMissing}
}

func (s *Service) cancelFinished(ctx context.Context, job domain.Job) domain.CancelResult {
	if err := s.flags.Clear(ctx, job.ID); err != nil {
		s.log.Error("cancellation: clear flag on finished job", "jobId", job.ID, "error", err.Error())
	}
	return domain.CancelResult{JobID: job.ID, State: job.State, Action: domain.CancelActionAlreadyFinished}
}

func (s *Service) cancelPending(ctx context.Context, job domain.Job) domain.CancelResult {
	if err := s.queue.Remove(ctx, job.ID); err != nil {
		s.log.Error("cancellation: remove pending job", "jobId", job.ID, "error", err.Error())
		return domain.CancelResult{JobID: job.ID, State: job.State, Action: domain.CancelActionMissing}
	}
	if err := s.flags.Set(ctx, job.ID, domain.CancelStateCancelled); err != nil {
		s.log.Error("cancellation: set cancelled flag", "jobId", job.ID, "error", err.Error())
	}

	run, err := s.runs.FindByJobID(ctx, job.ID)
	if err == nil {
		if markErr := s.runs.MarkCancelled(ctx, *run); markErr != nil {
			s.log.Error("cancellation: mark pending run cancelled", "runId", run.ID, "error", markErr.Error())
		} else if run.ParentRunID != nil {
			if rollErr := s.runs.RollupParent(ctx, *run.ParentRunID); rollErr != nil {
				s.log.Error("cancellation: rollup after pending cancel", "parentRunId", *run.ParentRunID, "error", rollErr.Error())
			}
		}
	}

	return domain.CancelResult{JobID: job.ID, State: job.State, Action: domain.CancelActionRemoved}
}

func (s *Service) cancelActive(ctx context.Context, job domain.Job) domain.CancelResult {
	if err := s.flags.Set(ctx, job.ID, domain.CancelStateRequested); err != nil {
		s.log.Error("cancellation: set requested flag", "jobId", job.ID, "error", err.Error())
	}

	run, err := s.runs.FindByJobID(ctx, job.ID)
	if err == nil {
		if reqErr := s.runs.RequestCancellation(ctx, run.ID); reqErr != nil {
			s.log.Error("cancellation: patch cancelRequested", "runId", run.ID, "error", reqErr.Error())
		}
	} else {
		s.log.Error("cancellation: no run found for active job", "jobId", job.ID, "error", fmt.Sprintf("%v", err))
	}

	return domain.CancelResult{JobID: job.ID, State: job.State, Action: domain.CancelActionRequested}
}

var _ RunFinder = (*runs.Recorder)(nil)
