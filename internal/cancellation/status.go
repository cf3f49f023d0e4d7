package cancellation

import (
	"context"
	"errors"

	"github.com/northcloud/eventorch/internal/broker"
	"github.com/northcloud/eventorch/internal/domain"
)

// GetJobStatuses implements the getJobStatuses operation from §6: one
// broker lookup plus one cancel-flag lookup per id.
func (s *Service) GetJobStatuses(ctx context.Context, jobIDs []string) []domain.JobStatus {
	statuses := make([]domain.JobStatus, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		statuses = append(statuses, s.jobStatus(ctx, jobID))
	}
	return statuses
}

func (s *Service) jobStatus(ctx context.Context, jobID string) domain.JobStatus {
	job, err := s.queue.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, broker.ErrJobNotFound) {
			return domain.JobStatus{JobID: jobID, State: domain.JobStateMissing}
		}
		s.log.Error("cancellation: load job status", "jobId", jobID, "error", err.Error())
		return domain.JobStatus{JobID: jobID, State: domain.JobStateError}
	}

	status := domain.JobStatus{
		JobID:        jobID,
		State:        job.State,
		AttemptsMade: job.AttemptsMade,
		FailedReason: job.FailedReason,
		ProcessedOn:  job.ProcessedOn,
		FinishedOn:   job.FinishedOn,
		Timestamp:    &job.Timestamp,
		Data:         job.Data,
	}

	if cancelState, ok, err := s.flags.Get(ctx, jobID); err == nil && ok {
		status.CancelState = &cancelState
	}

	return status
}
