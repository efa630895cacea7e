package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rafaelq/code-review-back/internal/domain"
	"github.com/rafaelq/code-review-back/internal/queue"
	"github.com/rafaelq/code-review-back/internal/repository"
)

// ErrEmptyCode rejects submissions with no reviewable content.
var ErrEmptyCode = errors.New("code submission is empty")

const defaultFilename = "code_snippet"

// JobsService owns the client-facing half of the job lifecycle:
// creating PENDING jobs and answering status polls. The worker owns
// every transition after that.
type JobsService struct {
	repo     repository.JobsRepository
	producer queue.Producer
}

func NewJobsService(repo repository.JobsRepository, producer queue.Producer) *JobsService {
	return &JobsService{repo: repo, producer: producer}
}

// Submit persists a PENDING job and enqueues a reference to it. It
// returns as soon as both writes land; model latency never blocks the
// submitting request.
func (s *JobsService) Submit(ctx context.Context, code, filename string) (*domain.Job, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = defaultFilename
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:          uuid.NewString(),
		CodeContent: code,
		Filename:    filename,
		Status:      domain.JobStatusPending,
		Attempts:    0,
		SubmittedAt: now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	message := domain.QueueMessage{
		JobID:       job.ID,
		Filename:    job.Filename,
		Attempt:     0,
		RequestedAt: now,
	}

	if err := s.producer.Enqueue(ctx, message); err != nil {
		failed := domain.JobStatusFailed
		errorMessage := err.Error()
		completedAt := time.Now().UTC()
		_ = s.repo.UpdateJobFields(ctx, job.ID, repository.JobUpdate{
			Status:       &failed,
			ErrorMessage: &errorMessage,
			CompletedAt:  &completedAt,
		})
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// Status returns the job record without its code content.
func (s *JobsService) Status(ctx context.Context, jobID string) (domain.JobView, error) {
	job, err := s.repo.GetJob(ctx, strings.TrimSpace(jobID))
	if err != nil {
		return domain.JobView{}, err
	}
	return job.View(), nil
}
