package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rafaelq/code-review-back/internal/domain"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrInvalidID = errors.New("invalid job id format")
)

// JobUpdate is an atomic partial update: only non-nil fields are
// written, in a single store operation.
type JobUpdate struct {
	Status       *domain.JobStatus
	ReviewReport *domain.ReviewReport
	ErrorMessage *string
	Attempts     *int
	CompletedAt  *time.Time
}

// JobsRepository abstracts job persistence. Implementations guarantee
// that UpdateJobFields applies all requested fields atomically for a
// single job document.
type JobsRepository interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	UpdateJobFields(ctx context.Context, jobID string, update JobUpdate) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
}

func validateJobID(jobID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return ErrInvalidID
	}
	return nil
}

// MemoryJobsRepository stores jobs in memory for local development and
// tests.
type MemoryJobsRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

func NewMemoryJobsRepository() *MemoryJobsRepository {
	return &MemoryJobsRepository{
		jobs: make(map[string]*domain.Job),
	}
}

func (r *MemoryJobsRepository) CreateJob(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryJobsRepository) UpdateJobFields(_ context.Context, jobID string, update JobUpdate) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}

	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.ReviewReport != nil {
		report := *update.ReviewReport
		job.ReviewReport = &report
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	if update.Attempts != nil {
		job.Attempts = *update.Attempts
	}
	if update.CompletedAt != nil {
		completedAt := *update.CompletedAt
		job.CompletedAt = &completedAt
	}
	return nil
}

func (r *MemoryJobsRepository) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func cloneJob(job *domain.Job) *domain.Job {
	if job == nil {
		return nil
	}
	clone := *job
	if job.ReviewReport != nil {
		report := *job.ReviewReport
		clone.ReviewReport = &report
	}
	if job.CompletedAt != nil {
		completedAt := *job.CompletedAt
		clone.CompletedAt = &completedAt
	}
	return &clone
}
