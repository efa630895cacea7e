package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rafaelq/code-review-back/internal/domain"
)

func newPendingJob() *domain.Job {
	return &domain.Job{
		ID:          uuid.NewString(),
		CodeContent: "print('x')",
		Filename:    "a.py",
		Status:      domain.JobStatusPending,
		SubmittedAt: time.Now().UTC(),
	}
}

func TestMemoryRepositoryCreateAndGet(t *testing.T) {
	repo := NewMemoryJobsRepository()
	job := newPendingJob()

	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := repo.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.CodeContent != job.CodeContent || loaded.Status != domain.JobStatusPending {
		t.Fatalf("unexpected job %+v", loaded)
	}
}

func TestMemoryRepositoryGetRejectsMalformedID(t *testing.T) {
	repo := NewMemoryJobsRepository()

	_, err := repo.GetJob(context.Background(), "not-a-valid-id")
	if !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestMemoryRepositoryGetUnknownID(t *testing.T) {
	repo := NewMemoryJobsRepository()

	_, err := repo.GetJob(context.Background(), uuid.NewString())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryPartialUpdate(t *testing.T) {
	repo := NewMemoryJobsRepository()
	job := newPendingJob()
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}

	processing := domain.JobStatusProcessing
	if err := repo.UpdateJobFields(context.Background(), job.ID, JobUpdate{Status: &processing}); err != nil {
		t.Fatalf("update: %v", err)
	}

	loaded, err := repo.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != domain.JobStatusProcessing {
		t.Fatalf("status not updated: %s", loaded.Status)
	}
	if loaded.CodeContent != job.CodeContent {
		t.Fatalf("untouched field changed")
	}
	if loaded.ReviewReport != nil || loaded.CompletedAt != nil {
		t.Fatalf("fields set without being requested")
	}
}

func TestMemoryRepositoryTerminalUpdate(t *testing.T) {
	repo := NewMemoryJobsRepository()
	job := newPendingJob()
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}

	completed := domain.JobStatusCompleted
	report := domain.ReviewReport{
		HasError:       false,
		StatusEmoji:    "✅",
		Title:          "OK",
		Issues:         []string{},
		Suggestions:    []string{},
		ReviewMarkdown: "Fine.",
		CorrectedCode:  "print('x')",
	}
	completedAt := time.Now().UTC()
	err := repo.UpdateJobFields(context.Background(), job.ID, JobUpdate{
		Status:       &completed,
		ReviewReport: &report,
		CompletedAt:  &completedAt,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	loaded, err := repo.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != domain.JobStatusCompleted {
		t.Fatalf("unexpected status %s", loaded.Status)
	}
	if loaded.ReviewReport == nil || loaded.ReviewReport.Title != "OK" {
		t.Fatalf("report not persisted: %+v", loaded.ReviewReport)
	}
	if loaded.CompletedAt == nil {
		t.Fatalf("completed_at not stamped")
	}
}

func TestMemoryRepositoryUpdateUnknownID(t *testing.T) {
	repo := NewMemoryJobsRepository()

	failed := domain.JobStatusFailed
	err := repo.UpdateJobFields(context.Background(), uuid.NewString(), JobUpdate{Status: &failed})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryGetReturnsCopy(t *testing.T) {
	repo := NewMemoryJobsRepository()
	job := newPendingJob()
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, _ := repo.GetJob(context.Background(), job.ID)
	loaded.Status = domain.JobStatusFailed

	again, _ := repo.GetJob(context.Background(), job.ID)
	if again.Status != domain.JobStatusPending {
		t.Fatalf("mutating a loaded job leaked into the store")
	}
}
