package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rafaelq/code-review-back/internal/domain"
	"github.com/rafaelq/code-review-back/internal/repository"
)

type recordingProducer struct {
	messages []domain.QueueMessage
	err      error
}

func (p *recordingProducer) Enqueue(_ context.Context, message domain.QueueMessage) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message)
	return nil
}

func TestSubmitCreatesPendingJobAndEnqueues(t *testing.T) {
	repo := repository.NewMemoryJobsRepository()
	producer := &recordingProducer{}
	svc := NewJobsService(repo, producer)

	job, err := svc.Submit(context.Background(), "print('x')", "a.py")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.ID == "" {
		t.Fatalf("job id not assigned")
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("expected PENDING, got %s", job.Status)
	}

	if len(producer.messages) != 1 {
		t.Fatalf("expected one enqueued message, got %d", len(producer.messages))
	}
	if producer.messages[0].JobID != job.ID {
		t.Fatalf("message references wrong job")
	}

	stored, err := repo.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("stored job lookup: %v", err)
	}
	if stored.CodeContent != "print('x')" {
		t.Fatalf("code content not persisted")
	}
}

func TestSubmitRejectsEmptyCode(t *testing.T) {
	repo := repository.NewMemoryJobsRepository()
	producer := &recordingProducer{}
	svc := NewJobsService(repo, producer)

	for _, code := range []string{"", "   ", "\n\t  \n"} {
		_, err := svc.Submit(context.Background(), code, "a.py")
		if !errors.Is(err, ErrEmptyCode) {
			t.Fatalf("expected ErrEmptyCode for %q, got %v", code, err)
		}
	}
	if len(producer.messages) != 0 {
		t.Fatalf("no message should be enqueued for rejected submissions")
	}
}

func TestSubmitDefaultsFilename(t *testing.T) {
	repo := repository.NewMemoryJobsRepository()
	svc := NewJobsService(repo, &recordingProducer{})

	job, err := svc.Submit(context.Background(), "x = 1", "  ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Filename != defaultFilename {
		t.Fatalf("expected default filename, got %q", job.Filename)
	}
}

func TestSubmitMarksJobFailedWhenEnqueueFails(t *testing.T) {
	repo := repository.NewMemoryJobsRepository()
	producer := &recordingProducer{err: errors.New("broker down")}
	svc := NewJobsService(repo, producer)

	_, err := svc.Submit(context.Background(), "x = 1", "a.py")
	if err == nil {
		t.Fatalf("expected enqueue failure to surface")
	}
}

func TestStatusOmitsCodeContent(t *testing.T) {
	repo := repository.NewMemoryJobsRepository()
	svc := NewJobsService(repo, &recordingProducer{})

	job, err := svc.Submit(context.Background(), "secret_code()", "a.py")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	view, err := svc.Status(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.ID != job.ID || view.Status != domain.JobStatusPending {
		t.Fatalf("unexpected view %+v", view)
	}
	// JobView has no code field by construction; the filename is the
	// only submission detail exposed.
	if view.Filename != "a.py" {
		t.Fatalf("unexpected filename %q", view.Filename)
	}
}

func TestStatusErrorsPropagate(t *testing.T) {
	repo := repository.NewMemoryJobsRepository()
	svc := NewJobsService(repo, &recordingProducer{})

	_, err := svc.Status(context.Background(), "not-a-valid-id")
	if !errors.Is(err, repository.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}
