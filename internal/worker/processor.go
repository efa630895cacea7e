package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rafaelq/code-review-back/internal/domain"
	"github.com/rafaelq/code-review-back/internal/queue"
	"github.com/rafaelq/code-review-back/internal/repository"
)

// Reviewer is the Review side of the engine; the processor needs
// nothing else from it.
type Reviewer interface {
	Review(ctx context.Context, code, filename string) (domain.ReviewReport, error)
}

// Processor consumes queued review jobs and drives the status
// transitions PENDING -> PROCESSING -> COMPLETED|FAILED. A job that is
// already terminal is never touched again.
type Processor struct {
	consumer    queue.Consumer
	repo        repository.JobsRepository
	engine      Reviewer
	concurrency int
	logger      *log.Logger
}

func NewProcessor(
	consumer queue.Consumer,
	repo repository.JobsRepository,
	engine Reviewer,
	concurrency int,
	logger *log.Logger,
) *Processor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Processor{
		consumer:    consumer,
		repo:        repo,
		engine:      engine,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Start blocks until ctx is cancelled. Each consume loop handles one
// job at a time; the model call dominates job latency, so concurrency
// is the number of in-flight reviews.
func (p *Processor) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.consumeLoop(ctx)
		}()
	}
	wg.Wait()
}

func (p *Processor) consumeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Printf("worker consume loop error: %v", err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, message domain.QueueMessage) error {
	job, err := p.repo.GetJob(ctx, message.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", message.JobID, err)
	}

	if job.Status.Terminal() {
		if p.logger != nil {
			p.logger.Printf("skipping redelivery of terminal job job_id=%s status=%s", job.ID, job.Status)
		}
		return nil
	}

	processing := domain.JobStatusProcessing
	attempts := message.Attempt + 1
	err = p.repo.UpdateJobFields(ctx, job.ID, repository.JobUpdate{
		Status:   &processing,
		Attempts: &attempts,
	})
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	report, reviewErr := p.engine.Review(ctx, job.CodeContent, job.Filename)
	completedAt := time.Now().UTC()

	if reviewErr != nil {
		failed := domain.JobStatusFailed
		errorMessage := reviewErr.Error()
		if updateErr := p.repo.UpdateJobFields(ctx, job.ID, repository.JobUpdate{
			Status:       &failed,
			ErrorMessage: &errorMessage,
			CompletedAt:  &completedAt,
		}); updateErr != nil {
			return fmt.Errorf("mark failed: %w", updateErr)
		}
		if p.logger != nil {
			p.logger.Printf("job failed job_id=%s err=%v", job.ID, reviewErr)
		}
		// FAILED is terminal; the failure is recorded, not retried.
		return nil
	}

	completed := domain.JobStatusCompleted
	if err := p.repo.UpdateJobFields(ctx, job.ID, repository.JobUpdate{
		Status:       &completed,
		ReviewReport: &report,
		CompletedAt:  &completedAt,
	}); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	if p.logger != nil {
		p.logger.Printf("job completed job_id=%s filename=%s has_error=%t", job.ID, job.Filename, report.HasError)
	}
	return nil
}
