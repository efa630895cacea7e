package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rafaelq/code-review-back/internal/domain"
)

type recordingBatchProducer struct {
	mu      sync.Mutex
	batches [][]domain.QueueMessage
}

func (p *recordingBatchProducer) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	return p.EnqueueBatch(ctx, []domain.QueueMessage{message})
}

func (p *recordingBatchProducer) EnqueueBatch(_ context.Context, messages []domain.QueueMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	copied := append([]domain.QueueMessage(nil), messages...)
	p.batches = append(p.batches, copied)
	return nil
}

func (p *recordingBatchProducer) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func (p *recordingBatchProducer) totalMessages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, batch := range p.batches {
		total += len(batch)
	}
	return total
}

func TestBatchingProducerBatchesRequests(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := &recordingBatchProducer{}
	batcher := NewBatchingProducer(parent, base, BatchingConfig{
		MaxBatchSize:       8,
		FlushInterval:      20 * time.Millisecond,
		FlushTimeout:       1 * time.Second,
		QueueCapacity:      64,
		MaxInFlightBatches: 2,
	})
	defer batcher.Close()

	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			err := batcher.Enqueue(context.Background(), domain.QueueMessage{
				JobID:       "job-" + time.Now().Format("150405.000000000"),
				Filename:    "a.py",
				RequestedAt: time.Now().UTC().Add(time.Duration(index) * time.Microsecond),
			})
			if err != nil {
				t.Errorf("enqueue failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// Allow the final interval flush to run.
	time.Sleep(100 * time.Millisecond)

	if got := base.totalMessages(); got != 24 {
		t.Fatalf("expected 24 messages enqueued, got %d", got)
	}
	if got := base.batchCount(); got >= 24 {
		t.Fatalf("expected coalesced batches, got %d single flushes", got)
	}
}

func TestBatchingProducerFlushesOnClose(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := &recordingBatchProducer{}
	batcher := NewBatchingProducer(parent, base, BatchingConfig{
		MaxBatchSize:  32,
		FlushInterval: 10 * time.Second,
	})

	done := make(chan error, 1)
	go func() {
		done <- batcher.Enqueue(context.Background(), domain.QueueMessage{
			JobID:       "job-close",
			Filename:    "a.py",
			RequestedAt: time.Now().UTC(),
		})
	}()

	time.Sleep(30 * time.Millisecond)
	batcher.Close()

	if err := <-done; err != nil {
		t.Fatalf("enqueue during close failed: %v", err)
	}
	if got := base.totalMessages(); got != 1 {
		t.Fatalf("expected pending message flushed on close, got %d", got)
	}
}

func TestBatchingProducerRejectsAfterClose(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := &recordingBatchProducer{}
	batcher := NewBatchingProducer(parent, base, BatchingConfig{})
	batcher.Close()

	err := batcher.Enqueue(context.Background(), domain.QueueMessage{JobID: "late"})
	if err != ErrBatchingClosed {
		t.Fatalf("expected ErrBatchingClosed, got %v", err)
	}
}
