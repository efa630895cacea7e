package queue

import (
	"context"

	"github.com/rafaelq/code-review-back/internal/domain"
)

// Producer sends review job references to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) error
}

// Consumer receives review job references and executes handlers.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error
}
