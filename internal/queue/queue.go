package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/doctrail/doctrail/internal/config"
)

// Handler processes one task payload. Returning nil acknowledges the task.
// A retryable error (errs.IsRetryable) leaves the task for redelivery; any
// other error dead-letters it immediately.
type Handler func(ctx context.Context, payload []byte) error

// Queue is a durable, at-least-once task queue. Consumers acknowledge only
// after the next pipeline stage is enqueued (or the failure is terminal), so
// a crash mid-task leads to redelivery, not loss.
type Queue interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	// Subscribe attaches workers to a subject under a durable consumer name.
	// It returns immediately; handlers run until ctx is cancelled.
	Subscribe(ctx context.Context, subject, durable string, workers int, handler Handler) error
	Close()
}

// interrupted reports whether a handler failure came from shutdown rather
// than the task itself. Interrupted tasks go back for redelivery and do not
// spend the delivery budget.
func interrupted(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func New(cfg config.QueueConfig) (Queue, error) {
	switch cfg.Type {
	case "nats":
		return NewNATSQueue(cfg)
	case "memory":
		return NewMemoryQueue(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported queue type: %s", cfg.Type)
	}
}
