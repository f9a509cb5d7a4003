package queue

import (
	"context"
	"sync"

	"github.com/doctrail/doctrail/internal/config"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type memoryDelivery struct {
	payload  []byte
	attempts int
}

// memoryQueue mimics the JetStream semantics in process: at-least-once
// redelivery on retryable failures, dead-lettering once the delivery budget
// is spent. Used by tests and single-process local runs.
type memoryQueue struct {
	cfg       config.QueueConfig
	mu        sync.Mutex
	subs      map[string]chan memoryDelivery
	dead      map[string][]memoryDelivery
	wg        sync.WaitGroup
	stop      chan struct{}
	closeOnce sync.Once
}

func NewMemoryQueue(cfg config.QueueConfig) *memoryQueue {
	return &memoryQueue{
		cfg:  cfg,
		subs: make(map[string]chan memoryDelivery),
		dead: make(map[string][]memoryDelivery),
		stop: make(chan struct{}),
	}
}

func (q *memoryQueue) channel(subject string) chan memoryDelivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.subs[subject]
	if !ok {
		ch = make(chan memoryDelivery, 1024)
		q.subs[subject] = ch
	}
	return ch
}

func (q *memoryQueue) Publish(ctx context.Context, subject string, payload []byte) error {
	select {
	case q.channel(subject) <- memoryDelivery{payload: payload, attempts: 0}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *memoryQueue) Subscribe(ctx context.Context, subject, durable string, workers int, handler Handler) error {
	_ = durable
	if workers <= 0 {
		workers = 1
	}
	ch := q.channel(subject)
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.stop:
					return
				case delivery := <-ch:
					q.handle(ctx, subject, ch, delivery, handler)
				}
			}
		}()
	}
	return nil
}

func (q *memoryQueue) handle(ctx context.Context, subject string, ch chan memoryDelivery, delivery memoryDelivery, handler Handler) {
	err := handler(ctx, delivery.payload)
	if err == nil {
		return
	}
	if interrupted(ctx, err) {
		// Shutdown, not a task failure: hand the delivery back untouched so
		// the next subscriber picks it up. The slot just freed keeps this
		// from blocking.
		ch <- delivery
		return
	}
	delivery.attempts++
	if errs.IsRetryable(err) && delivery.attempts < q.cfg.MaxDeliver {
		select {
		case ch <- delivery:
		case <-ctx.Done():
		}
		return
	}
	q.mu.Lock()
	q.dead[subject] = append(q.dead[subject], delivery)
	q.mu.Unlock()
}

// DeadLetters returns the payloads parked for a subject. Test hook.
func (q *memoryQueue) DeadLetters(subject string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, 0, len(q.dead[subject]))
	for _, d := range q.dead[subject] {
		out = append(out, d.payload)
	}
	return out
}

// Close stops the subscriber goroutines and waits for in-flight handlers.
func (q *memoryQueue) Close() {
	q.closeOnce.Do(func() { close(q.stop) })
	q.wg.Wait()
}
