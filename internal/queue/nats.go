package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/config"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type natsQueue struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	cfg config.QueueConfig
}

func NewNATSQueue(cfg config.QueueConfig) (Queue, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats at %s: %w", cfg.URL, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	q := &natsQueue{nc: nc, js: js, cfg: cfg}
	if err := q.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return q, nil
}

func (q *natsQueue) ensureStream() error {
	_, err := q.js.StreamInfo(q.cfg.Stream)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("stream info: %w", err)
	}
	_, err = q.js.AddStream(&nats.StreamConfig{
		Name: q.cfg.Stream,
		Subjects: []string{
			q.cfg.ExtractSubject,
			q.cfg.EmbedSubject,
			q.cfg.DeadLetter + ".>",
		},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", q.cfg.Stream, err)
	}
	return nil
}

func (q *natsQueue) Publish(ctx context.Context, subject string, payload []byte) error {
	_, err := q.js.Publish(subject, payload, nats.Context(ctx))
	if err != nil {
		return errs.Transient(err)
	}
	return nil
}

func (q *natsQueue) Subscribe(ctx context.Context, subject, durable string, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		sub, err := q.js.PullSubscribe(subject, durable,
			nats.ManualAck(),
			nats.MaxDeliver(q.cfg.MaxDeliver),
			nats.AckWait(5*time.Minute),
		)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		go q.consume(ctx, sub, subject, handler)
	}
	return nil
}

func (q *natsQueue) consume(ctx context.Context, sub *nats.Subscription, subject string, handler Handler) {
	logger := logutil.GetLogger(ctx).With(zap.String("subject", subject))
	for ctx.Err() == nil {
		msgs, err := sub.Fetch(1, nats.Context(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		for _, msg := range msgs {
			q.handle(ctx, logger, subject, msg, handler)
		}
	}
}

func (q *natsQueue) handle(ctx context.Context, logger *zap.Logger, subject string, msg *nats.Msg, handler Handler) {
	err := handler(ctx, msg.Data)
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			logger.Error("ack failed", zap.Error(ackErr))
		}
		return
	}

	if interrupted(ctx, err) {
		logger.Warn("task interrupted by shutdown, leaving for redelivery", zap.Error(err))
		if nakErr := msg.Nak(); nakErr != nil {
			logger.Error("nak failed", zap.Error(nakErr))
		}
		return
	}

	meta, metaErr := msg.Metadata()
	deliveries := uint64(1)
	if metaErr == nil {
		deliveries = meta.NumDelivered
	}

	if errs.IsRetryable(err) && deliveries < uint64(q.cfg.MaxDeliver) {
		logger.Warn("task failed, leaving for redelivery",
			zap.Uint64("deliveries", deliveries),
			zap.Error(err))
		if nakErr := msg.Nak(); nakErr != nil {
			logger.Error("nak failed", zap.Error(nakErr))
		}
		return
	}

	// Retry budget exhausted or the failure is not retryable: park the task
	// on the dead-letter subject and terminate the delivery.
	logger.Error("task dead-lettered",
		zap.Uint64("deliveries", deliveries),
		zap.Error(err))
	if _, pubErr := q.js.Publish(q.cfg.DeadLetter+"."+subject, msg.Data); pubErr != nil {
		logger.Error("dead-letter publish failed", zap.Error(pubErr))
	}
	if termErr := msg.Term(); termErr != nil {
		logger.Error("term failed", zap.Error(termErr))
	}
}

func (q *natsQueue) Close() {
	q.nc.Close()
}
