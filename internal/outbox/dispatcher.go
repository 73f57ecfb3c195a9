package outbox

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Handler processes one message payload for a topic.
type Handler func(ctx context.Context, payload []byte) error

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 100

	backoffBase = 5 * time.Second
	backoffCap  = 10 * time.Minute

	// maxAttempts bounds retries per message. A message that keeps failing
	// is parked with its last error kept on the row for reconciliation.
	maxAttempts = 12
)

// farFuture keeps exhausted messages out of the due queue without losing
// their payload or last error.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Dispatcher polls the store for due messages and runs the registered
// handler per topic. Failed messages are rescheduled with exponential
// backoff; handlers wrap errors with Permanent to drop a message.
type Dispatcher struct {
	store    Store
	handlers map[string]Handler
	lg       *zap.Logger

	pollInterval time.Duration
	batchSize    int
	now          func() time.Time

	lastPoll atomic.Int64
}

func NewDispatcher(store Store, lg *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:        store,
		handlers:     make(map[string]Handler),
		lg:           lg,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		now:          time.Now,
	}
}

// Handle registers the handler for a topic. Not safe to call after Run.
func (d *Dispatcher) Handle(topic string, h Handler) {
	d.handlers[topic] = h
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if err := d.drain(ctx); err != nil {
			d.lg.Error("Outbox poll failed", zap.Error(err))
		}
		d.lastPoll.Store(d.now().UnixNano())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LastPoll reports when the dispatcher last completed a poll, for
// staleness monitoring. Zero before the first poll.
func (d *Dispatcher) LastPoll() time.Time {
	ns := d.lastPoll.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// drain processes every currently due message, batch by batch.
func (d *Dispatcher) drain(ctx context.Context) error {
	for {
		msgs, err := d.store.Due(ctx, d.batchSize)
		if err != nil {
			return errors.Wrap(err, "fetch due messages")
		}
		if len(msgs) == 0 {
			return nil
		}
		for _, msg := range msgs {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.process(ctx, msg)
		}
		if len(msgs) < d.batchSize {
			return nil
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, msg Message) {
	h, ok := d.handlers[msg.Topic]
	if !ok {
		d.lg.Error("No handler for outbox topic, dropping message",
			zap.Int64("id", msg.ID),
			zap.String("topic", msg.Topic),
		)
		d.markDone(ctx, msg)
		return
	}

	err := h(ctx, msg.Payload)
	if err == nil {
		d.markDone(ctx, msg)
		return
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		d.lg.Warn("Outbox message failed permanently, dropping",
			zap.Int64("id", msg.ID),
			zap.String("topic", msg.Topic),
			zap.Error(err),
		)
		d.markDone(ctx, msg)
		return
	}

	attempts := msg.Attempts + 1
	if attempts >= maxAttempts {
		d.lg.Error("Outbox message exhausted retries, giving up",
			zap.Int64("id", msg.ID),
			zap.String("topic", msg.Topic),
			zap.Int64("attempts", attempts),
			zap.Error(err),
		)
		if err := d.store.MarkFailed(ctx, msg.ID, attempts, farFuture, err.Error()); err != nil {
			d.lg.Error("Failed to park outbox message", zap.Int64("id", msg.ID), zap.Error(err))
		}
		return
	}

	retryAt := d.now().Add(backoff(attempts))
	d.lg.Error("Outbox message failed, rescheduling",
		zap.Int64("id", msg.ID),
		zap.String("topic", msg.Topic),
		zap.Int64("attempts", attempts),
		zap.Time("retry_at", retryAt),
		zap.Error(err),
	)
	if err := d.store.MarkFailed(ctx, msg.ID, attempts, retryAt, err.Error()); err != nil {
		d.lg.Error("Failed to reschedule outbox message",
			zap.Int64("id", msg.ID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) markDone(ctx context.Context, msg Message) {
	if err := d.store.MarkDone(ctx, msg.ID); err != nil {
		d.lg.Error("Failed to mark outbox message done",
			zap.Int64("id", msg.ID),
			zap.Error(err),
		)
	}
}

// backoff doubles the delay per attempt, from backoffBase up to backoffCap.
func backoff(attempts int64) time.Duration {
	delay := backoffBase
	for i := int64(1); i < attempts; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}
	return delay
}
