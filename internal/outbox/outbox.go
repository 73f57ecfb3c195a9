// Package outbox implements the retry queue for order side effects.
// Coupon redemption and customer aggregation must never block or fail an
// order commit, so they are enqueued next to the order and replayed by a
// background dispatcher until they stick (at-least-once).
package outbox

import (
	"context"
	"time"
)

// Topics for the side effects emitted on order commit.
const (
	TopicCouponRedeem   = "coupon.redeem"
	TopicCustomerRecord = "customer.record"
)

// Message is one pending side effect.
type Message struct {
	ID       int64
	Topic    string
	Payload  []byte
	Attempts int64
}

// Store persists outbox messages. Due returns messages whose retry time
// has passed, oldest first.
type Store interface {
	Enqueue(ctx context.Context, topic string, payload []byte) error
	Due(ctx context.Context, limit int) ([]Message, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int64, retryAt time.Time, reason string) error
}

// permanentError marks a handler failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the dispatcher drops the message instead of
// retrying it. Use for failures where replaying can never succeed, such
// as a coupon whose global usage ceiling has been reached.
func Permanent(err error) error {
	return &permanentError{err: err}
}
