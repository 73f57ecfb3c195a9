package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rodela-order-api/internal/outbox"
)

var _ outbox.Store = (*OutboxStore)(nil)

// OutboxStore implements outbox.Store backed by PostgreSQL.
type OutboxStore struct {
	pool *pgxpool.Pool
}

// NewOutboxStore returns an OutboxStore that uses the given pool.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// Enqueue appends a message, due immediately.
func (s *OutboxStore) Enqueue(ctx context.Context, topic string, payload []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outbox (topic, payload) VALUES ($1, $2)
	`, topic, payload)
	if err != nil {
		return fmt.Errorf("enqueueing outbox message for %q: %w", topic, err)
	}
	return nil
}

// Due returns unfinished messages whose retry time has passed, oldest first.
func (s *OutboxStore) Due(ctx context.Context, limit int) ([]outbox.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, topic, payload, attempts
		FROM outbox
		WHERE done_at IS NULL AND next_attempt_at <= now()
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching due outbox messages: %w", err)
	}
	defer rows.Close()

	var out []outbox.Message
	for rows.Next() {
		var m outbox.Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Attempts); err != nil {
			return nil, fmt.Errorf("scanning outbox message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading outbox messages: %w", err)
	}
	return out, nil
}

// MarkDone finishes the message. Done messages are kept for audit.
func (s *OutboxStore) MarkDone(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET done_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking outbox message %d done: %w", id, err)
	}
	return nil
}

// MarkFailed reschedules the message for retryAt and records the failure.
func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, attempts int64, retryAt time.Time, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET attempts = $2, next_attempt_at = $3, last_error = $4 WHERE id = $1
	`, id, attempts, retryAt, reason)
	if err != nil {
		return fmt.Errorf("rescheduling outbox message %d: %w", id, err)
	}
	return nil
}
