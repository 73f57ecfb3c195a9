package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rodela-order-api/internal/domain/blacklist"
)

var _ blacklist.Repository = (*BlacklistRepository)(nil)

// BlacklistRepository implements blacklist.Repository backed by PostgreSQL.
type BlacklistRepository struct {
	pool *pgxpool.Pool
}

// NewBlacklistRepository returns a BlacklistRepository that uses the given pool.
func NewBlacklistRepository(pool *pgxpool.Pool) *BlacklistRepository {
	return &BlacklistRepository{pool: pool}
}

// FindByPhone returns the blacklist entry for the phone.
// Returns blacklist.ErrNotFound when the phone is not listed.
func (r *BlacklistRepository) FindByPhone(ctx context.Context, phone string) (*blacklist.Entry, error) {
	var e blacklist.Entry
	err := r.pool.QueryRow(ctx, `
		SELECT phone, reason, created_at FROM blacklist WHERE phone = $1
	`, phone).Scan(&e.Phone, &e.Reason, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, blacklist.ErrNotFound
		}
		return nil, fmt.Errorf("finding blacklist entry %q: %w", phone, err)
	}
	return &e, nil
}

// List returns every blacklist entry, newest first.
func (r *BlacklistRepository) List(ctx context.Context) ([]blacklist.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT phone, reason, created_at FROM blacklist ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing blacklist: %w", err)
	}
	defer rows.Close()

	var out []blacklist.Entry
	for rows.Next() {
		var e blacklist.Entry
		if err := rows.Scan(&e.Phone, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning blacklist entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading blacklist: %w", err)
	}
	return out, nil
}

// Add upserts an entry, replacing the reason when the phone is already listed.
func (r *BlacklistRepository) Add(ctx context.Context, e blacklist.Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO blacklist (phone, reason) VALUES ($1, $2)
		ON CONFLICT (phone) DO UPDATE SET reason = EXCLUDED.reason
	`, e.Phone, e.Reason)
	if err != nil {
		return fmt.Errorf("adding %q to blacklist: %w", e.Phone, err)
	}
	return nil
}

// Remove delists the phone. Removing an unknown phone is not an error.
func (r *BlacklistRepository) Remove(ctx context.Context, phone string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM blacklist WHERE phone = $1`, phone)
	if err != nil {
		return fmt.Errorf("removing %q from blacklist: %w", phone, err)
	}
	return nil
}
