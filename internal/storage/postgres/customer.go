package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rodela-order-api/internal/domain/customer"
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

const customerColumns = `id, name, phone, email, address, total_orders, total_spent, last_order_at, joined_at`

// GetByPhone returns the aggregate for the phone, or customer.ErrNotFound.
func (r *CustomerRepository) GetByPhone(ctx context.Context, phone string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE phone = $1`, phone).Scan(
		&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address,
		&c.TotalOrders, &c.TotalSpent, &c.LastOrderAt, &c.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", phone, err)
	}
	return &c, nil
}

// List returns customers ordered by most recent order.
func (r *CustomerRepository) List(ctx context.Context) ([]customer.Customer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY last_order_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	defer rows.Close()

	var out []customer.Customer
	for rows.Next() {
		var c customer.Customer
		err := rows.Scan(
			&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address,
			&c.TotalOrders, &c.TotalSpent, &c.LastOrderAt, &c.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning customer: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading customers: %w", err)
	}
	return out, nil
}

// Upsert inserts or replaces the aggregate for c.Phone.
func (r *CustomerRepository) Upsert(ctx context.Context, c *customer.Customer) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO customers (id, name, phone, email, address, total_orders, total_spent, last_order_at, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (phone) DO UPDATE SET
			name          = EXCLUDED.name,
			email         = EXCLUDED.email,
			address       = EXCLUDED.address,
			total_orders  = EXCLUDED.total_orders,
			total_spent   = EXCLUDED.total_spent,
			last_order_at = EXCLUDED.last_order_at
	`,
		c.ID, c.Name, c.Phone, c.Email, c.Address,
		c.TotalOrders, c.TotalSpent, c.LastOrderAt, c.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting customer %q: %w", c.Phone, err)
	}
	return nil
}
