package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/rodela-order-api/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const uniqueViolation = "23505"

// Create persists a new order. The line items are serialized to JSON for
// the JSONB column. Returns order.ErrDuplicateID when the id is taken.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders (
			id, customer_name, phone, email, address, status, items,
			subtotal, shipping_charge, discount, amount, coupon_code, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		o.ID, o.CustomerName, o.Phone, o.Email, o.Address, string(o.Status), itemsJSON,
		o.Subtotal, o.ShippingCharge, o.Discount, o.Amount, o.CouponCode, o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return order.ErrDuplicateID
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

const orderColumns = `id, customer_name, phone, email, address, status, items,
	subtotal, shipping_charge, discount, amount, coupon_code,
	consignment_id, tracking_code, created_at`

// GetByID returns a single order. Returns order.ErrNotFound when absent.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

// List returns orders newest first, optionally filtered by phone or email.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var (
		args  []any
		where string
	)
	switch {
	case f.Phone != "":
		where, args = ` WHERE phone = $1`, []any{f.Phone}
	case f.Email != "":
		where, args = ` WHERE email = $1`, []any{f.Email}
	}

	rows, err := r.pool.Query(ctx, query+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading orders: %w", err)
	}
	return out, nil
}

// UpdateStatus moves the order to the given status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdateShipment stores the courier consignment ids on the order.
func (r *OrderRepository) UpdateShipment(ctx context.Context, id, consignmentID, trackingCode string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET consignment_id = $2, tracking_code = $3 WHERE id = $1
	`, id, consignmentID, trackingCode)
	if err != nil {
		return fmt.Errorf("updating shipment of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdateShippingCharge rewrites the shipping charge and the re-derived
// total in one statement.
func (r *OrderRepository) UpdateShippingCharge(ctx context.Context, id string, charge, amount decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET shipping_charge = $2, amount = $3 WHERE id = $1
	`, id, charge, amount)
	if err != nil {
		return fmt.Errorf("updating shipping charge of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Delete removes the order row.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// CountRedemptions counts the customer's non-cancelled orders carrying the
// given coupon code. Satisfies coupon.UsageCounter.
func (r *OrderRepository) CountRedemptions(ctx context.Context, phone, code string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM orders
		WHERE phone = $1 AND coupon_code = $2 AND status <> $3
	`, phone, code, string(order.StatusCancelled)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting redemptions of %q by %q: %w", code, phone, err)
	}
	return count, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o      order.Order
		status string
		items  []byte
	)
	err := row.Scan(
		&o.ID, &o.CustomerName, &o.Phone, &o.Email, &o.Address, &status, &items,
		&o.Subtotal, &o.ShippingCharge, &o.Discount, &o.Amount, &o.CouponCode,
		&o.ConsignmentID, &o.TrackingCode, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decoding order items: %w", err)
	}
	return &o, nil
}
