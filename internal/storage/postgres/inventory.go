package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rodela-order-api/internal/domain/inventory"
)

var _ inventory.Store = (*InventoryStore)(nil)

// InventoryStore implements inventory.Store with single-statement
// conditional updates. A decrement succeeds only when the row holds enough
// stock, so concurrent reservations can never drive a counter negative.
type InventoryStore struct {
	pool *pgxpool.Pool
}

// NewInventoryStore returns an InventoryStore that uses the given pool.
func NewInventoryStore(pool *pgxpool.Pool) *InventoryStore {
	return &InventoryStore{pool: pool}
}

func (s *InventoryStore) DecrementProductStock(ctx context.Context, productID string, qty int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`, productID, qty)
	if err != nil {
		return false, fmt.Errorf("decrementing stock of product %q: %w", productID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *InventoryStore) IncrementProductStock(ctx context.Context, productID string, qty int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE products SET stock = stock + $2 WHERE id = $1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("incrementing stock of product %q: %w", productID, err)
	}
	return nil
}

func (s *InventoryStore) DecrementVariantStock(ctx context.Context, productID, variantID string, qty int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE product_variants SET stock = stock - $3
		WHERE product_id = $1 AND id = $2 AND stock >= $3
	`, productID, variantID, qty)
	if err != nil {
		return false, fmt.Errorf("decrementing stock of variant %q/%q: %w", productID, variantID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *InventoryStore) IncrementVariantStock(ctx context.Context, productID, variantID string, qty int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE product_variants SET stock = stock + $3
		WHERE product_id = $1 AND id = $2
	`, productID, variantID, qty)
	if err != nil {
		return fmt.Errorf("incrementing stock of variant %q/%q: %w", productID, variantID, err)
	}
	return nil
}
