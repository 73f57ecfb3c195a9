package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rodela-order-api/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
// Returns coupon.ErrInvalidCoupon when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var c coupon.Coupon
	err := r.pool.QueryRow(ctx, `
		SELECT code, discount_type, discount_value, min_order_value, max_discount_amount,
		       expires_at, usage_limit, usage_limit_per_user, used_count, active
		FROM coupons
		WHERE code = $1
	`, coupon.Normalize(code)).Scan(
		&c.Code, &c.Type, &c.Value, &c.MinOrderValue, &c.MaxDiscountAmount,
		&c.ExpiresAt, &c.UsageLimit, &c.UsageLimitPerUser, &c.UsedCount, &c.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// IncrementUsed records one redemption. The guard in the WHERE clause keeps
// used_count at or below usage_limit under concurrent redemptions; losing
// the race surfaces as coupon.ErrUsageLimitReached.
func (r *CouponRepository) IncrementUsed(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
	`, coupon.Normalize(code))
	if err != nil {
		return fmt.Errorf("incrementing usage of coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.exists(ctx, coupon.Normalize(code))
		if err != nil {
			return err
		}
		if !exists {
			return coupon.ErrInvalidCoupon
		}
		return coupon.ErrUsageLimitReached
	}
	return nil
}

func (r *CouponRepository) exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking coupon %q: %w", code, err)
	}
	return exists, nil
}
