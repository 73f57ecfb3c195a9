package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the cart total, optionally
	// capped by MaxDiscountAmount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts a fixed amount from the cart total.
	DiscountFixed DiscountType = "fixed"
	// DiscountFreeShipping waives the shipping charge. The charge itself is
	// resolved by the caller, since it depends on the delivery zone.
	DiscountFreeShipping DiscountType = "free_shipping"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is unknown or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon's expiry date has passed.
	ErrCouponExpired = errors.New("coupon has expired")
	// ErrUsageLimitReached is returned when a coupon has exhausted its total
	// usage allowance.
	ErrUsageLimitReached = errors.New("coupon usage limit exceeded")
)

// PerUserLimitError reports that a customer has already redeemed a coupon
// the maximum number of times. The message carries both numbers.
type PerUserLimitError struct {
	Count int64
	Limit int64
}

func (e *PerUserLimitError) Error() string {
	return fmt.Sprintf("you have already used this coupon %d times, limit is %d", e.Count, e.Limit)
}

// BelowMinimumError reports that the cart total does not reach the coupon's
// minimum order value.
type BelowMinimumError struct {
	Minimum decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("minimum order value of %s required", e.Minimum.StringFixed(0))
}

// Coupon defines a discount code and its eligibility constraints.
// UsedCount is incremented only at order-commit time, never at validation
// time, so abandoned checkouts do not consume the limit.
type Coupon struct {
	Code              string
	Type              DiscountType
	Value             decimal.Decimal
	MinOrderValue     decimal.Decimal
	MaxDiscountAmount *decimal.Decimal // percentage type only
	ExpiresAt         *time.Time
	UsageLimit        *int64
	UsageLimitPerUser int64
	UsedCount         int64
	Active            bool
}

// Repository provides lookup and redemption of coupons.
type Repository interface {
	// FindByCode looks up a coupon by its normalized code, active or not.
	// Returns ErrInvalidCoupon when no such coupon exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// IncrementUsed records one redemption. Implementations must refuse the
	// increment once used_count has reached usage_limit, returning
	// ErrUsageLimitReached, so the ceiling holds under concurrency.
	IncrementUsed(ctx context.Context, code string) error
}

// Normalize canonicalizes a user-supplied coupon code: trimmed and
// upper-cased, matching how codes are stored.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
