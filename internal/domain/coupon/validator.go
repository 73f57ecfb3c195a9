package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// UsageCounter counts a customer's prior redemptions of a coupon code.
// Cancelled orders do not count. Backed by the order store.
type UsageCounter interface {
	CountRedemptions(ctx context.Context, phone, code string) (int64, error)
}

// Validation is the outcome of a successful coupon check.
type Validation struct {
	Code     string
	Type     DiscountType
	Discount decimal.Decimal
}

// Validator decides whether a coupon is usable for a given cart and
// customer, and computes the discount amount. It never mutates usage
// counters; redemption happens separately at order-commit time.
type Validator struct {
	coupons Repository
	usage   UsageCounter
	now     func() time.Time
}

// NewValidator creates a Validator over the coupon repository and the
// per-customer usage counter.
func NewValidator(coupons Repository, usage UsageCounter) *Validator {
	return &Validator{coupons: coupons, usage: usage, now: time.Now}
}

// Validate runs the eligibility checks in order, short-circuiting on the
// first failure: existence/active, expiry, total usage limit, per-user
// usage limit, minimum order value. shippingCharge is only consulted for
// free-shipping coupons, whose discount equals the charge being waived.
func (v *Validator) Validate(ctx context.Context, code string, cartTotal, shippingCharge decimal.Decimal, customerPhone string) (*Validation, error) {
	normalized := Normalize(code)
	if normalized == "" {
		return nil, ErrInvalidCoupon
	}

	c, err := v.coupons.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !c.Active {
		return nil, ErrInvalidCoupon
	}

	if c.ExpiresAt != nil && v.now().After(*c.ExpiresAt) {
		return nil, ErrCouponExpired
	}

	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return nil, ErrUsageLimitReached
	}

	if customerPhone != "" && c.UsageLimitPerUser > 0 {
		count, err := v.usage.CountRedemptions(ctx, customerPhone, c.Code)
		if err != nil {
			return nil, errors.Wrap(err, "count redemptions")
		}
		if count >= c.UsageLimitPerUser {
			return nil, &PerUserLimitError{Count: count, Limit: c.UsageLimitPerUser}
		}
	}

	if c.MinOrderValue.IsPositive() && cartTotal.LessThan(c.MinOrderValue) {
		return nil, &BelowMinimumError{Minimum: c.MinOrderValue}
	}

	return &Validation{
		Code:     c.Code,
		Type:     c.Type,
		Discount: computeDiscount(c, cartTotal, shippingCharge),
	}, nil
}

var hundred = decimal.NewFromInt(100)

// computeDiscount applies the coupon's discount strategy. The result is
// rounded to the nearest whole currency unit and never exceeds cartTotal.
func computeDiscount(c *Coupon, cartTotal, shippingCharge decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		amount = cartTotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscountAmount != nil && amount.GreaterThan(*c.MaxDiscountAmount) {
			amount = *c.MaxDiscountAmount
		}
	case DiscountFreeShipping:
		amount = shippingCharge
	default:
		amount = c.Value
	}

	if amount.GreaterThan(cartTotal) {
		amount = cartTotal
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(0)
}
