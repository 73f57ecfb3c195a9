package outbox

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/rodela-order-api/internal/domain/coupon"
	"github.com/xenking/rodela-order-api/internal/domain/customer"
)

// CouponRedeemHandler returns the coupon.redeem handler: it burns one use
// of the coupon. Hitting the usage ceiling here means the order was
// committed in a race against the last redemption; the count cannot go
// above the ceiling, so the message is dropped rather than retried.
func CouponRedeemHandler(coupons coupon.Repository) Handler {
	return func(ctx context.Context, payload []byte) error {
		p, err := DecodeCouponRedeem(payload)
		if err != nil {
			return Permanent(err)
		}
		if err := coupons.IncrementUsed(ctx, p.Code); err != nil {
			if errors.Is(err, coupon.ErrUsageLimitReached) || errors.Is(err, coupon.ErrInvalidCoupon) {
				return Permanent(err)
			}
			return errors.Wrap(err, "increment coupon usage")
		}
		return nil
	}
}

// CustomerRecordHandler returns the customer.record handler: it folds the
// order into the per-phone customer aggregate.
func CustomerRecordHandler(agg *customer.Aggregator) Handler {
	return func(ctx context.Context, payload []byte) error {
		snapshot, err := DecodeOrderSnapshot(payload)
		if err != nil {
			return Permanent(err)
		}
		return agg.RecordOrder(ctx, snapshot)
	}
}
