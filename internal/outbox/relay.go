package outbox

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/rodela-order-api/internal/domain/customer"
	"github.com/xenking/rodela-order-api/internal/domain/order"
)

// Relay turns committed orders into outbox messages.
type Relay struct {
	store Store
}

func NewRelay(store Store) *Relay {
	return &Relay{store: store}
}

// OrderCommitted enqueues the side effects of a freshly persisted order:
// a coupon redemption when a coupon was applied, and a customer record
// update always.
func (r *Relay) OrderCommitted(ctx context.Context, o *order.Order) error {
	if o.CouponCode != "" {
		payload := encodeCouponRedeem(CouponRedeem{Code: o.CouponCode, Phone: o.Phone})
		if err := r.store.Enqueue(ctx, TopicCouponRedeem, payload); err != nil {
			return errors.Wrap(err, "enqueue coupon redemption")
		}
	}

	snapshot := customer.OrderSnapshot{
		Name:    o.CustomerName,
		Phone:   o.Phone,
		Email:   o.Email,
		Address: o.Address,
		Amount:  o.Amount,
		Date:    o.CreatedAt,
	}
	if err := r.store.Enqueue(ctx, TopicCustomerRecord, encodeOrderSnapshot(snapshot)); err != nil {
		return errors.Wrap(err, "enqueue customer record")
	}
	return nil
}
