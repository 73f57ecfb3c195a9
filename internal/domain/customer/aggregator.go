package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSnapshot carries the fields of a committed order that feed the
// customer aggregate.
type OrderSnapshot struct {
	Name    string
	Phone   string
	Email   string
	Address string
	Amount  decimal.Decimal
	Date    time.Time
}

// Aggregator maintains per-phone customer statistics from committed
// orders. It is driven by the outbox dispatcher, so delivery is
// at-least-once; a duplicate replay inflates totals, which the design
// accepts in exchange for never blocking order commits.
type Aggregator struct {
	repo Repository
}

// NewAggregator creates an Aggregator over the customer repository.
func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// RecordOrder folds one committed order into the aggregate for its phone.
// First order for a phone creates the customer; later orders increment
// totals, advance LastOrderAt only forward (out-of-order ingestion must
// not regress it), and overwrite name/email/address last-write-wins.
func (a *Aggregator) RecordOrder(ctx context.Context, snap OrderSnapshot) error {
	if snap.Phone == "" {
		return errors.New("order snapshot has no phone")
	}

	c, err := a.repo.GetByPhone(ctx, snap.Phone)
	switch {
	case errors.Is(err, ErrNotFound):
		c = &Customer{
			ID:          "CUST-" + uuid.New().String(),
			Name:        snap.Name,
			Phone:       snap.Phone,
			Email:       snap.Email,
			Address:     snap.Address,
			TotalOrders: 1,
			TotalSpent:  snap.Amount,
			LastOrderAt: snap.Date,
			JoinedAt:    snap.Date,
		}
	case err != nil:
		return errors.Wrap(err, "get customer")
	default:
		c.TotalOrders++
		c.TotalSpent = c.TotalSpent.Add(snap.Amount)
		if snap.Date.After(c.LastOrderAt) {
			c.LastOrderAt = snap.Date
		}
		if snap.Name != "" {
			c.Name = snap.Name
		}
		if snap.Email != "" {
			c.Email = snap.Email
		}
		if snap.Address != "" {
			c.Address = snap.Address
		}
	}

	if err := a.repo.Upsert(ctx, c); err != nil {
		return errors.Wrap(err, "upsert customer")
	}
	return nil
}
