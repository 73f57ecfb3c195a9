package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no customer exists for a phone.
var ErrNotFound = errors.New("customer not found")

// Customer is an aggregate derived from committed orders, keyed by phone.
// Totals only ever grow: cancellations and deletions are not reversed here,
// matching the upstream bookkeeping this system inherits.
type Customer struct {
	ID          string
	Name        string
	Phone       string
	Email       string
	Address     string
	TotalOrders int64
	TotalSpent  decimal.Decimal
	LastOrderAt time.Time
	JoinedAt    time.Time
}

// Repository provides persistence for customer aggregates.
type Repository interface {
	GetByPhone(ctx context.Context, phone string) (*Customer, error)
	List(ctx context.Context) ([]Customer, error)
	// Upsert inserts or replaces the aggregate for c.Phone.
	Upsert(ctx context.Context, c *Customer) error
}
