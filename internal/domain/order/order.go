package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rodela-order-api/internal/domain/inventory"
)

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateID is returned when creating an order with an id that is
	// already taken. The caller should regenerate and retry.
	ErrDuplicateID = errors.New("order id already exists")
)

// LineItem is one ordered product, with name/price/image denormalized at
// creation time so history survives catalog edits.
type LineItem struct {
	ProductID   string            `json:"productId"`
	VariantID   string            `json:"variantId,omitempty"`
	VariantName string            `json:"variantName,omitempty"`
	Name        string            `json:"name"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Quantity    int64             `json:"quantity"`
	Price       decimal.Decimal   `json:"price"`
	Image       string            `json:"image,omitempty"`
}

// Order is a durable customer order record. The id is immutable once
// created; everything else mutates only through Service methods.
type Order struct {
	ID             string
	CustomerName   string
	Phone          string
	Email          string
	Address        string
	Status         Status
	Items          []LineItem
	Subtotal       decimal.Decimal
	ShippingCharge decimal.Decimal
	Discount       decimal.Decimal
	Amount         decimal.Decimal
	CouponCode     string
	ConsignmentID  string
	TrackingCode   string
	CreatedAt      time.Time
}

// reservationLines maps the order's items to inventory ledger lines.
func (o *Order) reservationLines() []inventory.Line {
	lines := make([]inventory.Line, len(o.Items))
	for i, item := range o.Items {
		lines[i] = inventory.Line{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		}
	}
	return lines
}

// ListFilter narrows List results.
type ListFilter struct {
	Phone string
	Email string
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists a new order. Returns ErrDuplicateID when the id is
	// already taken.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// List returns orders newest first.
	List(ctx context.Context, f ListFilter) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdateShipment(ctx context.Context, id, consignmentID, trackingCode string) error
	UpdateShippingCharge(ctx context.Context, id string, charge, amount decimal.Decimal) error
	Delete(ctx context.Context, id string) error
	// CountRedemptions counts non-Cancelled orders for phone carrying the
	// given coupon code. Satisfies coupon.UsageCounter.
	CountRedemptions(ctx context.Context, phone, code string) (int64, error)
}
