package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/rodela-order-api/internal/domain/blacklist"
	"github.com/xenking/rodela-order-api/internal/domain/coupon"
	"github.com/xenking/rodela-order-api/internal/domain/inventory"
	"github.com/xenking/rodela-order-api/internal/domain/product"
)

// Sentinel errors for order creation.
var ErrEmptyItems = errors.New("at least one item is required")

// BlockedError indicates the customer's phone is blacklisted. Creation is
// rejected before any stock side effect.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "N/A"
	}
	return fmt.Sprintf("order blocked: this phone number is blacklisted, reason: %s", reason)
}

// InsufficientStockError names the product (and variant) that could not be
// reserved, in terms safe to show the customer.
type InsufficientStockError struct {
	ProductName string
	VariantName string
}

func (e *InsufficientStockError) Error() string {
	if e.VariantName != "" {
		return fmt.Sprintf("insufficient stock for %s (variant: %s)", e.ProductName, e.VariantName)
	}
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// VariantNotFoundError indicates a line references a variant the product
// does not have.
type VariantNotFoundError struct {
	ProductID string
	VariantID string
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("product %s has no variant %s", e.ProductID, e.VariantID)
}

// Gatekeeper answers whether a phone is blocked (nil entry = clean).
type Gatekeeper interface {
	Check(ctx context.Context, phone string) (*blacklist.Entry, error)
}

// CouponValidator computes the discount for a coupon code, or rejects it.
type CouponValidator interface {
	Validate(ctx context.Context, code string, cartTotal, shippingCharge decimal.Decimal, customerPhone string) (*coupon.Validation, error)
}

// Ledger is the stock reservation authority.
type Ledger interface {
	Reserve(ctx context.Context, lines []inventory.Line) error
	Restore(ctx context.Context, lines []inventory.Line) error
	ReReserve(ctx context.Context, lines []inventory.Line) error
}

// Shipment is the courier's receipt for a dispatched order.
type Shipment struct {
	ConsignmentID string
	TrackingCode  string
}

// CourierClient is the external courier contract, consumed as a black box.
type CourierClient interface {
	CreateShipment(ctx context.Context, o *Order) (*Shipment, error)
}

// SideEffects receives the committed order for best-effort bookkeeping
// (coupon redemption, customer aggregates). Implementations must not block
// on downstream work; failures are surfaced for logging only.
type SideEffects interface {
	OrderCommitted(ctx context.Context, o *Order) error
}

// ItemRequest is one requested cart line. Prices and names are resolved
// from the catalog, never trusted from the caller.
type ItemRequest struct {
	ProductID string
	VariantID string
	Quantity  int64
}

// CreateRequest is the input for placing an order. ID may be pre-supplied
// by the caller for idempotency; duplicates are rejected as a conflict.
type CreateRequest struct {
	ID             string
	CustomerName   string
	Phone          string
	Email          string
	Address        string
	Items          []ItemRequest
	CouponCode     string
	ShippingCharge decimal.Decimal
}

// Service is the order lifecycle manager. It orchestrates the blacklist
// gate, coupon validator, inventory ledger and order store on creation,
// and owns every later status transition.
type Service struct {
	gate     Gatekeeper
	products product.Repository
	coupons  CouponValidator
	ledger   Ledger
	orders   Repository
	courier  CourierClient
	effects  SideEffects
	now      func() time.Time
}

// NewService creates the lifecycle manager with its collaborators.
func NewService(
	gate Gatekeeper,
	products product.Repository,
	coupons CouponValidator,
	ledger Ledger,
	orders Repository,
	courier CourierClient,
	effects SideEffects,
) *Service {
	return &Service{
		gate:     gate,
		products: products,
		coupons:  coupons,
		ledger:   ledger,
		orders:   orders,
		courier:  courier,
		effects:  effects,
		now:      time.Now,
	}
}

// Create validates eligibility, reserves stock, computes the final charge
// and persists the order. Stock reservation is the commitment point: it
// happens before persistence, and any later failure rolls it back so no
// order is ever recorded against stock that cannot back it.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	// A blocked phone must never cause a stock side effect, so the gate
	// runs before anything touches the ledger.
	entry, err := s.gate.Check(ctx, req.Phone)
	if err != nil {
		return nil, errors.Wrap(err, "blacklist check")
	}
	if entry != nil {
		return nil, &BlockedError{Reason: entry.Reason}
	}

	byID, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	items := make([]LineItem, len(req.Items))
	subtotal := decimal.Zero
	for i, reqItem := range req.Items {
		p, ok := byID[reqItem.ProductID]
		if !ok {
			return nil, errors.Wrapf(product.ErrNotFound, "product %s", reqItem.ProductID)
		}

		item := LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  reqItem.Quantity,
			Price:     p.Price,
			Image:     p.Image,
		}
		if reqItem.VariantID != "" {
			v := p.Variant(reqItem.VariantID)
			if v == nil {
				return nil, &VariantNotFoundError{ProductID: p.ID, VariantID: reqItem.VariantID}
			}
			item.VariantID = v.ID
			item.VariantName = v.Name
			item.Attributes = v.Attributes
			item.Price = v.Price
			if v.Image != "" {
				item.Image = v.Image
			}
		}
		items[i] = item
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(item.Quantity)))
	}

	discount := decimal.Zero
	couponCode := ""
	if req.CouponCode != "" {
		val, err := s.coupons.Validate(ctx, req.CouponCode, subtotal, req.ShippingCharge, req.Phone)
		if err != nil {
			return nil, err
		}
		discount = val.Discount
		couponCode = val.Code
	}

	amount := subtotal.Add(req.ShippingCharge).Sub(discount)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	o := &Order{
		ID:             req.ID,
		CustomerName:   req.CustomerName,
		Phone:          req.Phone,
		Email:          req.Email,
		Address:        req.Address,
		Status:         StatusPending,
		Items:          items,
		Subtotal:       subtotal,
		ShippingCharge: req.ShippingCharge,
		Discount:       discount,
		Amount:         amount,
		CouponCode:     couponCode,
		CreatedAt:      s.now().UTC(),
	}
	if o.ID == "" {
		o.ID = "ORD-" + uuid.New().String()
	}

	lines := o.reservationLines()
	if err := s.ledger.Reserve(ctx, lines); err != nil {
		return nil, s.stockError(err, items)
	}

	if err := s.orders.Create(ctx, o); err != nil {
		// The reservation is already committed; give it back before failing.
		if restoreErr := s.ledger.Restore(ctx, lines); restoreErr != nil {
			zctx.From(ctx).Error("restore after failed order persist",
				zap.String("order_id", o.ID), zap.Error(restoreErr))
		}
		if errors.Is(err, ErrDuplicateID) {
			return nil, ErrDuplicateID
		}
		return nil, errors.Wrap(err, "persist order")
	}

	// Coupon redemption and customer aggregates lag the order on purpose:
	// the order exists even if this bookkeeping needs a retry.
	if err := s.effects.OrderCommitted(ctx, o); err != nil {
		zctx.From(ctx).Error("enqueue order side effects",
			zap.String("order_id", o.ID), zap.Error(err))
	}

	return o, nil
}

// ChangeStatus is the only code path that mutates an order's status.
// Entering Cancelled restores stock (idempotently); leaving Cancelled
// re-reserves it, and the transition fails if stock is short, leaving the
// order Cancelled. All other transitions are metadata changes.
func (s *Service) ChangeStatus(ctx context.Context, id string, next Status) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == next {
		return o, nil
	}

	lines := o.reservationLines()
	switch {
	case next == StatusCancelled:
		if err := s.ledger.Restore(ctx, lines); err != nil {
			return nil, errors.Wrap(err, "restore stock")
		}
		if err := s.orders.UpdateStatus(ctx, id, next); err != nil {
			// Take the reservation back so counters stay conserved.
			if resErr := s.ledger.ReReserve(ctx, lines); resErr != nil {
				zctx.From(ctx).Error("re-reserve after failed cancel persist",
					zap.String("order_id", id), zap.Error(resErr))
			}
			return nil, errors.Wrap(err, "persist status")
		}

	case o.Status == StatusCancelled:
		if err := s.ledger.ReReserve(ctx, lines); err != nil {
			return nil, s.stockError(err, o.Items)
		}
		if err := s.orders.UpdateStatus(ctx, id, next); err != nil {
			if resErr := s.ledger.Restore(ctx, lines); resErr != nil {
				zctx.From(ctx).Error("restore after failed reactivation persist",
					zap.String("order_id", id), zap.Error(resErr))
			}
			return nil, errors.Wrap(err, "persist status")
		}

	default:
		if err := s.orders.UpdateStatus(ctx, id, next); err != nil {
			return nil, errors.Wrap(err, "persist status")
		}
	}

	o.Status = next
	return o, nil
}

// Dispatch hands the order over to the courier: creates the consignment,
// stores its ids and moves the order to Handed Over to Courier.
func (s *Service) Dispatch(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.ConsignmentID != "" {
		return nil, errors.Errorf("order %s already has consignment %s", id, o.ConsignmentID)
	}

	shipment, err := s.courier.CreateShipment(ctx, o)
	if err != nil {
		return nil, errors.Wrap(err, "create shipment")
	}

	if err := s.orders.UpdateShipment(ctx, id, shipment.ConsignmentID, shipment.TrackingCode); err != nil {
		return nil, errors.Wrap(err, "persist shipment")
	}

	o, err = s.ChangeStatus(ctx, id, StatusHandedOverToCourier)
	if err != nil {
		return nil, err
	}
	o.ConsignmentID = shipment.ConsignmentID
	o.TrackingCode = shipment.TrackingCode
	return o, nil
}

// AdjustShippingCharge is an administrative correction; the order total is
// re-derived from the stored subtotal and discount.
func (s *Service) AdjustShippingCharge(ctx context.Context, id string, charge decimal.Decimal) (*Order, error) {
	if charge.IsNegative() {
		return nil, errors.New("shipping charge must not be negative")
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	amount := o.Subtotal.Add(charge).Sub(o.Discount)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if err := s.orders.UpdateShippingCharge(ctx, id, charge, amount); err != nil {
		return nil, errors.Wrap(err, "persist shipping charge")
	}

	o.ShippingCharge = charge
	o.Amount = amount
	return o, nil
}

// Delete removes the order record. A non-Cancelled order still holds a
// stock reservation, which must be given back first.
func (s *Service) Delete(ctx context.Context, id string) error {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if o.Status != StatusCancelled {
		if err := s.ledger.Restore(ctx, o.reservationLines()); err != nil {
			return errors.Wrap(err, "restore stock")
		}
	}
	return s.orders.Delete(ctx, id)
}

// Get returns a single order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// List returns orders newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	return s.orders.List(ctx, f)
}

// stockError converts a ledger shortage into a customer-facing error that
// names the product, resolving ids against the order's line items.
func (s *Service) stockError(err error, items []LineItem) error {
	var isErr *inventory.InsufficientStockError
	if !errors.As(err, &isErr) {
		return errors.Wrap(err, "reserve stock")
	}
	for _, item := range items {
		if item.ProductID != isErr.ProductID {
			continue
		}
		if isErr.VariantID != "" && item.VariantID == isErr.VariantID {
			return &InsufficientStockError{ProductName: item.Name, VariantName: item.VariantName}
		}
		if isErr.VariantID == "" {
			return &InsufficientStockError{ProductName: item.Name}
		}
	}
	return &InsufficientStockError{ProductName: isErr.ProductID}
}
