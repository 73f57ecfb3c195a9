package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rodela-order-api/internal/domain/blacklist"
	"github.com/xenking/rodela-order-api/internal/domain/coupon"
	"github.com/xenking/rodela-order-api/internal/domain/inventory"
	"github.com/xenking/rodela-order-api/internal/domain/order"
	"github.com/xenking/rodela-order-api/internal/domain/product"
)

// --- In-memory fakes wiring a full service stack ---

type fakeProductRepo struct {
	byID map[string]*product.Product
}

func (f *fakeProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (f *fakeProductRepo) GetByIDs(_ context.Context, ids []string) (map[string]*product.Product, error) {
	out := make(map[string]*product.Product, len(ids))
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeInvStore struct {
	mu    sync.Mutex
	stock map[string]int64 // key: productID or productID/variantID
}

func (f *fakeInvStore) dec(key string, qty int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stock[key] < qty {
		return false
	}
	f.stock[key] -= qty
	return true
}

func (f *fakeInvStore) inc(key string, qty int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[key] += qty
}

func (f *fakeInvStore) DecrementProductStock(_ context.Context, id string, qty int64) (bool, error) {
	return f.dec(id, qty), nil
}

func (f *fakeInvStore) IncrementProductStock(_ context.Context, id string, qty int64) error {
	f.inc(id, qty)
	return nil
}

func (f *fakeInvStore) DecrementVariantStock(_ context.Context, pid, vid string, qty int64) (bool, error) {
	return f.dec(pid+"/"+vid, qty), nil
}

func (f *fakeInvStore) IncrementVariantStock(_ context.Context, pid, vid string, qty int64) error {
	f.inc(pid+"/"+vid, qty)
	return nil
}

type fakeOrderRepo struct {
	byID map[string]*order.Order
}

func (f *fakeOrderRepo) Create(_ context.Context, o *order.Order) error {
	if _, ok := f.byID[o.ID]; ok {
		return order.ErrDuplicateID
	}
	cp := *o
	f.byID[o.ID] = &cp
	return nil
}

func (f *fakeOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderRepo) List(_ context.Context, filter order.ListFilter) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.byID {
		if filter.Phone != "" && o.Phone != filter.Phone {
			continue
		}
		if filter.Email != "" && o.Email != filter.Email {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrderRepo) UpdateStatus(_ context.Context, id string, status order.Status) error {
	o, ok := f.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	return nil
}

func (f *fakeOrderRepo) UpdateShipment(_ context.Context, id, consignmentID, trackingCode string) error {
	o, ok := f.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	o.ConsignmentID, o.TrackingCode = consignmentID, trackingCode
	return nil
}

func (f *fakeOrderRepo) UpdateShippingCharge(_ context.Context, id string, charge, amount decimal.Decimal) error {
	o, ok := f.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	o.ShippingCharge, o.Amount = charge, amount
	return nil
}

func (f *fakeOrderRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return order.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeOrderRepo) CountRedemptions(_ context.Context, phone, code string) (int64, error) {
	var n int64
	for _, o := range f.byID {
		if o.Phone == phone && o.CouponCode == code && o.Status != order.StatusCancelled {
			n++
		}
	}
	return n, nil
}

type fakeCouponRepo struct {
	byCode map[string]*coupon.Coupon
}

func (f *fakeCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := f.byCode[coupon.Normalize(code)]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return c, nil
}

func (f *fakeCouponRepo) IncrementUsed(_ context.Context, code string) error {
	c, ok := f.byCode[coupon.Normalize(code)]
	if !ok {
		return coupon.ErrInvalidCoupon
	}
	c.UsedCount++
	return nil
}

type fakeBlacklistRepo struct {
	byPhone map[string]blacklist.Entry
}

func (f *fakeBlacklistRepo) FindByPhone(_ context.Context, phone string) (*blacklist.Entry, error) {
	e, ok := f.byPhone[phone]
	if !ok {
		return nil, blacklist.ErrNotFound
	}
	return &e, nil
}

func (f *fakeBlacklistRepo) List(_ context.Context) ([]blacklist.Entry, error) {
	out := make([]blacklist.Entry, 0, len(f.byPhone))
	for _, e := range f.byPhone {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeBlacklistRepo) Add(_ context.Context, e blacklist.Entry) error {
	f.byPhone[e.Phone] = e
	return nil
}

func (f *fakeBlacklistRepo) Remove(_ context.Context, phone string) error {
	delete(f.byPhone, phone)
	return nil
}

type fakeCourier struct{}

func (fakeCourier) CreateShipment(_ context.Context, o *order.Order) (*order.Shipment, error) {
	return &order.Shipment{ConsignmentID: "CN-" + o.ID, TrackingCode: "TRACK"}, nil
}

type noopEffects struct{}

func (noopEffects) OrderCommitted(context.Context, *order.Order) error { return nil }

// --- Fixture ---

type fixture struct {
	handler   http.Handler
	orders    *fakeOrderRepo
	blacklist *fakeBlacklistRepo
	inv       *fakeInvStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := &fakeProductRepo{byID: map[string]*product.Product{
		"prod-1": {
			ID:    "prod-1",
			Name:  "Premium Panjabi",
			Price: decimal.NewFromInt(650),
			Stock: 10,
			Variants: []product.Variant{
				{ID: "var-l", Name: "L", Price: decimal.NewFromInt(700), Stock: 4},
			},
		},
	}}
	inv := &fakeInvStore{stock: map[string]int64{
		"prod-1":       10,
		"prod-1/var-l": 4,
	}}
	coupons := &fakeCouponRepo{byCode: map[string]*coupon.Coupon{
		"SAVE10": {
			Code:              "SAVE10",
			Type:              coupon.DiscountPercentage,
			Value:             decimal.NewFromInt(10),
			UsageLimitPerUser: 1,
			Active:            true,
		},
	}}
	blRepo := &fakeBlacklistRepo{byPhone: map[string]blacklist.Entry{
		"01999999999": {Phone: "01999999999", Reason: "fake orders"},
	}}
	gate, err := blacklist.NewGate(context.Background(), blRepo)
	require.NoError(t, err)

	orders := &fakeOrderRepo{byID: map[string]*order.Order{}}
	validator := coupon.NewValidator(coupons, orders)
	svc := order.NewService(
		gate,
		products,
		validator,
		inventory.NewLedger(inv),
		orders,
		fakeCourier{},
		noopEffects{},
	)

	h := NewHandler(svc, products, validator, gate)
	return &fixture{
		handler:   h.Routes(),
		orders:    orders,
		blacklist: blRepo,
		inv:       inv,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func validCreateBody() map[string]any {
	return map[string]any{
		"name":    "Rahim Uddin",
		"phone":   "01712345678",
		"address": "House 12, Dhanmondi, Dhaka",
		"items": []map[string]any{
			{"productId": "prod-1", "variantId": "var-l", "quantity": 2},
		},
		"shippingCharge": 60,
	}
}

// --- Tests ---

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orders", validCreateBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeJSON[orderResponse](t, rec)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, string(order.StatusPending), resp.Status)
	assert.True(t, resp.Subtotal.Equal(decimal.NewFromInt(1400)), "subtotal %s", resp.Subtotal)
	assert.True(t, resp.Amount.Equal(decimal.NewFromInt(1460)), "amount %s", resp.Amount)

	// Both the variant and the product counter moved.
	assert.Equal(t, int64(2), f.inv.stock["prod-1/var-l"])
	assert.Equal(t, int64(8), f.inv.stock["prod-1"])
}

func TestCreateOrderWithCoupon(t *testing.T) {
	f := newFixture(t)

	body := validCreateBody()
	body["couponCode"] = "save10"
	rec := f.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeJSON[orderResponse](t, rec)
	assert.Equal(t, "SAVE10", resp.CouponCode)
	assert.True(t, resp.Discount.Equal(decimal.NewFromInt(140)), "discount %s", resp.Discount)
	assert.True(t, resp.Amount.Equal(decimal.NewFromInt(1320)), "amount %s", resp.Amount)
}

func TestCreateOrderBlockedPhone(t *testing.T) {
	f := newFixture(t)

	body := validCreateBody()
	body["phone"] = "01999999999"
	rec := f.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	resp := decodeJSON[errorResponse](t, rec)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Contains(t, resp.Message, "blacklisted")
	assert.Contains(t, resp.Message, "fake orders")
	// No stock moved for the rejected order.
	assert.Equal(t, int64(10), f.inv.stock["prod-1"])
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	f := newFixture(t)

	body := validCreateBody()
	body["items"] = []map[string]any{
		{"productId": "prod-1", "variantId": "var-l", "quantity": 5},
	}
	rec := f.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decodeJSON[errorResponse](t, rec)
	assert.Contains(t, resp.Message, "Premium Panjabi")
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader([]byte("{")))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing contact fields", func(t *testing.T) {
		body := validCreateBody()
		delete(body, "phone")
		rec := f.do(t, http.MethodPost, "/api/orders", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty items", func(t *testing.T) {
		body := validCreateBody()
		body["items"] = []map[string]any{}
		rec := f.do(t, http.MethodPost, "/api/orders", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown coupon", func(t *testing.T) {
		body := validCreateBody()
		body["couponCode"] = "NOPE"
		rec := f.do(t, http.MethodPost, "/api/orders", body)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetAndListOrders(t *testing.T) {
	f := newFixture(t)

	created := decodeJSON[orderResponse](t, f.do(t, http.MethodPost, "/api/orders", validCreateBody()))

	rec := f.do(t, http.MethodGet, "/api/orders/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[orderResponse](t, rec)
	assert.Equal(t, created.ID, got.ID)

	rec = f.do(t, http.MethodGet, "/api/orders?phone=01712345678", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[[]orderResponse](t, rec)
	require.Len(t, list, 1)

	rec = f.do(t, http.MethodGet, "/api/orders?phone=01800000000", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/orders/ORD-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangeOrderStatus(t *testing.T) {
	f := newFixture(t)
	created := decodeJSON[orderResponse](t, f.do(t, http.MethodPost, "/api/orders", validCreateBody()))

	rec := f.do(t, http.MethodPatch, "/api/orders/"+created.ID+"/status", map[string]string{"status": "Packaging"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Packaging", decodeJSON[orderResponse](t, rec).Status)

	rec = f.do(t, http.MethodPatch, "/api/orders/"+created.ID+"/status", map[string]string{"status": "Shipped"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	created := decodeJSON[orderResponse](t, f.do(t, http.MethodPost, "/api/orders", validCreateBody()))
	require.Equal(t, int64(8), f.inv.stock["prod-1"])

	rec := f.do(t, http.MethodPatch, "/api/orders/"+created.ID+"/status", map[string]string{"status": "Cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(10), f.inv.stock["prod-1"])
	assert.Equal(t, int64(4), f.inv.stock["prod-1/var-l"])
}

func TestDispatchOrder(t *testing.T) {
	f := newFixture(t)
	created := decodeJSON[orderResponse](t, f.do(t, http.MethodPost, "/api/orders", validCreateBody()))

	rec := f.do(t, http.MethodPost, "/api/orders/"+created.ID+"/dispatch", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[orderResponse](t, rec)
	assert.Equal(t, "CN-"+created.ID, resp.ConsignmentID)
	assert.Equal(t, "TRACK", resp.TrackingCode)
	assert.Equal(t, string(order.StatusHandedOverToCourier), resp.Status)
}

func TestAdjustShippingCharge(t *testing.T) {
	f := newFixture(t)
	created := decodeJSON[orderResponse](t, f.do(t, http.MethodPost, "/api/orders", validCreateBody()))

	rec := f.do(t, http.MethodPatch, "/api/orders/"+created.ID+"/shipping", map[string]any{"shippingCharge": 120})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[orderResponse](t, rec)
	assert.True(t, resp.ShippingCharge.Equal(decimal.NewFromInt(120)))
	assert.True(t, resp.Amount.Equal(decimal.NewFromInt(1520)), "amount %s", resp.Amount)

	rec = f.do(t, http.MethodPatch, "/api/orders/"+created.ID+"/shipping", map[string]any{"shippingCharge": -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	created := decodeJSON[orderResponse](t, f.do(t, http.MethodPost, "/api/orders", validCreateBody()))

	rec := f.do(t, http.MethodDelete, "/api/orders/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	// Deleting an active order returns its reservation.
	assert.Equal(t, int64(10), f.inv.stock["prod-1"])

	rec = f.do(t, http.MethodDelete, "/api/orders/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateCoupon(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/coupons/validate", map[string]any{
		"code":      "save10",
		"cartTotal": 1000,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[validateCouponResponse](t, rec)
	assert.True(t, resp.Valid)
	assert.Equal(t, "SAVE10", resp.Code)
	assert.Equal(t, string(coupon.DiscountPercentage), resp.Type)
	assert.True(t, resp.Discount.Equal(decimal.NewFromInt(100)), "discount %s", resp.Discount)

	rec = f.do(t, http.MethodPost, "/api/coupons/validate", map[string]any{
		"code":      "NOPE",
		"cartTotal": 1000,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/coupons/validate", map[string]any{"cartTotal": 1000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[[]productResponse](t, rec)
	require.Len(t, list, 1)
	assert.True(t, list[0].InStock)
	require.Len(t, list[0].Variants, 1)

	rec = f.do(t, http.MethodGet, "/api/products/prod-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Premium Panjabi", decodeJSON[productResponse](t, rec).Name)

	rec = f.do(t, http.MethodGet, "/api/products/prod-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlacklistEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/blacklist", map[string]string{
		"phone":  "01811111111",
		"reason": "repeated refusals",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/blacklist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeJSON[[]blacklistEntryResponse](t, rec)
	require.Len(t, entries, 2)

	// The freshly added phone is rejected immediately.
	body := validCreateBody()
	body["phone"] = "01811111111"
	rec = f.do(t, http.MethodPost, "/api/orders", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/blacklist/01811111111", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders", body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/blacklist", map[string]string{"reason": "no phone"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateOrderIDConflict(t *testing.T) {
	f := newFixture(t)

	body := validCreateBody()
	body["id"] = "ORD-SAME"
	rec := f.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
