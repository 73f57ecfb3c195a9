// Package handler exposes the HTTP API. Request decoding and error
// mapping live here; all business rules stay behind the domain services.
package handler

import (
	"net/http"

	"github.com/xenking/rodela-order-api/internal/domain/blacklist"
	"github.com/xenking/rodela-order-api/internal/domain/coupon"
	"github.com/xenking/rodela-order-api/internal/domain/order"
	"github.com/xenking/rodela-order-api/internal/domain/product"
)

// Handler serves the order-fulfillment API, delegating business logic to
// the injected domain services.
type Handler struct {
	orders    *order.Service
	products  product.Repository
	coupons   *coupon.Validator
	blacklist *blacklist.Gate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders *order.Service,
	products product.Repository,
	coupons *coupon.Validator,
	gate *blacklist.Gate,
) *Handler {
	return &Handler{
		orders:    orders,
		products:  products,
		coupons:   coupons,
		blacklist: gate,
	}
}

// Routes registers every API route on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.changeOrderStatus)
	mux.HandleFunc("POST /api/orders/{id}/dispatch", h.dispatchOrder)
	mux.HandleFunc("PATCH /api/orders/{id}/shipping", h.adjustShippingCharge)
	mux.HandleFunc("DELETE /api/orders/{id}", h.deleteOrder)

	mux.HandleFunc("POST /api/coupons/validate", h.validateCoupon)

	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)

	mux.HandleFunc("GET /api/blacklist", h.listBlacklist)
	mux.HandleFunc("POST /api/blacklist", h.addBlacklistEntry)
	mux.HandleFunc("DELETE /api/blacklist/{phone}", h.removeBlacklistEntry)

	return mux
}
