package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/rodela-order-api/internal/domain/order"
)

type orderItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int64  `json:"quantity"`
}

type createOrderRequest struct {
	ID             string             `json:"id,omitempty"`
	Name           string             `json:"name"`
	Phone          string             `json:"phone"`
	Email          string             `json:"email,omitempty"`
	Address        string             `json:"address"`
	Items          []orderItemRequest `json:"items"`
	CouponCode     string             `json:"couponCode,omitempty"`
	ShippingCharge decimal.Decimal    `json:"shippingCharge"`
}

type orderResponse struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Phone          string           `json:"phone"`
	Email          string           `json:"email,omitempty"`
	Address        string           `json:"address"`
	Status         string           `json:"status"`
	Items          []order.LineItem `json:"items"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	ShippingCharge decimal.Decimal  `json:"shippingCharge"`
	Discount       decimal.Decimal  `json:"discount"`
	Amount         decimal.Decimal  `json:"amount"`
	CouponCode     string           `json:"couponCode,omitempty"`
	ConsignmentID  string           `json:"consignmentId,omitempty"`
	TrackingCode   string           `json:"trackingCode,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:             o.ID,
		Name:           o.CustomerName,
		Phone:          o.Phone,
		Email:          o.Email,
		Address:        o.Address,
		Status:         string(o.Status),
		Items:          o.Items,
		Subtotal:       o.Subtotal,
		ShippingCharge: o.ShippingCharge,
		Discount:       o.Discount,
		Amount:         o.Amount,
		CouponCode:     o.CouponCode,
		ConsignmentID:  o.ConsignmentID,
		TrackingCode:   o.TrackingCode,
		CreatedAt:      o.CreatedAt,
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Phone == "" || req.Address == "" {
		writeErrorMessage(w, http.StatusBadRequest, "name, phone and address are required")
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.ItemRequest{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		}
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		ID:             req.ID,
		CustomerName:   req.Name,
		Phone:          req.Phone,
		Email:          req.Email,
		Address:        req.Address,
		Items:          items,
		CouponCode:     req.CouponCode,
		ShippingCharge: req.ShippingCharge,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), order.ListFilter{
		Phone: r.URL.Query().Get("phone"),
		Email: r.URL.Query().Get("email"),
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) changeOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.ChangeStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) dispatchOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Dispatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) adjustShippingCharge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShippingCharge decimal.Decimal `json:"shippingCharge"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ShippingCharge.IsNegative() {
		writeErrorMessage(w, http.StatusBadRequest, "shipping charge cannot be negative")
		return
	}

	o, err := h.orders.AdjustShippingCharge(r.Context(), r.PathValue("id"), req.ShippingCharge)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
