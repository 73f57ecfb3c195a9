package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
)

type validateCouponRequest struct {
	Code           string          `json:"code"`
	CartTotal      decimal.Decimal `json:"cartTotal"`
	ShippingCharge decimal.Decimal `json:"shippingCharge"`
	CustomerPhone  string          `json:"customerPhone,omitempty"`
}

type validateCouponResponse struct {
	Valid    bool            `json:"valid"`
	Code     string          `json:"code"`
	Type     string          `json:"type"`
	Discount decimal.Decimal `json:"discount"`
}

// validateCoupon is a dry run: it reports the discount a code would yield
// without consuming a use. Redemption happens only when an order commits.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeErrorMessage(w, http.StatusBadRequest, "coupon code is required")
		return
	}

	v, err := h.coupons.Validate(r.Context(), req.Code, req.CartTotal, req.ShippingCharge, req.CustomerPhone)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateCouponResponse{
		Valid:    true,
		Code:     v.Code,
		Type:     string(v.Type),
		Discount: v.Discount,
	})
}
