package handler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xenking/rodela-order-api/internal/domain/coupon"
	"github.com/xenking/rodela-order-api/internal/domain/order"
	"github.com/xenking/rodela-order-api/internal/domain/product"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// writeError maps domain errors onto the API error taxonomy. Unknown
// errors become an opaque 500 so internals never leak to customers.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		blocked      *order.BlockedError
		insufficient *order.InsufficientStockError
		badQuantity  *order.InvalidQuantityError
		noVariant    *order.VariantNotFoundError
		perUser      *coupon.PerUserLimitError
		belowMin     *coupon.BelowMinimumError
	)
	switch {
	case errors.As(err, &blocked):
		writeErrorMessage(w, http.StatusForbidden, blocked.Error())
	case errors.As(err, &insufficient):
		writeErrorMessage(w, http.StatusConflict, insufficient.Error())
	case errors.Is(err, order.ErrDuplicateID):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "order not found")
	case errors.Is(err, product.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "product not found")
	case errors.Is(err, coupon.ErrInvalidCoupon):
		writeErrorMessage(w, http.StatusNotFound, coupon.ErrInvalidCoupon.Error())
	case errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrUsageLimitReached),
		errors.As(err, &perUser),
		errors.As(err, &belowMin):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrEmptyItems),
		errors.As(err, &badQuantity),
		errors.As(err, &noVariant):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case isUnavailable(err):
		zctx.From(ctx).Error("Backing store unavailable", zap.Error(err))
		writeErrorMessage(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

// isUnavailable reports whether err looks like a transient infrastructure
// failure rather than a business rejection. Class 08 is the PostgreSQL
// connection-exception family.
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
