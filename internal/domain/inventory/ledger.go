// Package inventory contains the ledger that is the sole authority for
// mutating stock counters. Every decrement is a single conditional update
// issued to the store, so concurrent reservations for the same counter
// cannot both succeed when stock is short.
package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
)

// Line identifies one stock movement: a product counter and, when VariantID
// is set, the variant counter that moves in lockstep with it.
type Line struct {
	ProductID string
	VariantID string
	Quantity  int64
}

// InsufficientStockError reports the first line that failed a conditional
// decrement. The caller resolves the product name for user-facing messages.
type InsufficientStockError struct {
	ProductID string
	VariantID string
}

func (e *InsufficientStockError) Error() string {
	if e.VariantID != "" {
		return fmt.Sprintf("insufficient stock for product %s variant %s", e.ProductID, e.VariantID)
	}
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

// Store exposes the four atomic counter operations the ledger is built on.
// Decrements must be implemented as one conditional statement each
// ("decrement by N only if current >= N") and report ok=false when the
// condition does not hold. Increments are unconditional.
type Store interface {
	DecrementProductStock(ctx context.Context, productID string, qty int64) (bool, error)
	IncrementProductStock(ctx context.Context, productID string, qty int64) error
	DecrementVariantStock(ctx context.Context, productID, variantID string, qty int64) (bool, error)
	IncrementVariantStock(ctx context.Context, productID, variantID string, qty int64) error
}

// Ledger performs all-or-nothing stock reservations over a Store.
type Ledger struct {
	store Store
}

// NewLedger creates a Ledger backed by the given Store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// counterOp is one applied decrement, recorded so a failed reservation can
// be compensated.
type counterOp struct {
	productID string
	variantID string // empty for the product's global counter
	qty       int64
}

// Reserve atomically check-and-decrements every counter the lines touch.
// A line with a variant moves both the variant counter and the product's
// global counter. On the first failed decrement all already-applied
// decrements are compensated in reverse order and the whole reservation
// fails with *InsufficientStockError.
func (l *Ledger) Reserve(ctx context.Context, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}

	ordered := sortedLines(lines)

	var applied []counterOp
	for _, line := range ordered {
		if line.Quantity <= 0 {
			l.compensate(ctx, applied)
			return errors.Errorf("non-positive quantity %d for product %s", line.Quantity, line.ProductID)
		}

		if line.VariantID != "" {
			ok, err := l.store.DecrementVariantStock(ctx, line.ProductID, line.VariantID, line.Quantity)
			if err != nil {
				l.compensate(ctx, applied)
				return errors.Wrapf(err, "decrement variant %s/%s", line.ProductID, line.VariantID)
			}
			if !ok {
				l.compensate(ctx, applied)
				return &InsufficientStockError{ProductID: line.ProductID, VariantID: line.VariantID}
			}
			applied = append(applied, counterOp{productID: line.ProductID, variantID: line.VariantID, qty: line.Quantity})
		}

		ok, err := l.store.DecrementProductStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			l.compensate(ctx, applied)
			return errors.Wrapf(err, "decrement product %s", line.ProductID)
		}
		if !ok {
			l.compensate(ctx, applied)
			return &InsufficientStockError{ProductID: line.ProductID}
		}
		applied = append(applied, counterOp{productID: line.ProductID, qty: line.Quantity})
	}

	return nil
}

// Restore unconditionally increments the counters touched by lines back by
// the same quantities. Used when an order is cancelled or deleted.
func (l *Ledger) Restore(ctx context.Context, lines []Line) error {
	var firstErr error
	for _, line := range sortedLines(lines) {
		if line.VariantID != "" {
			if err := l.store.IncrementVariantStock(ctx, line.ProductID, line.VariantID, line.Quantity); err != nil && firstErr == nil {
				firstErr = errors.Wrapf(err, "restore variant %s/%s", line.ProductID, line.VariantID)
			}
		}
		if err := l.store.IncrementProductStock(ctx, line.ProductID, line.Quantity); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "restore product %s", line.ProductID)
		}
	}
	return firstErr
}

// ReReserve re-acquires the stock for an order leaving the Cancelled state.
// Semantics are identical to Reserve: if any counter now lacks stock the
// whole operation fails and every counter is left unchanged.
func (l *Ledger) ReReserve(ctx context.Context, lines []Line) error {
	return l.Reserve(ctx, lines)
}

// compensate rolls back applied decrements in reverse order. Failures are
// swallowed: there is nothing better to do mid-abort, and the conditional
// decrement already failed the reservation.
func (l *Ledger) compensate(ctx context.Context, applied []counterOp) {
	for i := len(applied) - 1; i >= 0; i-- {
		op := applied[i]
		if op.variantID != "" {
			_ = l.store.IncrementVariantStock(ctx, op.productID, op.variantID, op.qty)
			continue
		}
		_ = l.store.IncrementProductStock(ctx, op.productID, op.qty)
	}
}

// sortedLines returns a copy of lines ordered by (productID, variantID) so
// that concurrent multi-line reservations touch counters in the same order.
func sortedLines(lines []Line) []Line {
	ordered := make([]Line, len(lines))
	copy(ordered, lines)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ProductID != ordered[j].ProductID {
			return ordered[i].ProductID < ordered[j].ProductID
		}
		return ordered[i].VariantID < ordered[j].VariantID
	})
	return ordered
}
