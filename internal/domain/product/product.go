package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Stock is the
// global fallback counter; variants carry their own independent counters.
type Product struct {
	ID          string
	Name        string
	Slug        string
	Description string
	Price       decimal.Decimal
	Image       string
	Category    string
	Brand       string
	Stock       int64
	Variants    []Variant
}

// Variant is a specific attribute combination of a product (e.g. Size=M)
// with its own price and stock.
type Variant struct {
	ID         string
	Name       string
	Attributes map[string]string
	Price      decimal.Decimal
	Stock      int64
	SKU        string
	Image      string
}

// Variant returns the variant with the given id, or nil when the product
// has no such variant.
func (p *Product) Variant(id string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products for the given ids, keyed by id.
	// Missing ids are simply absent from the result.
	GetByIDs(ctx context.Context, ids []string) (map[string]*Product, error)
}
