package handler

import (
	"net/http"

	"github.com/xenking/rodela-order-api/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	out := make([]productResponse, len(products))
	for i := range products {
		out[i] = toProductResponse(&products[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

type productResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug,omitempty"`
	Description string            `json:"description,omitempty"`
	Price       string            `json:"price"`
	Image       string            `json:"image,omitempty"`
	Category    string            `json:"category,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	InStock     bool              `json:"inStock"`
	Variants    []variantResponse `json:"variants,omitempty"`
}

type variantResponse struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Price      string            `json:"price"`
	InStock    bool              `json:"inStock"`
	SKU        string            `json:"sku,omitempty"`
	Image      string            `json:"image,omitempty"`
}

// toProductResponse exposes stock only as a boolean availability flag.
func toProductResponse(p *product.Product) productResponse {
	variants := make([]variantResponse, len(p.Variants))
	for i, v := range p.Variants {
		variants[i] = variantResponse{
			ID:         v.ID,
			Name:       v.Name,
			Attributes: v.Attributes,
			Price:      v.Price.String(),
			InStock:    v.Stock > 0,
			SKU:        v.SKU,
			Image:      v.Image,
		}
	}
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       p.Price.String(),
		Image:       p.Image,
		Category:    p.Category,
		Brand:       p.Brand,
		InStock:     p.Stock > 0,
		Variants:    variants,
	}
}
