package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rodela-order-api/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, name, slug, description, price, image, category, brand, stock`

// List returns the whole catalog with variants attached, ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}

	if err := r.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetByID returns a single product with its variants.
// Returns product.ErrNotFound when no matching product exists.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, product.ErrNotFound
	}

	if err := r.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// GetByIDs returns the products for the given ids, keyed by id. Missing
// ids are simply absent from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*product.Product, error) {
	if len(ids) == 0 {
		return map[string]*product.Product{}, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachVariants(ctx, products); err != nil {
		return nil, err
	}

	out := make(map[string]*product.Product, len(products))
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func scanProducts(rows pgx.Rows) ([]product.Product, error) {
	defer rows.Close()

	var products []product.Product
	for rows.Next() {
		var p product.Product
		err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.Image, &p.Category, &p.Brand, &p.Stock)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading products: %w", err)
	}
	return products, nil
}

// attachVariants loads the variants for every product in ps in one query.
func (r *ProductRepository) attachVariants(ctx context.Context, ps []product.Product) error {
	if len(ps) == 0 {
		return nil
	}

	ids := make([]string, len(ps))
	byID := make(map[string]*product.Product, len(ps))
	for i := range ps {
		ids[i] = ps[i].ID
		byID[ps[i].ID] = &ps[i]
	}

	rows, err := r.pool.Query(ctx, `
		SELECT product_id, id, name, attributes, price, stock, sku, image
		FROM product_variants
		WHERE product_id = ANY($1)
		ORDER BY product_id, id
	`, ids)
	if err != nil {
		return fmt.Errorf("listing product variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID string
			v         product.Variant
			attrs     []byte
		)
		if err := rows.Scan(&productID, &v.ID, &v.Name, &attrs, &v.Price, &v.Stock, &v.SKU, &v.Image); err != nil {
			return fmt.Errorf("scanning product variant: %w", err)
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &v.Attributes); err != nil {
				return fmt.Errorf("decoding variant attributes: %w", err)
			}
		}
		if p, ok := byID[productID]; ok {
			p.Variants = append(p.Variants, v)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "reading product variants")
	}
	return nil
}
