// Command seed-db loads the product catalog and coupon set from JSON
// files into the database. Existing rows are updated in place, keeping
// live stock counters untouched unless --reset-stock is given.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/rodela-order-api/internal/storage/postgres"
)

type variantJSON struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Price      decimal.Decimal   `json:"price"`
	Stock      int64             `json:"stock"`
	SKU        string            `json:"sku,omitempty"`
	Image      string            `json:"image,omitempty"`
}

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug,omitempty"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	Category    string          `json:"category,omitempty"`
	Brand       string          `json:"brand,omitempty"`
	Stock       int64           `json:"stock"`
	Variants    []variantJSON   `json:"variants,omitempty"`
}

type couponJSON struct {
	Code              string           `json:"code"`
	Type              string           `json:"type"`
	Value             decimal.Decimal  `json:"value"`
	MinOrderValue     decimal.Decimal  `json:"minOrderValue"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount,omitempty"`
	ExpiresAt         *time.Time       `json:"expiresAt,omitempty"`
	UsageLimit        *int64           `json:"usageLimit,omitempty"`
	UsageLimitPerUser int64            `json:"usageLimitPerUser"`
	Active            bool             `json:"active"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		couponsFile  string
		resetStock   bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&couponsFile, "coupons-file", "db/seed/coupons.json", "path to coupons JSON file")
	flag.BoolVar(&resetStock, "reset-stock", false, "overwrite stock counters with seed values")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, couponsFile, resetStock); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, couponsFile string, resetStock bool) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile, resetStock); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool, couponsFile); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, path string, resetStock bool) error {
	slog.Info("reading products file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	stockExpr := `products.stock`
	if resetStock {
		stockExpr = `EXCLUDED.stock`
	}

	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (id, name, slug, description, price, image, category, brand, stock)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				name        = EXCLUDED.name,
				slug        = EXCLUDED.slug,
				description = EXCLUDED.description,
				price       = EXCLUDED.price,
				image       = EXCLUDED.image,
				category    = EXCLUDED.category,
				brand       = EXCLUDED.brand,
				stock       = `+stockExpr+`
		`, p.ID, p.Name, p.Slug, p.Description, p.Price, p.Image, p.Category, p.Brand, p.Stock)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		for _, v := range p.Variants {
			attrs, err := json.Marshal(v.Attributes)
			if err != nil {
				return errors.Wrapf(err, "marshal attributes of variant %s/%s", p.ID, v.ID)
			}
			if v.Attributes == nil {
				attrs = []byte(`{}`)
			}
			_, err = pool.Exec(ctx, `
				INSERT INTO product_variants (id, product_id, name, attributes, price, stock, sku, image)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (product_id, id) DO UPDATE SET
					name       = EXCLUDED.name,
					attributes = EXCLUDED.attributes,
					price      = EXCLUDED.price,
					sku        = EXCLUDED.sku,
					image      = EXCLUDED.image,
					stock      = `+variantStockExpr(resetStock)+`
			`, v.ID, p.ID, v.Name, attrs, v.Price, v.Stock, v.SKU, v.Image)
			if err != nil {
				return errors.Wrapf(err, "upsert variant %s/%s", p.ID, v.ID)
			}
		}
	}

	slog.Info("products seeded", slog.Int("count", len(products)))
	return nil
}

func variantStockExpr(resetStock bool) string {
	if resetStock {
		return `EXCLUDED.stock`
	}
	return `product_variants.stock`
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, path string) error {
	slog.Info("reading coupons file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read coupons file")
	}

	var coupons []couponJSON
	if err := json.Unmarshal(data, &coupons); err != nil {
		return errors.Wrap(err, "parse coupons JSON")
	}

	for _, c := range coupons {
		_, err := pool.Exec(ctx, `
			INSERT INTO coupons (code, discount_type, discount_value, min_order_value,
				max_discount_amount, expires_at, usage_limit, usage_limit_per_user, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (code) DO UPDATE SET
				discount_type        = EXCLUDED.discount_type,
				discount_value       = EXCLUDED.discount_value,
				min_order_value      = EXCLUDED.min_order_value,
				max_discount_amount  = EXCLUDED.max_discount_amount,
				expires_at           = EXCLUDED.expires_at,
				usage_limit          = EXCLUDED.usage_limit,
				usage_limit_per_user = EXCLUDED.usage_limit_per_user,
				active               = EXCLUDED.active
		`, c.Code, c.Type, c.Value, c.MinOrderValue, c.MaxDiscountAmount,
			c.ExpiresAt, c.UsageLimit, c.UsageLimitPerUser, c.Active)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
	}

	slog.Info("coupons seeded", slog.Int("count", len(coupons)))
	return nil
}
