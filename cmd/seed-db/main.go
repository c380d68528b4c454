// Command seed-db loads the sample product catalog into the database. It is
// idempotent: re-running updates existing rows by SKU.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nuhin13/test-ecom/internal/domain/product"
	"github.com/nuhin13/test-ecom/internal/repository"
)

type productJSON struct {
	SKU             string           `json:"sku"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Category        string           `json:"category"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price"`
	Images          []string         `json:"images"`
	Stock           int              `json:"stock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("ECOM_DATABASE_URL")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seedProducts(ctx, repository.NewProductRepository(pool), productsFile)
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		entry := product.Product{
			ID:              uuid.New().String(),
			SKU:             p.SKU,
			Name:            p.Name,
			Description:     p.Description,
			Category:        p.Category,
			Price:           p.Price,
			DiscountedPrice: p.DiscountedPrice,
			Images:          p.Images,
			Stock:           p.Stock,
			Available:       true,
		}
		if err := repo.Upsert(ctx, &entry); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.SKU)
		}

		slog.Info("upserted product", slog.String("sku", p.SKU), slog.String("name", p.Name))
	}

	return nil
}
