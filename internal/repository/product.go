package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nuhin13/test-ecom/internal/domain/product"
)

const productColumns = `id, sku, name, description, category, price, discounted_price,
		images, stock, available, rating_average, rating_count`

// listProductsWhere is shared by the page query and its count so both always
// apply identical filters. Nil parameters disable the corresponding clause.
const listProductsWhere = `WHERE ($1 = '' OR category = $1)
		AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
		AND ($3::numeric IS NULL OR price >= $3)
		AND ($4::numeric IS NULL OR price <= $4)
		AND ($5::numeric IS NULL OR rating_average >= $5)
		AND ($6::boolean IS NULL OR available = $6)`

const (
	countProductsSQL = `SELECT count(*) FROM products ` + listProductsWhere

	categoriesSQL = `SELECT DISTINCT category FROM products
		WHERE category <> '' ORDER BY category`

	topRatedProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE rating_count > 0
		ORDER BY rating_average DESC, rating_count DESC, id
		LIMIT $1`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	// The stock guard and the decrement are one statement, so the storage
	// layer evaluates and applies them atomically: concurrent checkouts for
	// the last unit cannot both match the WHERE clause.
	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	incrementStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`

	updateRatingSQL = `UPDATE products SET rating_average = $2, rating_count = $3, updated_at = now()
		WHERE id = $1`

	insertProductSQL = `INSERT INTO products
		(id, sku, name, description, category, price, discounted_price, images, stock, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	upsertProductSQL = `INSERT INTO products
		(id, sku, name, description, category, price, discounted_price, images, stock, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description,
			category = EXCLUDED.category, price = EXCLUDED.price,
			discounted_price = EXCLUDED.discounted_price, images = EXCLUDED.images,
			stock = EXCLUDED.stock, available = EXCLUDED.available, updated_at = now()`

	updateProductSQL = `UPDATE products SET
		sku = $2, name = $3, description = $4, category = $5, price = $6,
		discounted_price = $7, images = $8, stock = $9, available = $10, updated_at = now()
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	skuUpsertedSinceSQL = `SELECT EXISTS (
		SELECT 1 FROM products WHERE sku = $1 AND updated_at >= $2)`
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

// listOrderClause maps a sort name onto a whitelisted ORDER BY. The sort
// value never reaches the SQL text as-is.
func listOrderClause(sort string) string {
	switch sort {
	case product.SortPriceAsc:
		return `ORDER BY price ASC, id`
	case product.SortPriceDesc:
		return `ORDER BY price DESC, id`
	case product.SortRating:
		return `ORDER BY rating_average DESC, rating_count DESC, id`
	default:
		return `ORDER BY created_at DESC, id`
	}
}

// List returns a catalog page plus the total match count.
func (r *ProductRepository) List(ctx context.Context, params product.ListParams) ([]product.Product, int, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage < 1 {
		params.PerPage = 10
	}
	offset := (params.Page - 1) * params.PerPage

	args := []any{
		params.Category, params.Search,
		nullableDecimal(params.MinPrice), nullableDecimal(params.MaxPrice),
		nullableDecimal(params.MinRating), params.Available,
	}

	query := `SELECT ` + productColumns + ` FROM products ` + listProductsWhere + `
		` + listOrderClause(params.Sort) + `
		LIMIT $7 OFFSET $8`

	rows, err := r.pool.Query(ctx, query, append(args, params.PerPage, offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list products")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countProductsSQL, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count products")
	}
	return products, total, nil
}

// Categories returns the distinct non-empty categories in the catalog.
func (r *ProductRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, categoriesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	categories, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var c string
		err := row.Scan(&c)
		return c, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return categories, nil
}

// TopRated returns up to limit reviewed products, best rated first. Products
// without reviews never appear.
func (r *ProductRepository) TopRated(ctx context.Context, limit int) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, topRatedProductsSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list top rated products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs in one batch read.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// DecrementStock conditionally reserves qty units, reporting whether the
// reservation happened.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) (bool, error) {
	tag, err := r.pool.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return false, errors.Wrapf(err, "decrement stock for product %q", id)
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementStock restores qty units unconditionally.
func (r *ProductRepository) IncrementStock(ctx context.Context, id string, qty int) error {
	if _, err := r.pool.Exec(ctx, incrementStockSQL, id, qty); err != nil {
		return errors.Wrapf(err, "increment stock for product %q", id)
	}
	return nil
}

// UpdateRating overwrites the aggregate rating fields.
func (r *ProductRepository) UpdateRating(ctx context.Context, id string, average decimal.Decimal, count int) error {
	if _, err := r.pool.Exec(ctx, updateRatingSQL, id, average, count); err != nil {
		return errors.Wrapf(err, "update rating for product %q", id)
	}
	return nil
}

// Create inserts a new catalog entry.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, insertProductSQL,
		p.ID, p.SKU, p.Name, p.Description, p.Category,
		p.Price, nullableDecimal(p.DiscountedPrice), p.Images, p.Stock, p.Available,
	)
	if err != nil {
		return errors.Wrapf(err, "create product %q", p.ID)
	}
	return nil
}

// Upsert inserts a catalog entry or, when the SKU already exists, rewrites
// everything but the identifier. Used by seeding and bulk import tooling.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.SKU, p.Name, p.Description, p.Category,
		p.Price, nullableDecimal(p.DiscountedPrice), p.Images, p.Stock, p.Available,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.SKU)
	}
	return nil
}

// UpsertBatch upserts a slice of products in a single round trip.
func (r *ProductRepository) UpsertBatch(ctx context.Context, products []product.Product) error {
	batch := &pgx.Batch{}
	for i := range products {
		p := &products[i]
		batch.Queue(upsertProductSQL,
			p.ID, p.SKU, p.Name, p.Description, p.Category,
			p.Price, nullableDecimal(p.DiscountedPrice), p.Images, p.Stock, p.Available,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for i := range products {
		if _, err := results.Exec(); err != nil {
			return errors.Wrapf(err, "upsert product %q", products[i].SKU)
		}
	}
	return nil
}

// SKUUpsertedSince reports whether a row with the given SKU was written at or
// after the given instant. Every upsert touches updated_at, so bulk import
// runs use this as the exact membership check behind their bloom filter.
func (r *ProductRepository) SKUUpsertedSince(ctx context.Context, sku string, since time.Time) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, skuUpsertedSinceSQL, sku, since).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "check sku %q", sku)
	}
	return exists, nil
}

// Update rewrites all mutable catalog fields.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.SKU, p.Name, p.Description, p.Category,
		p.Price, nullableDecimal(p.DiscountedPrice), p.Images, p.Stock, p.Available,
	)
	if err != nil {
		return errors.Wrapf(err, "update product %q", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a catalog entry.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p          product.Product
		discounted decimal.NullDecimal
		avg        decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category,
		&p.Price, &discounted, &p.Images, &p.Stock, &p.Available,
		&avg, &p.Rating.Count,
	)
	if discounted.Valid {
		d := discounted.Decimal
		p.DiscountedPrice = &d
	}
	p.Rating.Average = avg
	return p, err
}

func nullableDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
