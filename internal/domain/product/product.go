package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID              string
	SKU             string
	Name            string
	Description     string
	Category        string
	Price           decimal.Decimal
	DiscountedPrice *decimal.Decimal
	Images          []string
	Stock           int
	Available       bool
	Rating          Rating
}

// Rating holds the aggregate review score for a product. Average is the mean
// of all surviving review ratings rounded to one decimal, zero when Count is
// zero.
type Rating struct {
	Average decimal.Decimal
	Count   int
}

// EffectivePrice returns the price a buyer actually pays: the discounted
// price when one is set, otherwise the list price. Orders must always be
// priced through this method, never from client-supplied values.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountedPrice != nil {
		return *p.DiscountedPrice
	}
	return p.Price
}

// FirstImage returns the product's primary image, or "" when none exist.
// Order lines snapshot this value.
func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Sort orders accepted by List. Anything else falls back to SortNewest.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
)

// ListParams control catalog pagination, filtering, and ordering. Nil filter
// pointers mean "no constraint".
type ListParams struct {
	Search    string
	Category  string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	MinRating *decimal.Decimal
	Available *bool
	Sort      string
	Page      int
	PerPage   int
}

// Repository defines the catalog store operations. Stock mutations are
// expressed here so the storage layer can make them atomic: DecrementStock is
// a single conditional update that only applies when enough stock remains.
type Repository interface {
	List(ctx context.Context, params ListParams) ([]Product, int, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)

	// Categories returns the distinct catalog categories, sorted.
	Categories(ctx context.Context) ([]string, error)

	// TopRated returns up to limit reviewed products, best rated first.
	TopRated(ctx context.Context, limit int) ([]Product, error)

	// DecrementStock applies stock -= qty iff stock >= qty, reporting whether
	// the decrement happened. Two concurrent callers contending for the last
	// unit must observe exactly one true result.
	DecrementStock(ctx context.Context, id string, qty int) (bool, error)

	// IncrementStock restores previously reserved stock. It is unconditional:
	// every increment mirrors an earlier successful decrement.
	IncrementStock(ctx context.Context, id string, qty int) error

	// UpdateRating overwrites the aggregate rating fields.
	UpdateRating(ctx context.Context, id string, average decimal.Decimal, count int) error

	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
