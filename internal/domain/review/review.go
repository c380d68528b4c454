package review

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for review operations.
var (
	ErrNotFound        = errors.New("review not found")
	ErrAlreadyReviewed = errors.New("product already reviewed by this user")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrEmptyComment    = errors.New("comment required")
)

// MaxCommentLen bounds review comments.
const MaxCommentLen = 1000

// Review is one customer's opinion of one product. At most one review exists
// per (product, user) pair.
type Review struct {
	ID                string
	ProductID         string
	UserID            string
	Rating            int
	Comment           string
	VerifiedPurchase  bool
	Helpful           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Page controls review listing pagination.
type Page struct {
	Page    int
	PerPage int
}

// Repository defines persistence operations for reviews. AggregateForProduct
// computes the mean and count over all surviving reviews so the aggregation
// step can be recomputed idempotently at any time.
type Repository interface {
	Create(ctx context.Context, r *Review) error
	Update(ctx context.Context, r *Review) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Review, error)
	ListByProduct(ctx context.Context, productID string, page Page) ([]Review, int, error)

	// IncrementHelpful adds one helpful vote and returns the new count.
	IncrementHelpful(ctx context.Context, id string) (int, error)
	AggregateForProduct(ctx context.Context, productID string) (avg decimal.Decimal, count int, err error)
}
