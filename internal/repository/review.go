package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nuhin13/test-ecom/internal/domain/review"
)

const reviewColumns = `id, product_id, user_id, rating, comment,
		verified_purchase, helpful, created_at, updated_at`

const (
	insertReviewSQL = `INSERT INTO reviews
		(id, product_id, user_id, rating, comment, verified_purchase)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateReviewSQL = `UPDATE reviews SET rating = $2, comment = $3, updated_at = now()
		WHERE id = $1`

	deleteReviewSQL = `DELETE FROM reviews WHERE id = $1`

	getReviewByIDSQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	listReviewsByProductSQL = `SELECT ` + reviewColumns + ` FROM reviews
		WHERE product_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	countReviewsByProductSQL = `SELECT count(*) FROM reviews WHERE product_id = $1`

	incrementHelpfulSQL = `UPDATE reviews SET helpful = helpful + 1, updated_at = now()
		WHERE id = $1
		RETURNING helpful`

	aggregateReviewsSQL = `SELECT COALESCE(AVG(rating), 0), count(*)
		FROM reviews WHERE product_id = $1`
)

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository implements review.Repository backed by PostgreSQL.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository returns a ReviewRepository that uses the given pool.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Create inserts a review, mapping the one-review-per-product-per-user
// constraint onto review.ErrAlreadyReviewed.
func (r *ReviewRepository) Create(ctx context.Context, rev *review.Review) error {
	_, err := r.pool.Exec(ctx, insertReviewSQL,
		rev.ID, rev.ProductID, rev.UserID, rev.Rating, rev.Comment, rev.VerifiedPurchase,
	)
	if err != nil {
		if isUniqueViolation(err, "reviews_product_id_user_id_key") {
			return review.ErrAlreadyReviewed
		}
		return errors.Wrapf(err, "create review %q", rev.ID)
	}
	return nil
}

// Update rewrites the mutable review fields.
func (r *ReviewRepository) Update(ctx context.Context, rev *review.Review) error {
	tag, err := r.pool.Exec(ctx, updateReviewSQL, rev.ID, rev.Rating, rev.Comment)
	if err != nil {
		return errors.Wrapf(err, "update review %q", rev.ID)
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}

// Delete removes a review.
func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteReviewSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete review %q", id)
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}

// GetByID returns a single review by its identifier.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*review.Review, error) {
	rows, err := r.pool.Query(ctx, getReviewByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get review %q", id)
	}

	rev, err := pgx.CollectExactlyOneRow(rows, scanReview)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, review.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get review %q", id)
	}
	return &rev, nil
}

// ListByProduct returns a page of a product's reviews, newest first, plus the
// total count.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, page review.Page) ([]review.Review, int, error) {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PerPage < 1 {
		page.PerPage = 10
	}
	offset := (page.Page - 1) * page.PerPage

	rows, err := r.pool.Query(ctx, listReviewsByProductSQL, productID, page.PerPage, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list reviews")
	}
	reviews, err := pgx.CollectRows(rows, scanReview)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list reviews")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countReviewsByProductSQL, productID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count reviews")
	}
	return reviews, total, nil
}

// IncrementHelpful adds one helpful vote atomically, returning the new count.
func (r *ReviewRepository) IncrementHelpful(ctx context.Context, id string) (int, error) {
	var helpful int
	err := r.pool.QueryRow(ctx, incrementHelpfulSQL, id).Scan(&helpful)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, review.ErrNotFound
		}
		return 0, errors.Wrapf(err, "increment helpful for review %q", id)
	}
	return helpful, nil
}

// AggregateForProduct computes the mean rating and review count over all
// surviving reviews of the product.
func (r *ReviewRepository) AggregateForProduct(ctx context.Context, productID string) (decimal.Decimal, int, error) {
	var (
		avg   decimal.Decimal
		count int
	)
	if err := r.pool.QueryRow(ctx, aggregateReviewsSQL, productID).Scan(&avg, &count); err != nil {
		return decimal.Zero, 0, errors.Wrapf(err, "aggregate reviews for product %q", productID)
	}
	return avg, count, nil
}

func scanReview(row pgx.CollectableRow) (review.Review, error) {
	var rev review.Review
	err := row.Scan(
		&rev.ID, &rev.ProductID, &rev.UserID, &rev.Rating, &rev.Comment,
		&rev.VerifiedPurchase, &rev.Helpful, &rev.CreatedAt, &rev.UpdatedAt,
	)
	return rev, err
}
