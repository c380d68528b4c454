package review

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nuhin13/test-ecom/internal/domain/product"
)

// PurchaseChecker reports whether a user has a delivered order containing a
// given product. It drives the verified-purchase flag.
type PurchaseChecker interface {
	HasDeliveredOrder(ctx context.Context, userID, productID string) (bool, error)
}

// CreateRequest holds the input for writing a review.
type CreateRequest struct {
	ProductID string
	UserID    string
	Rating    int
	Comment   string
}

// Service implements review mutations. Every mutation ends with an explicit,
// synchronous recompute of the product's aggregate rating; the dependency is
// part of this service's contract rather than a storage-layer trigger.
type Service struct {
	reviews   Repository
	products  product.Repository
	purchases PurchaseChecker
}

// NewService creates a review Service.
func NewService(reviews Repository, products product.Repository, purchases PurchaseChecker) *Service {
	return &Service{
		reviews:   reviews,
		products:  products,
		purchases: purchases,
	}
}

func validate(rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return ErrEmptyComment
	}
	if len(comment) > MaxCommentLen {
		return errors.Errorf("comment exceeds %d characters", MaxCommentLen)
	}
	return nil
}

// Create writes a new review and recomputes the product's rating. A second
// review by the same user for the same product is rejected.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Review, error) {
	if err := validate(req.Rating, req.Comment); err != nil {
		return nil, err
	}

	if _, err := s.products.GetByID(ctx, req.ProductID); err != nil {
		return nil, err
	}

	verified, err := s.purchases.HasDeliveredOrder(ctx, req.UserID, req.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "check purchase history")
	}

	r := &Review{
		ID:               uuid.New().String(),
		ProductID:        req.ProductID,
		UserID:           req.UserID,
		Rating:           req.Rating,
		Comment:          strings.TrimSpace(req.Comment),
		VerifiedPurchase: verified,
	}
	if err := s.reviews.Create(ctx, r); err != nil {
		return nil, err
	}

	if err := s.Recompute(ctx, req.ProductID); err != nil {
		return nil, err
	}
	return r, nil
}

// Update changes the caller's own review and recomputes the product rating.
func (s *Service) Update(ctx context.Context, reviewID, userID string, rating int, comment string) (*Review, error) {
	if err := validate(rating, comment); err != nil {
		return nil, err
	}

	r, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, ErrNotFound
	}

	r.Rating = rating
	r.Comment = strings.TrimSpace(comment)
	if err := s.reviews.Update(ctx, r); err != nil {
		return nil, errors.Wrap(err, "update review")
	}

	if err := s.Recompute(ctx, r.ProductID); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes the caller's own review and recomputes the product rating.
func (s *Service) Delete(ctx context.Context, reviewID, userID string) error {
	r, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if r.UserID != userID {
		return ErrNotFound
	}

	if err := s.reviews.Delete(ctx, reviewID); err != nil {
		return errors.Wrap(err, "delete review")
	}
	return s.Recompute(ctx, r.ProductID)
}

// ListByProduct returns a product's reviews, newest first.
func (s *Service) ListByProduct(ctx context.Context, productID string, page Page) ([]Review, int, error) {
	return s.reviews.ListByProduct(ctx, productID, page)
}

// MarkHelpful records one helpful vote on a review and returns the review
// with its updated count. Votes do not affect the product rating, so no
// recompute happens here.
func (s *Service) MarkHelpful(ctx context.Context, reviewID string) (*Review, error) {
	r, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	helpful, err := s.reviews.IncrementHelpful(ctx, reviewID)
	if err != nil {
		return nil, errors.Wrap(err, "mark review helpful")
	}
	r.Helpful = helpful
	return r, nil
}

// Recompute recalculates and stores the product's aggregate rating from all
// surviving reviews: the mean rounded to one decimal, or zero when no reviews
// remain. Running it twice with no intervening review change yields identical
// values.
func (s *Service) Recompute(ctx context.Context, productID string) error {
	avg, count, err := s.reviews.AggregateForProduct(ctx, productID)
	if err != nil {
		return errors.Wrap(err, "aggregate reviews")
	}
	if count == 0 {
		avg = decimal.Zero
	} else {
		avg = avg.Round(1)
	}
	if err := s.products.UpdateRating(ctx, productID, avg, count); err != nil {
		return errors.Wrap(err, "update product rating")
	}
	return nil
}
