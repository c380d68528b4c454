package handler

import (
	"net/http"
	"time"

	"github.com/nuhin13/test-ecom/internal/domain/review"
)

// reviewView is the JSON shape of a review.
type reviewView struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	UserID           string    `json:"user_id"`
	Rating           int       `json:"rating"`
	Comment          string    `json:"comment"`
	VerifiedPurchase bool      `json:"verified_purchase"`
	Helpful          int       `json:"helpful"`
	CreatedAt        time.Time `json:"created_at"`
}

func toReviewView(rev *review.Review) reviewView {
	return reviewView{
		ID:               rev.ID,
		ProductID:        rev.ProductID,
		UserID:           rev.UserID,
		Rating:           rev.Rating,
		Comment:          rev.Comment,
		VerifiedPurchase: rev.VerifiedPurchase,
		Helpful:          rev.Helpful,
		CreatedAt:        rev.CreatedAt,
	}
}

// ListReviews returns a product's reviews, newest first.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	page, perPage := h.pageParams(r)

	reviews, total, err := h.reviews.ListByProduct(r.Context(), r.PathValue("id"),
		review.Page{Page: page, PerPage: perPage})
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]reviewView, len(reviews))
	for i := range reviews {
		views[i] = toReviewView(&reviews[i])
	}
	writeJSON(w, http.StatusOK, pagedResponse{Data: views, Total: total, Page: page, PerPage: perPage})
}

// reviewRequest is the create/update payload.
type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// CreateReview writes the caller's review of a product.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rev, err := h.reviews.Create(r.Context(), review.CreateRequest{
		ProductID: r.PathValue("id"),
		UserID:    uid,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReviewView(rev))
}

// UpdateReview changes the caller's own review.
func (h *Handler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rev, err := h.reviews.Update(r.Context(), r.PathValue("id"), uid, req.Rating, req.Comment)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewView(rev))
}

// MarkReviewHelpful records a helpful vote on a review. Votes are anonymous
// and unbounded; they only influence how prominently a review is shown.
func (h *Handler) MarkReviewHelpful(w http.ResponseWriter, r *http.Request) {
	rev, err := h.reviews.MarkHelpful(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewView(rev))
}

// DeleteReview removes the caller's own review.
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	if err := h.reviews.Delete(r.Context(), r.PathValue("id"), uid); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
