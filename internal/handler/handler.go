// Package handler exposes the domain services over a JSON HTTP API. It is a
// thin translation layer: request decoding, principal extraction, and error
// mapping live here, business rules do not.
package handler

import (
	"net/http"

	"github.com/nuhin13/test-ecom/internal/domain/auth"
	"github.com/nuhin13/test-ecom/internal/domain/cart"
	"github.com/nuhin13/test-ecom/internal/domain/order"
	"github.com/nuhin13/test-ecom/internal/domain/product"
	"github.com/nuhin13/test-ecom/internal/domain/review"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
	// DefaultPageSize applies when a list request carries no per_page.
	DefaultPageSize int
}

// Handler routes HTTP requests to the domain services.
type Handler struct {
	products     product.Repository
	carts        *cart.Service
	orders       *order.Service
	reviews      *review.Service
	otp          *auth.OTP
	imageBaseURL string
	pageSize     int
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	carts *cart.Service,
	orders *order.Service,
	reviews *review.Service,
	otp *auth.OTP,
) *Handler {
	pageSize := cfg.DefaultPageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Handler{
		products:     products,
		carts:        carts,
		orders:       orders,
		reviews:      reviews,
		otp:          otp,
		imageBaseURL: cfg.ImageBaseURL,
		pageSize:     pageSize,
	}
}

// Routes registers every API route on the given mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("POST /api/products", h.CreateProduct)
	mux.HandleFunc("GET /api/products/categories", h.ListCategories)
	mux.HandleFunc("GET /api/products/top-rated", h.TopRatedProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("PUT /api/products/{id}", h.UpdateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", h.DeleteProduct)

	mux.HandleFunc("GET /api/products/{id}/reviews", h.ListReviews)
	mux.HandleFunc("POST /api/products/{id}/reviews", h.CreateReview)
	mux.HandleFunc("PUT /api/reviews/{id}", h.UpdateReview)
	mux.HandleFunc("DELETE /api/reviews/{id}", h.DeleteReview)
	mux.HandleFunc("POST /api/reviews/{id}/helpful", h.MarkReviewHelpful)

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("DELETE /api/cart", h.ClearCart)
	mux.HandleFunc("POST /api/cart/items", h.AddCartItem)
	mux.HandleFunc("PUT /api/cart/items/{productID}", h.UpdateCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{productID}", h.RemoveCartItem)
	mux.HandleFunc("POST /api/cart/merge", h.MergeCart)

	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)
	mux.HandleFunc("PUT /api/orders/{id}/status", h.UpdateOrderStatus)

	mux.HandleFunc("GET /api/admin/orders", h.ListAllOrders)

	mux.HandleFunc("POST /api/auth/otp/send", h.SendOTP)
	mux.HandleFunc("POST /api/auth/otp/verify", h.VerifyOTP)
}
