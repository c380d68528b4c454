package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/nuhin13/test-ecom/internal/domain/auth"
	"github.com/nuhin13/test-ecom/internal/domain/cart"
	"github.com/nuhin13/test-ecom/internal/domain/order"
	"github.com/nuhin13/test-ecom/internal/domain/product"
	"github.com/nuhin13/test-ecom/internal/domain/review"
)

// apiError is the JSON error envelope returned for every non-2xx response.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// pagedResponse wraps list responses with pagination metadata.
type pagedResponse struct {
	Data    any `json:"data"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Code: status, Message: message})
}

// respondError maps a domain error onto an HTTP status and envelope. Errors
// without a dedicated mapping are treated as storage trouble: the client gets
// a generic 503 and the detail goes to the log.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrIncompleteAddress),
		errors.Is(err, review.ErrInvalidRating),
		errors.Is(err, review.ErrEmptyComment),
		errors.Is(err, cart.ErrNoOwner):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, order.ErrNoUser):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, review.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, review.ErrAlreadyReviewed):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, auth.ErrOTPNotFound),
		errors.Is(err, auth.ErrOTPExpired),
		errors.Is(err, auth.ErrOTPMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, auth.ErrOTPDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	var invalidItems *order.InvalidItemsError
	if errors.As(err, &invalidItems) {
		writeError(w, http.StatusUnprocessableEntity, invalidItems.Error())
		return
	}
	var invalidQty *cart.InvalidQuantityError
	if errors.As(err, &invalidQty) {
		writeError(w, http.StatusUnprocessableEntity, invalidQty.Error())
		return
	}
	var orderStock *order.InsufficientStockError
	if errors.As(err, &orderStock) {
		writeError(w, http.StatusConflict, orderStock.Error())
		return
	}
	var cartStock *cart.InsufficientStockError
	if errors.As(err, &cartStock) {
		writeError(w, http.StatusConflict, cartStock.Error())
		return
	}
	var transition *order.InvalidTransitionError
	if errors.As(err, &transition) {
		writeError(w, http.StatusUnprocessableEntity, transition.Error())
		return
	}

	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

// pageParams extracts page/per_page query parameters with defaults.
func (h *Handler) pageParams(r *http.Request) (page, perPage int) {
	page, perPage = 1, h.pageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && v > 0 && v <= 100 {
		perPage = v
	}
	return page, perPage
}
