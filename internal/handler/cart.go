package handler

import (
	"net/http"

	"github.com/nuhin13/test-ecom/internal/domain/cart"
)

// cartView is the JSON shape of a cart.
type cartView struct {
	Items []cart.Item `json:"items"`
}

func toCartView(c *cart.Cart) cartView {
	items := c.Items
	if items == nil {
		items = []cart.Item{}
	}
	return cartView{Items: items}
}

// GetCart returns the caller's cart, empty when none exists yet.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), cartOwner(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(c))
}

// AddCartItem puts a quantity of a product into the caller's cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.carts.Add(r.Context(), cartOwner(r), req.ProductID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(c))
}

// UpdateCartItem sets the quantity of an existing cart line. A quantity of
// zero removes the line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.carts.UpdateItem(r.Context(), cartOwner(r), r.PathValue("productID"), req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(c))
}

// RemoveCartItem deletes a single line from the caller's cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Remove(r.Context(), cartOwner(r), r.PathValue("productID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(c))
}

// ClearCart deletes the caller's cart entirely.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), cartOwner(r)); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MergeCart folds a guest session's cart into the authenticated caller's
// cart. Clients call it right after login.
func (h *Handler) MergeCart(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id required")
		return
	}

	c, err := h.carts.Merge(r.Context(), req.SessionID, uid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(c))
}
