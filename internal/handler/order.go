package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nuhin13/test-ecom/internal/domain/order"
)

// orderView is the JSON shape of an order.
type orderView struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	Lines         []order.Line    `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Address       order.Address   `json:"shipping_address"`
	Notes         string          `json:"notes,omitempty"`

	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toOrderView(o *order.Order) orderView {
	v := orderView{
		ID:                 o.ID,
		Number:             o.Number,
		Lines:              o.Lines,
		Subtotal:           o.Subtotal,
		ShippingCost:       o.ShippingCost,
		Total:              o.Total,
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		Address:            o.Address,
		Notes:              o.Notes,
		CancelledAt:        o.CancelledAt,
		CancellationReason: o.CancellationReason,
		CreatedAt:          o.CreatedAt,
	}
	if o.Payment != nil {
		v.TransactionID = o.Payment.TransactionID
	}
	return v
}

// placeOrderRequest is the checkout payload. Prices are deliberately absent:
// the server resolves them from the catalog.
type placeOrderRequest struct {
	Items []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	Address order.Address `json:"shipping_address"`
	Notes   string        `json:"notes"`
}

// PlaceOrder runs the checkout workflow for the authenticated caller.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	var req placeOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	o, err := h.orders.Place(r.Context(), order.PlaceRequest{
		UserID:  uid,
		Items:   items,
		Address: req.Address,
		Notes:   req.Notes,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderView(o))
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	page, perPage := h.pageParams(r)

	orders, total, err := h.orders.ListByUser(r.Context(), uid, order.Page{Page: page, PerPage: perPage})
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = toOrderView(&orders[i])
	}
	writeJSON(w, http.StatusOK, pagedResponse{Data: views, Total: total, Page: page, PerPage: perPage})
}

// ListAllOrders returns a page across every user's orders, optionally
// filtered by status. Administrators only.
func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	status := order.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	page, perPage := h.pageParams(r)

	orders, total, err := h.orders.ListAll(r.Context(), status, order.Page{Page: page, PerPage: perPage})
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = toOrderView(&orders[i])
	}
	writeJSON(w, http.StatusOK, pagedResponse{Data: views, Total: total, Page: page, PerPage: perPage})
}

// GetOrder returns one of the caller's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	o, err := h.orders.Get(r.Context(), r.PathValue("id"), uid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

// CancelOrder cancels one of the caller's orders and restores its stock.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.Cancel(r.Context(), r.PathValue("id"), uid, req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

// UpdateOrderStatus performs a fulfilment transition. Administrators only;
// cancellation goes through CancelOrder so stock is restored.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), order.Status(req.Status))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}
