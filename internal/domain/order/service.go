package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nuhin13/test-ecom/internal/domain/cart"
	"github.com/nuhin13/test-ecom/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems        = errors.New("items required")
	ErrIncompleteAddress = errors.New("complete shipping address required")
	ErrNoUser            = errors.New("authenticated user required")
)

// InvalidItemsError indicates the request referenced products that do not
// exist (or are not purchasable), or carried invalid quantities. Every
// offending product id is reported so the client can correct and resubmit.
type InvalidItemsError struct {
	ProductIDs []string
	Reason     string
}

func (e *InvalidItemsError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.ProductIDs, ", "))
}

// InsufficientStockError indicates a line requested more units than the
// catalog has available, either up front or after losing a decrement race.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidTransitionError indicates a status change was attempted from a
// terminal state.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition from %s to %s", e.OrderID, e.From, e.To)
}

// ItemRequest is a single requested line: product and quantity.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// PlaceRequest holds the input for placing an order. Prices are never part
// of the request; they are resolved from the catalog at placement time.
type PlaceRequest struct {
	UserID  string
	Items   []ItemRequest
	Address Address
	Notes   string
}

// Config holds the pricing constants for the workflow.
type Config struct {
	// FreeShippingThreshold is the subtotal at or above which shipping is free.
	FreeShippingThreshold decimal.Decimal
	// FlatShippingFee is charged below the threshold.
	FlatShippingFee decimal.Decimal
}

// Service encapsulates the order placement and lifecycle business logic.
type Service struct {
	products product.Repository
	orders   Repository
	carts    cart.Store
	cfg      Config
}

// NewService creates an order Service with the required domain dependencies.
func NewService(products product.Repository, orders Repository, carts cart.Store, cfg Config) *Service {
	return &Service{
		products: products,
		orders:   orders,
		carts:    carts,
		cfg:      cfg,
	}
}

// ShippingCost returns the shipping charge for a given subtotal.
func (s *Service) ShippingCost(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(s.cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return s.cfg.FlatShippingFee
}

// Place runs the full checkout workflow: validate items against the catalog,
// price each line from authoritative data, reserve stock, persist the order,
// clear the purchaser's cart, and record the mocked payment.
//
// Stock reservation is a sequence of per-line conditional decrements. On the
// first failed line, every already-decremented line is re-incremented before
// the error is returned: compensation, not transactional atomicity. No
// failure before the first decrement leaves any stock mutation behind.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*Order, error) {
	if req.UserID == "" {
		return nil, ErrNoUser
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if !req.Address.Complete() {
		return nil, ErrIncompleteAddress
	}

	// Validate quantities and collect product IDs.
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidItemsError{
				ProductIDs: []string{item.ProductID},
				Reason:     "quantity must be greater than 0",
			}
		}
		ids[i] = item.ProductID
	}

	// Batch fetch all referenced products in a single read.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	// Every requested id must resolve; report all missing ones at once.
	var missing []string
	for _, item := range req.Items {
		p, ok := byID[item.ProductID]
		switch {
		case !ok:
			missing = append(missing, item.ProductID)
		case !p.Available:
			missing = append(missing, item.ProductID)
		}
	}
	if len(missing) > 0 {
		return nil, &InvalidItemsError{ProductIDs: missing, Reason: "unknown or unavailable products"}
	}

	// Price each line from the catalog and pre-check stock. The authoritative
	// check is the conditional decrement below; this one catches stale carts
	// without touching any stock.
	lines := make([]Line, len(req.Items))
	subtotal := decimal.Zero
	for i, item := range req.Items {
		p := byID[item.ProductID]
		if p.Stock < item.Quantity {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Requested: item.Quantity,
				Available: p.Stock,
			}
		}

		unit := p.EffectivePrice()
		lineTotal := unit.Mul(decimal.NewFromInt(int64(item.Quantity)))
		lines[i] = Line{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.FirstImage(),
			UnitPrice: unit,
			Quantity:  item.Quantity,
			LineTotal: lineTotal,
		}
		subtotal = subtotal.Add(lineTotal)
	}

	subtotal = subtotal.Round(2)
	shipping := s.ShippingCost(subtotal)
	total := subtotal.Add(shipping).Round(2)

	// Reserve stock line by line. Each decrement is conditional and atomic at
	// the storage layer, so concurrent checkouts cannot oversell.
	if err := s.reserveStock(ctx, lines); err != nil {
		return nil, err
	}

	now := time.Now()
	o := &Order{
		ID:            uuid.New().String(),
		Number:        NewNumber(now),
		UserID:        req.UserID,
		Lines:         lines,
		Subtotal:      subtotal,
		ShippingCost:  shipping,
		Total:         total,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Address:       req.Address,
		Notes:         req.Notes,
		CreatedAt:     now,
	}

	if err := s.createWithRetry(ctx, o); err != nil {
		// The order never landed: release everything we reserved.
		s.releaseStock(ctx, lines)
		return nil, errors.Wrap(err, "create order")
	}

	// The order exists from here on. A stale cart is recoverable, so a failed
	// clear is logged rather than failing the checkout.
	if err := s.carts.Delete(ctx, cart.UserOwner(req.UserID)); err != nil {
		zctx.From(ctx).Warn("Failed to clear cart after checkout",
			zap.String("order_id", o.ID), zap.Error(err))
	}

	// Mocked payment: settle immediately with a synthetic transaction.
	paidAt := time.Now()
	txnID := fmt.Sprintf("MOCK-%d", paidAt.UnixMilli())
	if err := s.orders.MarkPaid(ctx, o.ID, txnID, paidAt); err != nil {
		return nil, errors.Wrap(err, "mark order paid")
	}
	o.Status = StatusConfirmed
	o.PaymentStatus = PaymentPaid
	o.Payment = &Payment{TransactionID: txnID, PaidAt: paidAt}

	return o, nil
}

// reserveStock decrements every line's stock, compensating already-applied
// decrements when a later line fails.
func (s *Service) reserveStock(ctx context.Context, lines []Line) error {
	for i, line := range lines {
		ok, err := s.products.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			s.releaseStock(ctx, lines[:i])
			return errors.Wrapf(err, "decrement stock for product %s", line.ProductID)
		}
		if !ok {
			s.releaseStock(ctx, lines[:i])
			return &InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: s.currentStock(ctx, line.ProductID),
			}
		}
	}
	return nil
}

// releaseStock re-increments previously decremented lines. It runs on a
// cancellation-immune context: once a decrement committed, its compensation
// must not be abandoned because the client hung up.
func (s *Service) releaseStock(ctx context.Context, lines []Line) {
	ctx = context.WithoutCancel(ctx)
	for _, line := range lines {
		if err := s.products.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			zctx.From(ctx).Error("Stock compensation failed",
				zap.String("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
		}
	}
}

// currentStock re-reads availability for error reporting. A failed re-read
// reports zero rather than masking the stock error with a storage error.
func (s *Service) currentStock(ctx context.Context, id string) int {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return 0
	}
	return p.Stock
}

// createWithRetry persists the order, regenerating the order number on the
// unlikely same-second collision.
func (s *Service) createWithRetry(ctx context.Context, o *Order) error {
	const attempts = 3
	var err error
	for range attempts {
		if err = s.orders.Create(ctx, o); !errors.Is(err, ErrNumberTaken) {
			return err
		}
		o.Number = NewNumber(time.Now())
	}
	return err
}

// Get returns a single order owned by the given user. Orders belonging to
// other users are reported as not found.
func (s *Service) Get(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first, with the total count.
func (s *Service) ListByUser(ctx context.Context, userID string, page Page) ([]Order, int, error) {
	return s.orders.ListByUser(ctx, userID, page)
}

// ListAll returns a page across every user's orders, optionally filtered by
// status. Administrative listing; callers enforce authorization.
func (s *Service) ListAll(ctx context.Context, status Status, page Page) ([]Order, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, errors.Errorf("unknown status %q", status)
	}
	return s.orders.ListAll(ctx, status, page)
}

// Cancel cancels an order on behalf of its owner, restoring the stock that
// was reserved at placement time. Only non-terminal orders can be cancelled.
func (s *Service) Cancel(ctx context.Context, orderID, userID, reason string) (*Order, error) {
	o, err := s.Get(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: StatusCancelled}
	}

	now := time.Now()
	ok, err := s.orders.Cancel(ctx, orderID, now, reason)
	if err != nil {
		return nil, errors.Wrap(err, "cancel order")
	}
	if !ok {
		// Lost a race with another transition; re-read for the actual state.
		if cur, gerr := s.orders.GetByID(ctx, orderID); gerr == nil {
			return nil, &InvalidTransitionError{OrderID: orderID, From: cur.Status, To: StatusCancelled}
		}
		return nil, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: StatusCancelled}
	}

	// Restore exactly what placement reserved. Increments are unconditional:
	// each one mirrors a prior decrement.
	s.releaseStock(ctx, o.Lines)

	o.Status = StatusCancelled
	o.CancelledAt = &now
	o.CancellationReason = reason
	return o, nil
}

// UpdateStatus performs an administrative fulfilment transition. Terminal
// orders cannot be moved; cancellation must go through Cancel so stock is
// restored.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	if !to.Valid() || to == StatusCancelled {
		return nil, &InvalidTransitionError{OrderID: orderID, To: to}
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// Shipped orders may still be delivered; other terminal states are final.
	allowed := !o.Status.Terminal() || (o.Status == StatusShipped && to == StatusDelivered)
	if !allowed {
		return nil, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: to}
	}

	ok, err := s.orders.UpdateStatus(ctx, orderID, o.Status, to)
	if err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	if !ok {
		// Lost a race with a concurrent transition.
		if cur, gerr := s.orders.GetByID(ctx, orderID); gerr == nil {
			o = cur
		}
		return nil, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: to}
	}
	o.Status = to
	return o, nil
}
