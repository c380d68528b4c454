package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the order can no longer be cancelled or
// transitioned. Shipped orders are terminal for cancellation purposes even
// though they still move to delivered.
func (s Status) Terminal() bool {
	switch s {
	case StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentStatus is the payment sub-state of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Line is an immutable order line: a denormalized snapshot of the product at
// purchase time, so later catalog edits never rewrite order history.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Address is the shipping destination for an order.
type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	District   string `json:"district,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// Complete reports whether the address carries the minimum fields needed to
// ship an order.
func (a Address) Complete() bool {
	return a.Name != "" && a.Phone != "" && a.Street != "" && a.City != ""
}

// Payment records the (mocked) payment outcome for an order.
type Payment struct {
	TransactionID string
	PaidAt        time.Time
}

// Order is an immutable snapshot of a purchase. Once created, lines and
// totals never change; only status, payment, and cancellation fields mutate.
type Order struct {
	ID            string
	Number        string
	UserID        string
	Lines         []Line
	Subtotal      decimal.Decimal
	ShippingCost  decimal.Decimal
	Total         decimal.Decimal
	Status        Status
	PaymentStatus PaymentStatus
	Payment       *Payment
	Address       Address
	Notes         string

	CancelledAt        *time.Time
	CancellationReason string
	CreatedAt          time.Time
}

// ErrNotFound is returned when an order does not exist or is not owned by
// the caller. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("order not found")

// ErrNumberTaken is returned by Repository.Create when the generated order
// number collides with an existing one.
var ErrNumberTaken = errors.New("order number already exists")

// Page controls order listing pagination.
type Page struct {
	Page    int
	PerPage int
}

// Repository defines persistence operations for orders. Status-mutating
// operations are conditional so concurrent transitions on the same order
// serialize at the storage layer.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string, page Page) ([]Order, int, error)

	// ListAll returns a page across every user's orders, newest first,
	// optionally filtered by status. Empty status means no filter.
	ListAll(ctx context.Context, status Status, page Page) ([]Order, int, error)

	// MarkPaid records the payment outcome and moves the order to confirmed.
	MarkPaid(ctx context.Context, id, transactionID string, paidAt time.Time) error

	// UpdateStatus transitions the order from one status to another as a
	// compare-and-set: it only applies while the current status equals from.
	// Returns false when the precondition failed.
	UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error)

	// Cancel marks the order cancelled with a timestamp and reason, but only
	// while the current status is non-terminal. Returns false when the
	// precondition failed.
	Cancel(ctx context.Context, id string, at time.Time, reason string) (bool, error)
}
