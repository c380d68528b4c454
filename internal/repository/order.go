package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nuhin13/test-ecom/internal/domain/order"
)

const orderColumns = `id, number, user_id, lines, subtotal, shipping_cost, total,
		status, payment_status, payment_txn_id, paid_at,
		shipping_address, notes, cancelled_at, cancellation_reason, created_at`

const (
	insertOrderSQL = `INSERT INTO orders
		(id, number, user_id, lines, subtotal, shipping_cost, total,
		 status, payment_status, shipping_address, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	countOrdersByUserSQL = `SELECT count(*) FROM orders WHERE user_id = $1`

	listAllOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	countAllOrdersSQL = `SELECT count(*) FROM orders WHERE ($1 = '' OR status = $1)`

	markOrderPaidSQL = `UPDATE orders SET
		payment_status = 'paid', payment_txn_id = $2, paid_at = $3,
		status = 'confirmed', updated_at = now()
		WHERE id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	// Cancellation and shipment race; the status guard makes the storage
	// layer pick exactly one winner.
	cancelOrderSQL = `UPDATE orders SET
		status = 'cancelled', cancelled_at = $2, cancellation_reason = $3, updated_at = now()
		WHERE id = $1 AND status NOT IN ('shipped', 'delivered', 'cancelled')`

	hasDeliveredOrderSQL = `SELECT EXISTS (
		SELECT 1 FROM orders
		WHERE user_id = $1 AND status = 'delivered' AND lines @> $2
	)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Lines and
// the shipping address are stored as JSONB snapshots; they are written once at
// creation and never updated.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order, mapping a duplicate order number onto
// order.ErrNumberTaken so callers can regenerate and retry.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return errors.Wrap(err, "encode order lines")
	}
	address, err := json.Marshal(o.Address)
	if err != nil {
		return errors.Wrap(err, "encode shipping address")
	}

	_, err = r.pool.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.UserID, lines, o.Subtotal, o.ShippingCost, o.Total,
		o.Status, o.PaymentStatus, address, o.Notes, o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "orders_number_key") {
			return order.ErrNumberTaken
		}
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

// ListByUser returns a page of the user's orders, newest first, plus the
// total count.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, page order.Page) ([]order.Order, int, error) {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PerPage < 1 {
		page.PerPage = 10
	}
	offset := (page.Page - 1) * page.PerPage

	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID, page.PerPage, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countOrdersByUserSQL, userID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}
	return orders, total, nil
}

// ListAll returns a page across every user's orders, newest first, plus the
// total count. An empty status disables the filter.
func (r *OrderRepository) ListAll(ctx context.Context, status order.Status, page order.Page) ([]order.Order, int, error) {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PerPage < 1 {
		page.PerPage = 10
	}
	offset := (page.Page - 1) * page.PerPage

	rows, err := r.pool.Query(ctx, listAllOrdersSQL, string(status), page.PerPage, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list all orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list all orders")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countAllOrdersSQL, string(status)).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count all orders")
	}
	return orders, total, nil
}

// MarkPaid records the payment outcome and confirms the order.
func (r *OrderRepository) MarkPaid(ctx context.Context, id, transactionID string, paidAt time.Time) error {
	tag, err := r.pool.Exec(ctx, markOrderPaidSQL, id, transactionID, paidAt)
	if err != nil {
		return errors.Wrapf(err, "mark order %q paid", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdateStatus applies a compare-and-set status transition, reporting whether
// the order still had the expected from status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, from, to)
	if err != nil {
		return false, errors.Wrapf(err, "update status of order %q", id)
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel marks the order cancelled while it is still in a cancellable state,
// reporting whether the cancellation happened.
func (r *OrderRepository) Cancel(ctx context.Context, id string, at time.Time, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, cancelOrderSQL, id, at, reason)
	if err != nil {
		return false, errors.Wrapf(err, "cancel order %q", id)
	}
	return tag.RowsAffected() == 1, nil
}

// HasDeliveredOrder reports whether the user has a delivered order containing
// the product. Reviews use it to set the verified-purchase flag.
func (r *OrderRepository) HasDeliveredOrder(ctx context.Context, userID, productID string) (bool, error) {
	probe, err := json.Marshal([]map[string]string{{"product_id": productID}})
	if err != nil {
		return false, errors.Wrap(err, "encode line probe")
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, hasDeliveredOrderSQL, userID, probe).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check delivered order")
	}
	return exists, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		lines    []byte
		address  []byte
		txID     *string
		paidAt   *time.Time
		cancelAt *time.Time
		reason   *string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &lines, &o.Subtotal, &o.ShippingCost, &o.Total,
		&o.Status, &o.PaymentStatus, &txID, &paidAt,
		&address, &o.Notes, &cancelAt, &reason, &o.CreatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return order.Order{}, errors.Wrap(err, "decode order lines")
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return order.Order{}, errors.Wrap(err, "decode shipping address")
	}
	if txID != nil && paidAt != nil {
		o.Payment = &order.Payment{TransactionID: *txID, PaidAt: *paidAt}
	}
	o.CancelledAt = cancelAt
	if reason != nil {
		o.CancellationReason = *reason
	}
	return o, nil
}
