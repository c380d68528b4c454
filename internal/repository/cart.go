package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nuhin13/test-ecom/internal/domain/cart"
)

const (
	getCartByUserSQL    = `SELECT items FROM carts WHERE user_id = $1`
	getCartBySessionSQL = `SELECT items FROM carts WHERE session_id = $1`

	// carts_user_idx and carts_session_idx are partial unique indexes, so each
	// owner key gets its own conflict target.
	upsertCartByUserSQL = `INSERT INTO carts (id, user_id, items)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) WHERE user_id IS NOT NULL
		DO UPDATE SET items = EXCLUDED.items, updated_at = now()`

	upsertCartBySessionSQL = `INSERT INTO carts (id, session_id, items)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) WHERE session_id IS NOT NULL
		DO UPDATE SET items = EXCLUDED.items, updated_at = now()`

	deleteCartByUserSQL    = `DELETE FROM carts WHERE user_id = $1`
	deleteCartBySessionSQL = `DELETE FROM carts WHERE session_id = $1`
)

var _ cart.Store = (*CartRepository)(nil)

// CartRepository implements cart.Store backed by PostgreSQL. Items live in a
// single JSONB column: a cart is always read and written whole.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the owner's cart, or cart.ErrNotFound when none exists.
func (r *CartRepository) Get(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	if !owner.Valid() {
		return nil, cart.ErrNoOwner
	}
	query, key := getCartBySessionSQL, owner.SessionID
	if owner.UserID != "" {
		query, key = getCartByUserSQL, owner.UserID
	}

	var raw []byte
	if err := r.pool.QueryRow(ctx, query, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrap(err, "get cart")
	}

	var items []cart.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Wrap(err, "decode cart items")
	}
	return &cart.Cart{Owner: owner, Items: items}, nil
}

// Upsert creates or replaces the owner's cart items.
func (r *CartRepository) Upsert(ctx context.Context, owner cart.Owner, items []cart.Item) error {
	if !owner.Valid() {
		return cart.ErrNoOwner
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encode cart items")
	}

	query, key := upsertCartBySessionSQL, owner.SessionID
	if owner.UserID != "" {
		query, key = upsertCartByUserSQL, owner.UserID
	}
	if _, err := r.pool.Exec(ctx, query, uuid.NewString(), key, raw); err != nil {
		return errors.Wrap(err, "upsert cart")
	}
	return nil
}

// Delete removes the owner's cart. Deleting an absent cart is not an error.
func (r *CartRepository) Delete(ctx context.Context, owner cart.Owner) error {
	if !owner.Valid() {
		return cart.ErrNoOwner
	}
	query, key := deleteCartBySessionSQL, owner.SessionID
	if owner.UserID != "" {
		query, key = deleteCartByUserSQL, owner.UserID
	}
	if _, err := r.pool.Exec(ctx, query, key); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}
