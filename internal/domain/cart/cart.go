package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// Sentinel errors for cart operations.
var (
	ErrNotFound     = errors.New("cart not found")
	ErrItemNotFound = errors.New("product not in cart")
	ErrNoOwner      = errors.New("cart owner required")
)

// Owner identifies who a cart belongs to: exactly one of an authenticated
// user or an anonymous guest session, never both and never neither.
type Owner struct {
	UserID    string
	SessionID string
}

// UserOwner returns an Owner keyed by an authenticated user.
func UserOwner(userID string) Owner { return Owner{UserID: userID} }

// SessionOwner returns an Owner keyed by a guest session.
func SessionOwner(sessionID string) Owner { return Owner{SessionID: sessionID} }

// Valid reports whether exactly one owner key is set.
func (o Owner) Valid() bool {
	return (o.UserID == "") != (o.SessionID == "")
}

// Item is a single cart line: a product reference and a quantity >= 1.
// A cart holds at most one Item per distinct product.
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Cart is the set of items an owner intends to purchase.
type Cart struct {
	Owner Owner
	Items []Item
}

// Store defines persistence for carts keyed by owner.
type Store interface {
	// Get returns the owner's cart, or ErrNotFound when none exists.
	Get(ctx context.Context, owner Owner) (*Cart, error)
	// Upsert creates or replaces the owner's cart items.
	Upsert(ctx context.Context, owner Owner, items []Item) error
	// Delete removes the owner's cart. Deleting an absent cart is not an error.
	Delete(ctx context.Context, owner Owner) error
}

// mergeItem adds qty of productID to items, summing into an existing line
// rather than appending a duplicate row.
func mergeItem(items []Item, productID string, qty int) []Item {
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += qty
			return items
		}
	}
	return append(items, Item{ProductID: productID, Quantity: qty})
}
