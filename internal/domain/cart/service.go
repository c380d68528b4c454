package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/nuhin13/test-ecom/internal/domain/product"
)

// InsufficientStockError indicates the requested quantity exceeds what the
// catalog currently has available.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return errors.Errorf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available).Error()
}

// InvalidQuantityError indicates a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return "quantity must be greater than 0 for product " + e.ProductID
}

// Service implements cart operations over a Store and the product catalog.
type Service struct {
	carts    Store
	products product.Repository
}

// NewService creates a cart Service.
func NewService(carts Store, products product.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// Get returns the owner's cart. A missing cart is returned as an empty cart
// rather than an error: a cart exists lazily from the client's point of view.
func (s *Service) Get(ctx context.Context, owner Owner) (*Cart, error) {
	if !owner.Valid() {
		return nil, ErrNoOwner
	}
	c, err := s.carts.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Cart{Owner: owner, Items: []Item{}}, nil
		}
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// Add puts qty of productID into the owner's cart, creating the cart lazily
// and merging into an existing line for the same product. The product must
// exist and have enough stock at add time; the authoritative check still
// happens at checkout.
func (s *Service) Add(ctx context.Context, owner Owner, productID string, qty int) (*Cart, error) {
	if !owner.Valid() {
		return nil, ErrNoOwner
	}
	if qty <= 0 {
		return nil, &InvalidQuantityError{ProductID: productID}
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "get product")
	}
	if p.Stock < qty {
		return nil, &InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
	}

	c, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	c.Items = mergeItem(c.Items, productID, qty)

	if err := s.carts.Upsert(ctx, owner, c.Items); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// UpdateItem sets the quantity of an existing line. A quantity <= 0 removes
// the line entirely.
func (s *Service) UpdateItem(ctx context.Context, owner Owner, productID string, qty int) (*Cart, error) {
	if !owner.Valid() {
		return nil, ErrNoOwner
	}
	c, err := s.carts.Get(ctx, owner)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrItemNotFound
	}

	if qty <= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	} else {
		c.Items[idx].Quantity = qty
	}

	if err := s.carts.Upsert(ctx, owner, c.Items); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// Remove deletes a single line from the owner's cart.
func (s *Service) Remove(ctx context.Context, owner Owner, productID string) (*Cart, error) {
	return s.UpdateItem(ctx, owner, productID, 0)
}

// Clear deletes the owner's cart entirely.
func (s *Service) Clear(ctx context.Context, owner Owner) error {
	if !owner.Valid() {
		return ErrNoOwner
	}
	return s.carts.Delete(ctx, owner)
}

// Merge folds a guest session's cart into the user's cart on login.
//
// When the user has no cart, the guest cart is simply rekeyed to the user.
// When both exist, items are unioned by product id with overlapping
// quantities summed, and the guest cart is discarded. No stock check happens
// here; checkout revalidates everything.
func (s *Service) Merge(ctx context.Context, sessionID, userID string) (*Cart, error) {
	if sessionID == "" || userID == "" {
		return nil, ErrNoOwner
	}

	guestOwner := SessionOwner(sessionID)
	userOwner := UserOwner(userID)

	guest, err := s.carts.Get(ctx, guestOwner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Nothing to merge; return whatever the user already has.
			return s.Get(ctx, userOwner)
		}
		return nil, errors.Wrap(err, "get guest cart")
	}

	merged := &Cart{Owner: userOwner}
	existing, err := s.carts.Get(ctx, userOwner)
	switch {
	case err == nil:
		merged.Items = existing.Items
		for _, it := range guest.Items {
			merged.Items = mergeItem(merged.Items, it.ProductID, it.Quantity)
		}
	case errors.Is(err, ErrNotFound):
		merged.Items = guest.Items
	default:
		return nil, errors.Wrap(err, "get user cart")
	}

	if err := s.carts.Upsert(ctx, userOwner, merged.Items); err != nil {
		return nil, errors.Wrap(err, "save merged cart")
	}
	if err := s.carts.Delete(ctx, guestOwner); err != nil {
		return nil, errors.Wrap(err, "delete guest cart")
	}
	return merged, nil
}
