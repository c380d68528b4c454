package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuhin13/test-ecom/internal/domain/cart"
	"github.com/nuhin13/test-ecom/internal/domain/product"
)

// --- Mock implementations ---

// mockCatalog is a thread-safe in-memory catalog with injectable failures,
// used to drive the workflow through every failure point.
type mockCatalog struct {
	mu    sync.Mutex
	byID  map[string]*product.Product
	calls int

	getByIDsErr  error
	decrementErr map[string]error // per-product decrement failure
}

func newMockCatalog(products ...product.Product) *mockCatalog {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		p := products[i]
		byID[p.ID] = &p
	}
	return &mockCatalog{byID: byID, decrementErr: map[string]error{}}
}

func (m *mockCatalog) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Stock
}

func (m *mockCatalog) List(context.Context, product.ListParams) ([]product.Product, int, error) {
	return nil, 0, nil
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getByIDsErr != nil {
		return nil, m.getByIDsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []product.Product
	seen := map[string]bool{}
	for _, id := range ids {
		if p, ok := m.byID[id]; ok && !seen[id] {
			out = append(out, *p)
			seen[id] = true
		}
	}
	return out, nil
}

func (m *mockCatalog) DecrementStock(_ context.Context, id string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.decrementErr[id]; err != nil {
		return false, err
	}
	p, ok := m.byID[id]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (m *mockCatalog) IncrementStock(_ context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		p.Stock += qty
	}
	return nil
}

func (m *mockCatalog) Categories(context.Context) ([]string, error) { return nil, nil }

func (m *mockCatalog) TopRated(context.Context, int) ([]product.Product, error) {
	return nil, nil
}

func (m *mockCatalog) UpdateRating(context.Context, string, decimal.Decimal, int) error { return nil }
func (m *mockCatalog) Create(context.Context, *product.Product) error                   { return nil }
func (m *mockCatalog) Update(context.Context, *product.Product) error                   { return nil }
func (m *mockCatalog) Delete(context.Context, string) error                             { return nil }

type mockOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]*Order
	createErr error
	paidErr   error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListAll(_ context.Context, status Status, _ Page) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string, _ Page) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (m *mockOrderRepo) MarkPaid(_ context.Context, id, txnID string, paidAt time.Time) error {
	if m.paidErr != nil {
		return m.paidErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = StatusConfirmed
	o.PaymentStatus = PaymentPaid
	o.Payment = &Payment{TransactionID: txnID, PaidAt: paidAt}
	return nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, from, to Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *mockOrderRepo) Cancel(_ context.Context, id string, at time.Time, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status.Terminal() {
		return false, nil
	}
	o.Status = StatusCancelled
	o.CancelledAt = &at
	o.CancellationReason = reason
	return true, nil
}

type mockCartStore struct {
	mu      sync.Mutex
	deleted []cart.Owner
	delErr  error
}

func (m *mockCartStore) Get(context.Context, cart.Owner) (*cart.Cart, error) {
	return nil, cart.ErrNotFound
}
func (m *mockCartStore) Upsert(context.Context, cart.Owner, []cart.Item) error { return nil }
func (m *mockCartStore) Delete(_ context.Context, owner cart.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	m.deleted = append(m.deleted, owner)
	return nil
}

// --- Helpers ---

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testConfig() Config {
	return Config{
		FreeShippingThreshold: money("50.00"),
		FlatShippingFee:       money("5.99"),
	}
}

func catalogProduct(id string, price string, stock int) product.Product {
	return product.Product{
		ID:        id,
		SKU:       "SKU-" + id,
		Name:      "Product " + id,
		Price:     money(price),
		Images:    []string{id + ".jpg"},
		Stock:     stock,
		Available: true,
	}
}

func discounted(p product.Product, price string) product.Product {
	d := money(price)
	p.DiscountedPrice = &d
	return p
}

func validAddress() Address {
	return Address{Name: "Nabila Rahman", Phone: "+8801712345678", Street: "12 Gulshan Ave", City: "Dhaka"}
}

func placeRequest(items ...ItemRequest) PlaceRequest {
	return PlaceRequest{UserID: "u1", Items: items, Address: validAddress()}
}

// --- Placement tests ---

func TestPlace_EmptyItems(t *testing.T) {
	svc := NewService(newMockCatalog(), newMockOrderRepo(), &mockCartStore{}, testConfig())

	_, err := svc.Place(context.Background(), PlaceRequest{UserID: "u1", Address: validAddress()})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestPlace_IncompleteAddress(t *testing.T) {
	svc := NewService(newMockCatalog(catalogProduct("p1", "10.00", 5)), newMockOrderRepo(), &mockCartStore{}, testConfig())

	_, err := svc.Place(context.Background(), PlaceRequest{
		UserID:  "u1",
		Items:   []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Address: Address{Name: "X"},
	})
	require.ErrorIs(t, err, ErrIncompleteAddress)
}

func TestPlace_ReportsAllMissingProducts(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "10.00", 5))
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	_, err := svc.Place(context.Background(), placeRequest(
		ItemRequest{ProductID: "p1", Quantity: 1},
		ItemRequest{ProductID: "ghost1", Quantity: 1},
		ItemRequest{ProductID: "ghost2", Quantity: 2},
	))

	var iiErr *InvalidItemsError
	require.ErrorAs(t, err, &iiErr)
	assert.ElementsMatch(t, []string{"ghost1", "ghost2"}, iiErr.ProductIDs)
	assert.Equal(t, 5, catalog.stock("p1"), "no stock mutation on invalid items")
}

func TestPlace_UnavailableProductIsInvalid(t *testing.T) {
	p := catalogProduct("p1", "10.00", 5)
	p.Available = false
	svc := NewService(newMockCatalog(p), newMockOrderRepo(), &mockCartStore{}, testConfig())

	_, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))

	var iiErr *InvalidItemsError
	require.ErrorAs(t, err, &iiErr)
}

func TestPlace_UsesDiscountedPrice(t *testing.T) {
	catalog := newMockCatalog(discounted(catalogProduct("p1", "100.00", 5), "80.00"))
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	o, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.True(t, money("80.00").Equal(o.Lines[0].UnitPrice))
	assert.True(t, money("80.00").Equal(o.Subtotal))
}

func TestPlace_ShippingBelowThreshold(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "45.00", 5))
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	o, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.True(t, money("45.00").Equal(o.Subtotal))
	assert.True(t, money("5.99").Equal(o.ShippingCost))
	assert.True(t, money("50.99").Equal(o.Total))
}

func TestPlace_FreeShippingAtThreshold(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "60.00", 5))
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	o, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(o.ShippingCost))
	assert.True(t, money("60.00").Equal(o.Total))
}

func TestPlace_SuccessfulCheckout(t *testing.T) {
	catalog := newMockCatalog(
		catalogProduct("p1", "10.00", 5),
		catalogProduct("p2", "20.00", 3),
	)
	carts := &mockCartStore{}
	svc := NewService(catalog, newMockOrderRepo(), carts, testConfig())

	o, err := svc.Place(context.Background(), placeRequest(
		ItemRequest{ProductID: "p1", Quantity: 2},
		ItemRequest{ProductID: "p2", Quantity: 1},
	))
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	require.NotNil(t, o.Payment)
	assert.Contains(t, o.Payment.TransactionID, "MOCK-")
	assert.NotEmpty(t, o.Number)

	// Denormalized snapshot on every line.
	assert.Equal(t, "Product p1", o.Lines[0].Name)
	assert.Equal(t, "p1.jpg", o.Lines[0].Image)
	assert.True(t, money("40.00").Equal(o.Subtotal))

	// Stock reserved, cart cleared.
	assert.Equal(t, 3, catalog.stock("p1"))
	assert.Equal(t, 2, catalog.stock("p2"))
	require.Len(t, carts.deleted, 1)
	assert.Equal(t, "u1", carts.deleted[0].UserID)
}

func TestPlace_InsufficientStockUpFront(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "10.00", 1))
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	_, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 3}))

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "p1", isErr.ProductID)
	assert.Equal(t, 3, isErr.Requested)
	assert.Equal(t, 1, isErr.Available)
	assert.Equal(t, 1, catalog.stock("p1"), "stock untouched")
}

func TestPlace_CompensatesOnPartialDecrementFailure(t *testing.T) {
	catalog := newMockCatalog(
		catalogProduct("p1", "10.00", 5),
		catalogProduct("p2", "20.00", 3),
	)
	catalog.decrementErr["p2"] = errors.New("connection reset")
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	_, err := svc.Place(context.Background(), placeRequest(
		ItemRequest{ProductID: "p1", Quantity: 2},
		ItemRequest{ProductID: "p2", Quantity: 1},
	))
	require.Error(t, err)

	// p1's decrement was rolled back.
	assert.Equal(t, 5, catalog.stock("p1"))
	assert.Equal(t, 3, catalog.stock("p2"))
}

func TestPlace_CompensatesWhenOrderCreateFails(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "10.00", 5))
	repo := newMockOrderRepo()
	repo.createErr = errors.New("db write failed")
	svc := NewService(catalog, repo, &mockCartStore{}, testConfig())

	_, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 2}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Equal(t, 5, catalog.stock("p1"), "reserved stock released")
}

func TestPlace_BatchFetchFailureLeavesStockUntouched(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "10.00", 5))
	catalog.getByIDsErr = errors.New("timeout")
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	_, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))
	require.Error(t, err)
	assert.Equal(t, 5, catalog.stock("p1"))
}

func TestPlace_CartClearFailureDoesNotFailCheckout(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "10.00", 5))
	carts := &mockCartStore{delErr: errors.New("cart store down")}
	svc := NewService(catalog, newMockOrderRepo(), carts, testConfig())

	o, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)
}

func TestPlace_ConcurrentCheckoutsLastUnit(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "100.00", 1))
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	const n = 2
	results := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))
		}()
	}
	wg.Wait()

	var successes, stockFailures int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		default:
			var isErr *InsufficientStockError
			require.ErrorAs(t, err, &isErr)
			stockFailures++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, stockFailures)
	assert.Equal(t, 0, catalog.stock("p1"))
}

func TestPlace_StockNeverNegativeUnderContention(t *testing.T) {
	const stock = 5
	const workers = 20
	catalog := newMockCatalog(catalogProduct("p1", "10.00", stock))
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	var wg sync.WaitGroup
	var successes int64
	var mu sync.Mutex
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1})); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, successes, int64(stock))
	assert.GreaterOrEqual(t, catalog.stock("p1"), 0)
	assert.Equal(t, stock-int(successes), catalog.stock("p1"))
}

// --- Cancellation tests ---

func TestCancel_RestoresReservedStock(t *testing.T) {
	catalog := newMockCatalog(
		catalogProduct("p1", "10.00", 5),
		catalogProduct("p2", "20.00", 3),
	)
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	o, err := svc.Place(context.Background(), placeRequest(
		ItemRequest{ProductID: "p1", Quantity: 2},
		ItemRequest{ProductID: "p2", Quantity: 3},
	))
	require.NoError(t, err)
	require.Equal(t, 3, catalog.stock("p1"))
	require.Equal(t, 0, catalog.stock("p2"))

	cancelled, err := svc.Cancel(context.Background(), o.ID, "u1", "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, "changed my mind", cancelled.CancellationReason)
	assert.Equal(t, 5, catalog.stock("p1"), "stock back to pre-place values")
	assert.Equal(t, 3, catalog.stock("p2"))
}

func TestCancel_WrongOwnerIsNotFound(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "10.00", 5))
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	o, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), o.ID, "someone-else", "")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 4, catalog.stock("p1"), "no stock restore for denied cancel")
}

func TestCancel_TerminalStatusRejected(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "10.00", 5))
	repo := newMockOrderRepo()
	svc := NewService(catalog, repo, &mockCartStore{}, testConfig())

	o, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	for _, terminal := range []Status{StatusShipped, StatusDelivered, StatusCancelled} {
		repo.mu.Lock()
		repo.orders[o.ID].Status = terminal
		repo.mu.Unlock()

		_, err = svc.Cancel(context.Background(), o.ID, "u1", "too late")
		var itErr *InvalidTransitionError
		require.ErrorAs(t, err, &itErr, "status %s", terminal)
		assert.Equal(t, terminal, itErr.From)
	}
}

func TestCancel_UnknownOrder(t *testing.T) {
	svc := NewService(newMockCatalog(), newMockOrderRepo(), &mockCartStore{}, testConfig())

	_, err := svc.Cancel(context.Background(), "nope", "u1", "")
	require.ErrorIs(t, err, ErrNotFound)
}

// --- Status transition tests ---

func TestUpdateStatus_HappyPath(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "10.00", 5))
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	o, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	for _, next := range []Status{StatusProcessing, StatusShipped, StatusDelivered} {
		o, err = svc.UpdateStatus(context.Background(), o.ID, next)
		require.NoError(t, err)
		assert.Equal(t, next, o.Status)
	}
}

func TestUpdateStatus_CancelledViaUpdateRejected(t *testing.T) {
	svc := NewService(newMockCatalog(), newMockOrderRepo(), &mockCartStore{}, testConfig())

	_, err := svc.UpdateStatus(context.Background(), "any", StatusCancelled)
	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
}

func TestUpdateStatus_DeliveredIsFinal(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "10.00", 5))
	repo := newMockOrderRepo()
	svc := NewService(catalog, repo, &mockCartStore{}, testConfig())

	o, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	repo.mu.Lock()
	repo.orders[o.ID].Status = StatusDelivered
	repo.mu.Unlock()

	_, err = svc.UpdateStatus(context.Background(), o.ID, StatusProcessing)
	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
}

// --- Retrieval tests ---

func TestGet_OwnershipEnforced(t *testing.T) {
	catalog := newMockCatalog(catalogProduct("p1", "10.00", 5))
	svc := NewService(catalog, newMockOrderRepo(), &mockCartStore{}, testConfig())

	o, err := svc.Place(context.Background(), placeRequest(ItemRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), o.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = svc.Get(context.Background(), o.ID, "intruder")
	require.ErrorIs(t, err, ErrNotFound)
}
