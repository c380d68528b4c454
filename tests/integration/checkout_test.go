//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{14}-\d{6}$`)

// checkAmount compares decimal strings by value, so "6.5" and "6.50" are equal.
func checkAmount(t *testing.T, field, got, want string) {
	t.Helper()
	g, err := strconv.ParseFloat(got, 64)
	if err != nil {
		t.Fatalf("%s: parse %q: %v", field, got, err)
	}
	w, err := strconv.ParseFloat(want, 64)
	if err != nil {
		t.Fatalf("%s: parse %q: %v", field, want, err)
	}
	if g != w {
		t.Errorf("%s: got %s, want %s", field, got, want)
	}
}

func placeOrderBody(productID string, qty int) map[string]any {
	return map[string]any{
		"items":            []map[string]any{{"product_id": productID, "quantity": qty}},
		"shipping_address": shippingAddress(),
	}
}

func TestPlaceOrder_NoAuth(t *testing.T) {
	p := productBySKU(t, "JAM-MANGO-500")

	resp := do(t, http.MethodPost, "/api/orders", placeOrderBody(p.ID, 1), asGuest("anon"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	body := map[string]any{
		"items":            []map[string]any{},
		"shipping_address": shippingAddress(),
	}
	resp := do(t, http.MethodPost, "/api/orders", body, asUser(uuid.NewString()))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/orders", placeOrderBody(uuid.NewString(), 1), asUser(uuid.NewString()))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_FlatShippingBelowThreshold(t *testing.T) {
	p := productBySKU(t, "JAM-MANGO-500") // 6.50

	resp := do(t, http.MethodPost, "/api/orders", placeOrderBody(p.ID, 1), asUser(uuid.NewString()))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderResponse](t, resp)
	checkAmount(t, "subtotal", o.Subtotal, "6.50")
	checkAmount(t, "shipping", o.ShippingCost, "5.99")
	checkAmount(t, "total", o.Total, "12.49")
	if o.Status != "confirmed" || o.PaymentStatus != "paid" {
		t.Errorf("status: got %s/%s, want confirmed/paid", o.Status, o.PaymentStatus)
	}
	if !orderNumberPattern.MatchString(o.Number) {
		t.Errorf("order number %q does not match expected format", o.Number)
	}
	if o.TransactionID == "" {
		t.Error("expected a transaction id")
	}
}

func TestPlaceOrder_FreeShippingAtThreshold(t *testing.T) {
	p := productBySKU(t, "NAKSHI-THROW-01") // discounted 59.00

	resp := do(t, http.MethodPost, "/api/orders", placeOrderBody(p.ID, 1), asUser(uuid.NewString()))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderResponse](t, resp)
	// The discounted price is the one charged.
	checkAmount(t, "subtotal", o.Subtotal, "59.00")
	checkAmount(t, "shipping", o.ShippingCost, "0")
}

func TestPlaceOrder_DecrementsStock(t *testing.T) {
	before := productBySKU(t, "POTTERY-BOWL-SET")

	resp := do(t, http.MethodPost, "/api/orders", placeOrderBody(before.ID, 2), asUser(uuid.NewString()))
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	after := productBySKU(t, "POTTERY-BOWL-SET")
	if after.Stock != before.Stock-2 {
		t.Errorf("stock: got %d, want %d", after.Stock, before.Stock-2)
	}
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	p := productBySKU(t, "SAREE-JAMDANI-01")

	resp := do(t, http.MethodPost, "/api/orders", placeOrderBody(p.ID, p.Stock+1), asUser(uuid.NewString()))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	after := productBySKU(t, "SAREE-JAMDANI-01")
	if after.Stock != p.Stock {
		t.Errorf("stock changed on failed checkout: got %d, want %d", after.Stock, p.Stock)
	}
}

func TestPlaceOrder_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	p := productBySKU(t, "HONEY-SUNDAR-350")
	const workers = 10

	qty := p.Stock/workers + 1 // total demand exceeds stock

	body, err := json.Marshal(placeOrderBody(p.ID, qty))
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, baseURL+"/api/orders", bytes.NewReader(body))
			if err != nil {
				errs <- err
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-User-ID", uuid.NewString())

			resp, err := httpClient.Do(req)
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()

			if resp.StatusCode == http.StatusCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent checkout: %v", err)
	}

	after := productBySKU(t, "HONEY-SUNDAR-350")
	if after.Stock < 0 {
		t.Fatalf("stock went negative: %d", after.Stock)
	}
	if got, want := p.Stock-after.Stock, created*qty; got != want {
		t.Errorf("stock delta %d does not match %d created orders of %d units", got, created, qty)
	}
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	before := productBySKU(t, "LEATHER-WALLET-BD")
	user := uuid.NewString()

	resp := do(t, http.MethodPost, "/api/orders", placeOrderBody(before.ID, 3), asUser(user))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	placed := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	resp = do(t, http.MethodPost, "/api/orders/"+placed.ID+"/cancel",
		map[string]any{"reason": "ordered by mistake"}, asUser(user))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderResponse](t, resp)
	if o.Status != "cancelled" {
		t.Errorf("status: got %s, want cancelled", o.Status)
	}

	after := productBySKU(t, "LEATHER-WALLET-BD")
	if after.Stock != before.Stock {
		t.Errorf("stock: got %d, want %d", after.Stock, before.Stock)
	}
}

func TestOrderLifecycle_AdminTransitions(t *testing.T) {
	p := productBySKU(t, "JUTE-BAG-TOTE")
	user := uuid.NewString()

	resp := do(t, http.MethodPost, "/api/orders", placeOrderBody(p.ID, 1), asUser(user))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	placed := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	for _, status := range []string{"processing", "shipped", "delivered"} {
		resp = do(t, http.MethodPut, "/api/orders/"+placed.ID+"/status",
			map[string]any{"status": status}, asAdmin())
		body := decodeJSON[orderResponse](t, resp)
		resp.Body.Close()
		if body.Status != status {
			t.Fatalf("transition to %s: got %s", status, body.Status)
		}
	}

	// Delivered is final.
	resp = do(t, http.MethodPut, "/api/orders/"+placed.ID+"/status",
		map[string]any{"status": "processing"}, asAdmin())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestListOrders_OwnedOnly(t *testing.T) {
	p := productBySKU(t, "SPICE-PANCH-100")
	user := uuid.NewString()

	resp := do(t, http.MethodPost, "/api/orders", placeOrderBody(p.ID, 1), asUser(user))
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, "/api/orders", nil, asUser(user))
	page := decodeJSON[pagedResponse[orderResponse]](t, resp)
	resp.Body.Close()
	if page.Total != 1 {
		t.Errorf("own orders: got %d, want 1", page.Total)
	}

	resp = do(t, http.MethodGet, "/api/orders", nil, asUser(uuid.NewString()))
	page = decodeJSON[pagedResponse[orderResponse]](t, resp)
	resp.Body.Close()
	if page.Total != 0 {
		t.Errorf("stranger's orders: got %d, want 0", page.Total)
	}
}

func TestListAllOrders_AdminOnly(t *testing.T) {
	p := productBySKU(t, "HONEY-SUNDAR-350")

	resp := do(t, http.MethodPost, "/api/orders", placeOrderBody(p.ID, 1), asUser(uuid.NewString()))
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, "/api/admin/orders", nil, asUser(uuid.NewString()))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("as user: expected 403, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, "/api/admin/orders?per_page=50", nil, asAdmin())
	page := decodeJSON[pagedResponse[orderResponse]](t, resp)
	resp.Body.Close()
	if page.Total < 1 {
		t.Errorf("all orders: got %d, want at least 1", page.Total)
	}

	resp = do(t, http.MethodGet, "/api/admin/orders?status=bogus", nil, asAdmin())
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus status: expected 400, got %d", resp.StatusCode)
	}
}
