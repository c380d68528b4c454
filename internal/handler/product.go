package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nuhin13/test-ecom/internal/domain/product"
)

// productView is the JSON shape of a catalog product.
type productView struct {
	ID              string           `json:"id"`
	SKU             string           `json:"sku"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Category        string           `json:"category,omitempty"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price,omitempty"`
	Images          []string         `json:"images"`
	Stock           int              `json:"stock"`
	Available       bool             `json:"available"`
	RatingAverage   decimal.Decimal  `json:"rating_average"`
	RatingCount     int              `json:"rating_count"`
}

// toProductView converts a domain product into its response shape, prefixing
// relative image paths with the configured base URL.
func (h *Handler) toProductView(p product.Product) productView {
	images := make([]string, len(p.Images))
	for i, img := range p.Images {
		if h.imageBaseURL != "" && !strings.HasPrefix(img, "http") {
			img = h.imageBaseURL + img
		}
		images[i] = img
	}
	return productView{
		ID:              p.ID,
		SKU:             p.SKU,
		Name:            p.Name,
		Description:     p.Description,
		Category:        p.Category,
		Price:           p.Price,
		DiscountedPrice: p.DiscountedPrice,
		Images:          images,
		Stock:           p.Stock,
		Available:       p.Available,
		RatingAverage:   p.Rating.Average,
		RatingCount:     p.Rating.Count,
	}
}

// decimalQuery parses an optional decimal query parameter, nil when absent.
func decimalQuery(q url.Values, key string) (*decimal.Decimal, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.Errorf("invalid %s", key)
	}
	return &d, nil
}

// listParams builds catalog filters from the request query string.
func (h *Handler) listParams(r *http.Request) (product.ListParams, error) {
	q := r.URL.Query()
	page, perPage := h.pageParams(r)
	params := product.ListParams{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
		Page:     page,
		PerPage:  perPage,
	}

	var err error
	if params.MinPrice, err = decimalQuery(q, "min_price"); err != nil {
		return params, err
	}
	if params.MaxPrice, err = decimalQuery(q, "max_price"); err != nil {
		return params, err
	}
	if params.MinRating, err = decimalQuery(q, "min_rating"); err != nil {
		return params, err
	}
	if raw := q.Get("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return params, errors.New("invalid available")
		}
		params.Available = &v
	}
	return params, nil
}

// ListProducts returns a catalog page. The query string supports search,
// category, min_price, max_price, min_rating, available, and sort
// (newest, price_asc, price_desc, rating).
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	params, err := h.listParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	products, total, err := h.products.List(r.Context(), params)
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]productView, len(products))
	for i, p := range products {
		views[i] = h.toProductView(p)
	}
	writeJSON(w, http.StatusOK, pagedResponse{Data: views, Total: total, Page: params.Page, PerPage: params.PerPage})
}

// ListCategories returns the distinct catalog categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.products.Categories(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categories)
}

// TopRatedProducts returns the best-rated reviewed products.
func (h *Handler) TopRatedProducts(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}

	products, err := h.products.TopRated(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]productView, len(products))
	for i, p := range products {
		views[i] = h.toProductView(p)
	}
	writeJSON(w, http.StatusOK, views)
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductView(*p))
}

// productRequest is the admin create/update payload.
type productRequest struct {
	SKU             string           `json:"sku"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Category        string           `json:"category"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price"`
	Images          []string         `json:"images"`
	Stock           int              `json:"stock"`
	Available       bool             `json:"available"`
}

func (req productRequest) validate() string {
	switch {
	case req.SKU == "":
		return "sku required"
	case req.Name == "":
		return "name required"
	case req.Price.IsNegative():
		return "price must not be negative"
	case req.Stock < 0:
		return "stock must not be negative"
	}
	return ""
}

// CreateProduct adds a catalog entry. Administrators only.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req productRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	p := product.Product{
		ID:              uuid.New().String(),
		SKU:             req.SKU,
		Name:            req.Name,
		Description:     req.Description,
		Category:        req.Category,
		Price:           req.Price,
		DiscountedPrice: req.DiscountedPrice,
		Images:          req.Images,
		Stock:           req.Stock,
		Available:       req.Available,
	}
	if err := h.products.Create(r.Context(), &p); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toProductView(p))
}

// UpdateProduct rewrites a catalog entry. Administrators only.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req productRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	p := product.Product{
		ID:              r.PathValue("id"),
		SKU:             req.SKU,
		Name:            req.Name,
		Description:     req.Description,
		Category:        req.Category,
		Price:           req.Price,
		DiscountedPrice: req.DiscountedPrice,
		Images:          req.Images,
		Stock:           req.Stock,
		Available:       req.Available,
	}
	if err := h.products.Update(r.Context(), &p); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductView(p))
}

// DeleteProduct removes a catalog entry. Administrators only.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	if err := h.products.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
