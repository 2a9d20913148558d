package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/cartstore/internal/cart"
	"github.com/fjod/cartstore/internal/catalog"
	"github.com/fjod/cartstore/internal/metrics"
	"github.com/fjod/cartstore/internal/service"
	"github.com/fjod/cartstore/internal/storage"
	"github.com/fjod/cartstore/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct {
	products map[string]cart.Product
}

func (s stubCatalog) GetProduct(_ context.Context, id string) (cart.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return cart.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (s stubCatalog) ListProducts(context.Context) ([]cart.Product, error) {
	return []cart.Product{s.products["shoe"]}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logger.Nop()
	reg := prometheus.NewRegistry()
	cat := stubCatalog{products: map[string]cart.Product{"shoe": shoe}}

	svc := service.NewCartService(cat, storage.NewMemoryStorage(), log, service.Config{
		Metrics: metrics.NewCartMetrics(reg),
	})
	t.Cleanup(svc.Close)

	return NewRouter(
		NewCartHandler(svc, log, 5*time.Second),
		NewProductHandler(cat, log, 5*time.Second),
		log,
		RouterConfig{Gatherer: reg},
	)
}

func do(t *testing.T, h http.Handler, method, target, body, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
	}
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_CartFlow(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"shoe","quantity":2}`, "sess-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "sess-1", rec.Header().Get(HeaderSessionID))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec = do(t, h, http.MethodPut, "/api/v1/cart/items/shoe", `{"quantity":4}`, "sess-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decodeBody[CartResponse](t, rec).TotalItems)

	rec = do(t, h, http.MethodPut, "/api/v1/cart/items/shoe", `{"quantity":9}`, "sess-1")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/cart/items/shoe", "", "sess-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decodeBody[ItemStatusResponse](t, rec).Quantity)

	rec = do(t, h, http.MethodGet, "/api/v1/cart/checkout", "", "sess-1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/cart/items/shoe", "", "sess-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decodeBody[CartResponse](t, rec).TotalItems)

	rec = do(t, h, http.MethodGet, "/api/v1/cart/checkout", "", "sess-1")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/cart", "", "sess-1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_UnknownProduct(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"ghost"}`, "sess-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_GeneratesSession(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/cart", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(HeaderSessionID)
	assert.NotEmpty(t, sessionID)
	assert.Equal(t, sessionID, decodeBody[CartResponse](t, rec).SessionID)
}

func TestRouter_RejectsOversizedSession(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/cart", "", strings.Repeat("s", 200))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_HealthProductsAndMetrics(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/products", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[ProductsResponse](t, rec).Products, 1)

	do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"shoe"}`, "sess-1")
	rec = do(t, h, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cart_mutations_total{op="add"} 1`)
}
