package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/cartstore/internal/cart"
	"github.com/fjod/cartstore/internal/checkout"
	"github.com/fjod/cartstore/internal/service"
	"github.com/fjod/cartstore/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCarts struct {
	cart cart.Cart
	err  error

	gotSession  string
	gotProduct  string
	gotQuantity int
}

func (m *mockCarts) GetCart(_ context.Context, sessionID string) (cart.Cart, error) {
	m.gotSession = sessionID
	return m.cart, m.err
}

func (m *mockCarts) AddItem(_ context.Context, sessionID, productID string, quantity int) (cart.Cart, error) {
	m.gotSession, m.gotProduct, m.gotQuantity = sessionID, productID, quantity
	return m.cart, m.err
}

func (m *mockCarts) UpdateQuantity(_ context.Context, sessionID, productID string, quantity int) (cart.Cart, error) {
	m.gotSession, m.gotProduct, m.gotQuantity = sessionID, productID, quantity
	return m.cart, m.err
}

func (m *mockCarts) RemoveItem(_ context.Context, sessionID, productID string) (cart.Cart, error) {
	m.gotSession, m.gotProduct = sessionID, productID
	return m.cart, m.err
}

func (m *mockCarts) ClearCart(_ context.Context, sessionID string) (cart.Cart, error) {
	m.gotSession = sessionID
	return m.cart, m.err
}

func (m *mockCarts) ItemQuantity(_ context.Context, _ string, productID string) (int, error) {
	return m.cart.Quantity(productID), m.err
}

func (m *mockCarts) IsInCart(_ context.Context, _ string, productID string) (bool, error) {
	return m.cart.Contains(productID), m.err
}

func (m *mockCarts) Checkout(context.Context, string) (checkout.Snapshot, error) {
	if m.err != nil {
		return checkout.Snapshot{}, m.err
	}
	return checkout.NewSnapshot(m.cart, checkout.DefaultCurrency, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), nil
}

var shoe = cart.Product{ID: "shoe", Name: "Runner", Price: "10.00", Qty: 5}

func cartWithShoes(n int) cart.Cart {
	return cart.Empty().AddItem(shoe, n, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func newRequest(method, target, body, sessionID string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
	}
	ctx := context.WithValue(req.Context(), sessionIDKey, sessionID)
	return req.WithContext(ctx)
}

func withProductID(req *http.Request, productID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("product_id", productID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestGetCart_Success(t *testing.T) {
	carts := &mockCarts{cart: cartWithShoes(2)}
	handler := NewCartHandler(carts, nil, 5*time.Second)

	rec := httptest.NewRecorder()
	handler.GetCart(rec, newRequest(http.MethodGet, "/", "", "sess-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[CartResponse](t, rec)
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, 2, resp.TotalItems)
	assert.Equal(t, "20", resp.TotalPrice.String())
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "shoe", resp.Items[0].ProductID)
	assert.Equal(t, "20", resp.Items[0].Subtotal.String())
	assert.Equal(t, "sess-1", carts.gotSession)
}

func TestAddItem_Success(t *testing.T) {
	carts := &mockCarts{cart: cartWithShoes(1)}
	handler := NewCartHandler(carts, nil, 5*time.Second)

	rec := httptest.NewRecorder()
	handler.AddItem(rec, newRequest(http.MethodPost, "/", `{"product_id":"shoe"}`, "sess-1"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "shoe", carts.gotProduct)
	assert.Zero(t, carts.gotQuantity)
}

func TestAddItem_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing product", body: `{"quantity":1}`, field: "product_id"},
		{name: "quantity too large", body: `{"product_id":"shoe","quantity":100}`, field: "quantity"},
		{name: "negative quantity", body: `{"product_id":"shoe","quantity":-2}`, field: "quantity"},
		{name: "malformed json", body: `{"product_id":`, field: "body"},
		{name: "unknown field", body: `{"product_id":"shoe","color":"red"}`, field: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCartHandler(&mockCarts{}, nil, 5*time.Second)

			rec := httptest.NewRecorder()
			handler.AddItem(rec, newRequest(http.MethodPost, "/", tt.body, "sess-1"))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
			details, ok := resp.Details.(map[string]any)
			require.True(t, ok)
			assert.Contains(t, details, tt.field)
		})
	}
}

func TestServiceErrorsAreMapped(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"product not found", service.ErrProductNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"insufficient stock", service.ErrInsufficientStock, http.StatusUnprocessableEntity, "STATE_CONFLICT"},
		{"persist failure", store.ErrPersist, http.StatusServiceUnavailable, "DEPENDENCY_ERROR"},
		{"storage unavailable", service.ErrStorageUnavailable, http.StatusServiceUnavailable, "DEPENDENCY_ERROR"},
		{"invalid session", service.ErrInvalidSession, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCartHandler(&mockCarts{err: tt.err}, nil, 5*time.Second)

			rec := httptest.NewRecorder()
			handler.AddItem(rec, newRequest(http.MethodPost, "/", `{"product_id":"shoe","quantity":1}`, "sess-1"))

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestUpdateQuantity(t *testing.T) {
	carts := &mockCarts{cart: cartWithShoes(3)}
	handler := NewCartHandler(carts, nil, 5*time.Second)

	rec := httptest.NewRecorder()
	req := withProductID(newRequest(http.MethodPut, "/", `{"quantity":0}`, "sess-1"), "shoe")
	handler.UpdateQuantity(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shoe", carts.gotProduct)
	assert.Zero(t, carts.gotQuantity)

	rec = httptest.NewRecorder()
	req = withProductID(newRequest(http.MethodPut, "/", `{}`, "sess-1"), "shoe")
	handler.UpdateQuantity(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveItem_InvalidProductID(t *testing.T) {
	handler := NewCartHandler(&mockCarts{}, nil, 5*time.Second)

	rec := httptest.NewRecorder()
	req := withProductID(newRequest(http.MethodDelete, "/", "", "sess-1"), strings.Repeat("x", 200))
	handler.RemoveItem(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetItem(t *testing.T) {
	handler := NewCartHandler(&mockCarts{cart: cartWithShoes(2)}, nil, 5*time.Second)

	rec := httptest.NewRecorder()
	handler.GetItem(rec, withProductID(newRequest(http.MethodGet, "/", "", "sess-1"), "shoe"))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ItemStatusResponse](t, rec)
	assert.Equal(t, ItemStatusResponse{ProductID: "shoe", Quantity: 2, InCart: true}, resp)
}

func TestCheckout(t *testing.T) {
	handler := NewCartHandler(&mockCarts{cart: cartWithShoes(2)}, nil, 5*time.Second)

	rec := httptest.NewRecorder()
	handler.Checkout(rec, newRequest(http.MethodGet, "/", "", "sess-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[checkout.Snapshot](t, rec)
	assert.Equal(t, 2, resp.TotalItems)
	assert.Equal(t, "USD", resp.Currency)

	handler = NewCartHandler(&mockCarts{err: service.ErrEmptyCart}, nil, 5*time.Second)
	rec = httptest.NewRecorder()
	handler.Checkout(rec, newRequest(http.MethodGet, "/", "", "sess-1"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
