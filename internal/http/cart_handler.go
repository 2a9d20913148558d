package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/cartstore/internal/cart"
	"github.com/fjod/cartstore/internal/checkout"
	"github.com/fjod/cartstore/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const productIDRules = "required,max=128,printascii"

// CartService is the part of the cart service the handlers need.
type CartService interface {
	GetCart(ctx context.Context, sessionID string) (cart.Cart, error)
	AddItem(ctx context.Context, sessionID, productID string, quantity int) (cart.Cart, error)
	UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (cart.Cart, error)
	RemoveItem(ctx context.Context, sessionID, productID string) (cart.Cart, error)
	ClearCart(ctx context.Context, sessionID string) (cart.Cart, error)
	ItemQuantity(ctx context.Context, sessionID, productID string) (int, error)
	IsInCart(ctx context.Context, sessionID, productID string) (bool, error)
	Checkout(ctx context.Context, sessionID string) (checkout.Snapshot, error)
}

type CartHandler struct {
	responder
	carts   CartService
	timeout time.Duration
}

func NewCartHandler(carts CartService, log *logger.Logger, timeout time.Duration) *CartHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CartHandler{
		responder: responder{log: log},
		carts:     carts,
		timeout:   timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id" validate:"required,max=128,printascii"`
	// Quantity defaults to 1 when omitted.
	Quantity int `json:"quantity" validate:"omitempty,min=1,max=99"`
}

// UpdateQuantityRequestDTO accepts zero or a negative quantity, which removes the line.
type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity" validate:"required,max=99"`
}

type CartItemDTO struct {
	ProductID string          `json:"product_id"`
	Product   cart.Product    `json:"product"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartResponse struct {
	SessionID     string          `json:"session_id"`
	Items         []CartItemDTO   `json:"items"`
	TotalItems    int             `json:"total_items"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	InvalidPrices []string        `json:"invalid_prices,omitempty"`
}

type ItemStatusResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	InCart    bool   `json:"in_cart"`
}

func toCartResponse(sessionID string, c cart.Cart) CartResponse {
	items := make([]CartItemDTO, 0, len(c.Lines))
	for _, l := range c.Lines {
		price, _ := l.Product.UnitPrice()
		items = append(items, CartItemDTO{
			ProductID: l.ProductID,
			Product:   l.Product,
			Quantity:  l.Quantity,
			AddedAt:   l.AddedAt,
			Subtotal:  price.Mul(decimal.NewFromInt(int64(l.Quantity))),
		})
	}
	return CartResponse{
		SessionID:     sessionID,
		Items:         items,
		TotalItems:    c.TotalItems,
		TotalPrice:    c.TotalPrice,
		InvalidPrices: c.InvalidPrices,
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	c, err := h.carts.GetCart(ctx, sessionID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, toCartResponse(sessionID, c))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := decodeJSONBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	sessionID := getSessionID(r.Context())
	c, err := h.carts.AddItem(ctx, sessionID, req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusCreated, toCartResponse(sessionID, c))
}

func (h *CartHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	if err := validateVar("product_id", productID, productIDRules); err != nil {
		h.respondError(w, r, err)
		return
	}

	sessionID := getSessionID(r.Context())
	quantity, err := h.carts.ItemQuantity(ctx, sessionID, productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	inCart, err := h.carts.IsInCart(ctx, sessionID, productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, ItemStatusResponse{
		ProductID: productID,
		Quantity:  quantity,
		InCart:    inCart,
	})
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	if err := validateVar("product_id", productID, productIDRules); err != nil {
		h.respondError(w, r, err)
		return
	}

	var req UpdateQuantityRequestDTO
	if err := decodeJSONBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	sessionID := getSessionID(r.Context())
	c, err := h.carts.UpdateQuantity(ctx, sessionID, productID, *req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, toCartResponse(sessionID, c))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	if err := validateVar("product_id", productID, productIDRules); err != nil {
		h.respondError(w, r, err)
		return
	}

	sessionID := getSessionID(r.Context())
	c, err := h.carts.RemoveItem(ctx, sessionID, productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, toCartResponse(sessionID, c))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	c, err := h.carts.ClearCart(ctx, sessionID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, toCartResponse(sessionID, c))
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.carts.Checkout(ctx, getSessionID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, snap)
}
