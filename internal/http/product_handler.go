package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/cartstore/internal/cart"
	"github.com/fjod/cartstore/internal/catalog"
	"github.com/fjod/cartstore/pkg/logger"
)

type ProductHandler struct {
	responder
	catalog catalog.Catalog
	timeout time.Duration
}

type ProductsResponse struct {
	Products []cart.Product `json:"products"`
}

func NewProductHandler(cat catalog.Catalog, log *logger.Logger, timeout time.Duration) *ProductHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ProductHandler{
		responder: responder{log: log},
		catalog:   cat,
		timeout:   timeout,
	}
}

func (h *ProductHandler) GetProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if products == nil {
		products = []cart.Product{}
	}

	h.respondJSON(w, r, http.StatusOK, &ProductsResponse{Products: products})
}
