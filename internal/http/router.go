package http

import (
	"net/http"
	"time"

	"github.com/fjod/cartstore/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	// Gatherer backs /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer
}

// NewRouter wires the cart API. The returned handler is instrumented with otelhttp.
func NewRouter(carts *CartHandler, products *ProductHandler, log *logger.Logger, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	rs := responder{log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware(log))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		rs.respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", products.GetProducts)

		r.Route("/cart", func(r chi.Router) {
			r.Use(SessionMiddleware(log))
			r.Get("/", carts.GetCart)
			r.Delete("/", carts.ClearCart)
			r.Get("/checkout", carts.Checkout)
			r.Post("/items", carts.AddItem)
			r.Get("/items/{product_id}", carts.GetItem)
			r.Put("/items/{product_id}", carts.UpdateQuantity)
			r.Delete("/items/{product_id}", carts.RemoveItem)
		})
	})

	return otelhttp.NewHandler(r, "cartd")
}
