package metrics

import (
	"github.com/fjod/cartstore/internal/cart"
	"github.com/fjod/cartstore/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records cart store activity. A nil *CartMetrics is valid and
// records nothing.
type CartMetrics struct {
	mutations       *prometheus.CounterVec
	rehydrations    *prometheus.CounterVec
	persistFailures prometheus.Counter
	invalidPrices   prometheus.Counter
	activeSessions  prometheus.Gauge
	cartItems       prometheus.Histogram
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return nil
	}
	m := &CartMetrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Cart mutations by operation.",
		}, []string{"op"}),
		rehydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_rehydrations_total",
			Help: "Cart stores opened, by where their state came from.",
		}, []string{"result"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cart_persist_failures_total",
			Help: "Mutations whose write-through save failed.",
		}),
		invalidPrices: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cart_invalid_prices_total",
			Help: "Cart states observed with at least one non-numeric product price.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_active_sessions",
			Help: "Cart stores currently held in memory.",
		}),
		cartItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cart_items",
			Help:    "Total items in a cart after each mutation.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
	}
	reg.MustRegister(m.mutations, m.rehydrations, m.persistFailures, m.invalidPrices, m.activeSessions, m.cartItems)
	return m
}

func (m *CartMetrics) IncMutation(op string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op).Inc()
}

func (m *CartMetrics) IncRehydration(result store.Rehydration) {
	if m == nil {
		return
	}
	m.rehydrations.WithLabelValues(string(result)).Inc()
}

func (m *CartMetrics) IncPersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *CartMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// Listener observes every cart state published by a store.
func (m *CartMetrics) Listener() store.Listener {
	return func(c cart.Cart) {
		if m == nil {
			return
		}
		m.cartItems.Observe(float64(c.TotalItems))
		if len(c.InvalidPrices) > 0 {
			m.invalidPrices.Inc()
		}
	}
}
