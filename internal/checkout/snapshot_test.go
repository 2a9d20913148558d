package checkout

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fjod/cartstore/internal/cart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	c := cart.Empty().
		AddItem(cart.Product{ID: "p1", Name: "Sencha", Price: "4.50"}, 2, at).
		AddItem(cart.Product{ID: "p2", Name: "Broken", Price: "free"}, 1, at)

	s := NewSnapshot(c, "", at)

	assert.Equal(t, DefaultCurrency, s.Currency)
	assert.Equal(t, at, s.CapturedAt)
	assert.Equal(t, 3, s.TotalItems)
	assert.Equal(t, "9.00", s.TotalAmount.StringFixed(2))
	require.Len(t, s.Items, 2)
	assert.Equal(t, "Sencha", s.Items[0].ProductName)
	assert.Equal(t, "9.00", s.Items[0].Subtotal.StringFixed(2))
	assert.True(t, s.Items[1].UnitPrice.IsZero())
	assert.True(t, s.Items[1].Subtotal.IsZero())
}

func TestNewSnapshot_EmptyCart(t *testing.T) {
	s := NewSnapshot(cart.Empty(), "EUR", time.Now())

	assert.Empty(t, s.Items)
	assert.NotNil(t, s.Items)
	assert.True(t, s.TotalAmount.IsZero())
	assert.Equal(t, "EUR", s.Currency)
}

func TestSnapshot_JSON(t *testing.T) {
	c := cart.Empty().AddItem(cart.Product{ID: "p1", Name: "Sencha", Price: "10.00"}, 2, time.Now())

	data, err := json.Marshal(NewSnapshot(c, "USD", time.Now()))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "20", decoded["total_amount"])
	assert.Equal(t, float64(2), decoded["total_items"])
}
