package store

import (
	"slices"
	"sync"
	"time"

	"github.com/fjod/cartstore/internal/cart"
)

// Listener receives the cart state produced by a mutation.
type Listener func(cart.Cart)

type Option func(*Store)

// WithClock replaces time.Now for the addedAt timestamp of new lines.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store holds one cart in memory and notifies listeners after every mutation.
//
// Each operation is atomic with respect to the others. Listeners run
// synchronously, in mutation order, before the mutating call returns; they
// may read from the store but must not mutate it.
type Store struct {
	mu    sync.RWMutex
	state cart.Cart

	// notifyMu serializes mutators so notifications keep mutation order. It is
	// always taken before mu.
	notifyMu  sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64
	lmu       sync.Mutex

	now func() time.Time
}

// New returns a store holding initial.
func New(initial cart.Cart, opts ...Option) *Store {
	s := &Store{
		state:     cart.New(initial.Lines),
		listeners: make(map[uint64]Listener),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

func (s *Store) AddItem(product cart.Product, quantity int) cart.Cart {
	return s.apply(func(c cart.Cart) cart.Cart {
		return c.AddItem(product, quantity, s.now())
	})
}

func (s *Store) RemoveItem(productID string) cart.Cart {
	return s.apply(func(c cart.Cart) cart.Cart {
		return c.RemoveItem(productID)
	})
}

// UpdateQuantity sets the quantity of productID; zero or less removes the
// line. found is false when productID is not in the cart, in which case
// nothing changes.
func (s *Store) UpdateQuantity(productID string, quantity int) (next cart.Cart, found bool) {
	next = s.apply(func(c cart.Cart) cart.Cart {
		var updated cart.Cart
		updated, found = c.UpdateQuantity(productID, quantity)
		return updated
	})
	return next, found
}

func (s *Store) ClearCart() cart.Cart {
	return s.apply(func(c cart.Cart) cart.Cart {
		return c.Clear()
	})
}

func (s *Store) GetItemQuantity(productID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Quantity(productID)
}

func (s *Store) IsInCart(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Contains(productID)
}

// Snapshot returns the current cart. Carts are values that no later
// mutation touches; callers must not modify the Lines slice in place.
func (s *Store) Snapshot() cart.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// apply holds notifyMu across transition and notification, and mu only for
// the transition, so listeners can read the store while it notifies.
func (s *Store) apply(transition func(cart.Cart) cart.Cart) cart.Cart {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next := transition(s.state)
	s.state = next
	s.mu.Unlock()

	s.notify(next)
	return next
}

func (s *Store) notify(c cart.Cart) {
	s.lmu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.lmu.Unlock()

	for _, l := range listeners {
		l(c)
	}
}
