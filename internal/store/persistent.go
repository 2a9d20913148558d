package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/cartstore/internal/cart"
	"github.com/fjod/cartstore/internal/storage"
	"github.com/fjod/cartstore/pkg/logger"
)

var (
	ErrPersist = errors.New("cart not persisted")
	// ErrNotRehydrated is returned by mutators of a store whose stored state
	// could not be read. Saving would overwrite that state.
	ErrNotRehydrated = errors.New("stored cart could not be read")
)

// Rehydration describes where the initial state of a Persistent came from.
type Rehydration string

const (
	RehydrationRestored    Rehydration = "restored"
	RehydrationEmpty       Rehydration = "empty"
	RehydrationCorrupt     Rehydration = "corrupt"
	RehydrationUnavailable Rehydration = "unavailable"
)

// Persistent decorates a Store with write-through persistence of its lines.
// Mutation and save happen under one lock, so the stored blob always matches
// the latest in-memory state.
type Persistent struct {
	mu      sync.Mutex
	store   *Store
	storage storage.Storage
	key     string
	log     *logger.Logger
	// readOnly is set when storage failed on Open.
	readOnly bool
}

// Open restores the cart stored under key. It never fails: a missing blob
// gives an empty cart, and a corrupt blob or an unreachable storage is
// logged and also gives an empty cart. After RehydrationUnavailable the
// store is read-only: every mutator returns ErrPersist wrapping
// ErrNotRehydrated and leaves both memory and storage untouched.
func Open(ctx context.Context, st storage.Storage, key string, log *logger.Logger, opts ...Option) (*Persistent, Rehydration) {
	p := &Persistent{
		storage: st,
		key:     key,
		log:     log,
	}

	initial, how := p.rehydrate(ctx)
	p.readOnly = how == RehydrationUnavailable
	p.store = New(initial, opts...)
	p.warnInvalidPrices(ctx, p.store.Snapshot())
	return p, how
}

func (p *Persistent) rehydrate(ctx context.Context) (cart.Cart, Rehydration) {
	blob, err := p.storage.Load(ctx, p.key)
	if errors.Is(err, storage.ErrNotFound) {
		return cart.Empty(), RehydrationEmpty
	}
	if err != nil {
		p.log.Warn(ctx, "cart storage unavailable, starting with empty cart", err)
		return cart.Empty(), RehydrationUnavailable
	}

	c, err := Decode(blob)
	if err != nil {
		p.log.Warn(ctx, "discarding unreadable cart blob", err)
		return cart.Empty(), RehydrationCorrupt
	}
	return c, RehydrationRestored
}

func (p *Persistent) AddItem(ctx context.Context, product cart.Product, quantity int) (cart.Cart, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readOnly {
		return p.store.Snapshot(), errReadOnly
	}

	next := p.store.AddItem(product, quantity)
	p.warnInvalidPrices(ctx, next)
	return next, p.save(ctx, next)
}

func (p *Persistent) RemoveItem(ctx context.Context, productID string) (cart.Cart, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readOnly {
		return p.store.Snapshot(), errReadOnly
	}

	next := p.store.RemoveItem(productID)
	return next, p.save(ctx, next)
}

// UpdateQuantity behaves like Store.UpdateQuantity. An unknown product is
// reported through found and is not saved again.
func (p *Persistent) UpdateQuantity(ctx context.Context, productID string, quantity int) (cart.Cart, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readOnly {
		return p.store.Snapshot(), p.store.IsInCart(productID), errReadOnly
	}

	next, found := p.store.UpdateQuantity(productID, quantity)
	if !found {
		return next, false, nil
	}
	return next, true, p.save(ctx, next)
}

func (p *Persistent) ClearCart(ctx context.Context) (cart.Cart, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readOnly {
		return p.store.Snapshot(), errReadOnly
	}

	next := p.store.ClearCart()
	return next, p.save(ctx, next)
}

func (p *Persistent) GetItemQuantity(productID string) int {
	return p.store.GetItemQuantity(productID)
}

func (p *Persistent) IsInCart(productID string) bool {
	return p.store.IsInCart(productID)
}

func (p *Persistent) Snapshot() cart.Cart {
	return p.store.Snapshot()
}

func (p *Persistent) Subscribe(l Listener) (unsubscribe func()) {
	return p.store.Subscribe(l)
}

// ReadOnly reports whether Open could not read storage.
func (p *Persistent) ReadOnly() bool {
	return p.readOnly
}

func (p *Persistent) Key() string {
	return p.key
}

var errReadOnly = fmt.Errorf("%w: %w", ErrPersist, ErrNotRehydrated)

func (p *Persistent) save(ctx context.Context, c cart.Cart) error {
	blob, err := Encode(c)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := p.storage.Save(ctx, p.key, blob); err != nil {
		p.log.Error(ctx, "failed to persist cart", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (p *Persistent) warnInvalidPrices(ctx context.Context, c cart.Cart) {
	if len(c.InvalidPrices) == 0 {
		return
	}
	ctx = p.log.WithField(ctx, "product_ids", c.InvalidPrices)
	p.log.Warn(ctx, "non-numeric product price counted as zero", nil)
}
