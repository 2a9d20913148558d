package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/cartstore/internal/cart"
	"github.com/fjod/cartstore/internal/catalog"
	"github.com/fjod/cartstore/internal/checkout"
	"github.com/fjod/cartstore/internal/metrics"
	"github.com/fjod/cartstore/internal/storage"
	"github.com/fjod/cartstore/internal/store"
	"github.com/fjod/cartstore/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIdleTTL is how long an untouched session stays in memory.
	DefaultIdleTTL = 30 * time.Minute

	// DefaultCleanupInterval is how often idle sessions are evicted.
	DefaultCleanupInterval = time.Minute
)

var (
	ErrInvalidSession    = errors.New("session id is required")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	// ErrStorageUnavailable is returned where an unreadable stored cart
	// cannot be stood in for by an empty one.
	ErrStorageUnavailable = errors.New("cart storage unavailable")
)

type Config struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	Currency        string
	Metrics         *metrics.CartMetrics
	// Now defaults to time.Now.
	Now func() time.Time
}

type session struct {
	// opMu serializes the availability check with the mutation it guards.
	opMu  sync.Mutex
	store *store.Persistent

	// transient sessions were opened while storage was unreadable. They are
	// never kept, so the next request reads storage again.
	transient bool

	// Guarded by CartService.mu.
	lastSeen  time.Time
	inUse     int
	listeners int
}

// CartService owns one persistent cart store per session.
type CartService struct {
	catalog catalog.Catalog
	storage storage.Storage
	log     *logger.Logger
	metrics *metrics.CartMetrics
	now     func() time.Time

	idleTTL  time.Duration
	currency string

	mu       sync.Mutex
	sessions map[string]*session
	sfg      singleflight.Group // one rehydration per session

	stopCleanup chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewCartService starts the idle-session cleanup loop. Call Close to stop it.
func NewCartService(cat catalog.Catalog, st storage.Storage, log *logger.Logger, cfg Config) *CartService {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Currency == "" {
		cfg.Currency = checkout.DefaultCurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &CartService{
		catalog:     cat,
		storage:     st,
		log:         log,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		idleTTL:     cfg.IdleTTL,
		currency:    cfg.Currency,
		sessions:    make(map[string]*session),
		stopCleanup: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop(cfg.CleanupInterval)

	return s
}

func (s *CartService) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.stopCleanup:
			return
		}
	}
}

// evictIdle drops sessions nobody touched within the idle TTL. Their lines are
// already in storage. Sessions in use or with subscribers stay.
func (s *CartService) evictIdle() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for sid, sess := range s.sessions {
		if sess.inUse > 0 || sess.listeners > 0 || sess.lastSeen.After(cutoff) {
			continue
		}
		delete(s.sessions, sid)
		evicted++
	}
	if evicted > 0 {
		s.metrics.SetActiveSessions(len(s.sessions))
		s.log.Debug(context.Background(), fmt.Sprintf("evicted %d idle cart sessions", evicted))
	}
	return evicted
}

// Close stops the cleanup loop. It is safe to call more than once.
func (s *CartService) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	s.wg.Wait()
}

// ActiveSessions reports how many stores are held in memory.
func (s *CartService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// acquire returns the session's store marked as in use. The caller must call
// release when done; a session in use is never evicted.
func (s *CartService) acquire(ctx context.Context, sessionID string) (*session, func(), error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil, ErrInvalidSession
	}

	for {
		if sess := s.claim(sessionID, nil); sess != nil {
			return sess, func() { s.release(sess) }, nil
		}

		v, _, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
			return s.open(ctx, sessionID), nil
		})
		sess := v.(*session)
		if sess.transient {
			return sess, func() {}, nil
		}
		if s.claim(sessionID, sess) != nil {
			return sess, func() { s.release(sess) }, nil
		}
		// Evicted or forgotten before it could be claimed.
	}
}

// claim marks the in-memory session as in use. A non-nil want only matches
// that exact session.
func (s *CartService) claim(sessionID string, want *session) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || (want != nil && sess != want) {
		return nil
	}
	sess.inUse++
	sess.lastSeen = s.now()
	return sess
}

func (s *CartService) release(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.inUse--
	sess.lastSeen = s.now()
}

func (s *CartService) open(ctx context.Context, sessionID string) *session {
	s.mu.Lock()
	if existing, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return existing
	}
	s.mu.Unlock()

	// Rehydration must not be cut short by the first caller going away.
	openCtx := s.log.WithSessionID(context.WithoutCancel(ctx), sessionID)
	p, how := store.Open(openCtx, s.storage, storage.Key(sessionID), s.log, store.WithClock(s.now))
	p.Subscribe(s.metrics.Listener())
	s.metrics.IncRehydration(how)

	if p.ReadOnly() {
		s.log.Debug(openCtx, "cart session not kept, storage unreadable")
		return &session{store: p, transient: true}
	}
	s.log.Debug(openCtx, "cart session opened: "+string(how))

	created := &session{store: p, lastSeen: s.now()}

	s.mu.Lock()
	s.sessions[sessionID] = created
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()
	return created
}

func (s *CartService) GetCart(ctx context.Context, sessionID string) (cart.Cart, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return cart.Empty(), err
	}
	defer release()
	return sess.store.Snapshot(), nil
}

// AddItem adds quantity of the catalog product to the cart. A quantity below
// one adds a single unit. The resulting line may not exceed the product's
// available quantity.
func (s *CartService) AddItem(ctx context.Context, sessionID, productID string, quantity int) (cart.Cart, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return cart.Empty(), err
	}
	defer release()

	product, err := s.catalog.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return sess.store.Snapshot(), fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return sess.store.Snapshot(), fmt.Errorf("get product %s: %w", productID, err)
	}

	if quantity < 1 {
		quantity = cart.DefaultQuantity
	}

	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	if existing := sess.store.GetItemQuantity(productID); existing+quantity > product.Qty {
		return sess.store.Snapshot(), fmt.Errorf("%w: %s has %d available, cart holds %d, requested %d",
			ErrInsufficientStock, productID, product.Qty, existing, quantity)
	}

	next, err := sess.store.AddItem(ctx, product, quantity)
	return next, s.record("add", err)
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it. A
// product that is not in the cart is left alone.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (cart.Cart, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return cart.Empty(), err
	}
	defer release()

	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	if line, ok := sess.store.Snapshot().Line(productID); ok && quantity > line.Product.Qty {
		return sess.store.Snapshot(), fmt.Errorf("%w: %s has %d available, requested %d",
			ErrInsufficientStock, productID, line.Product.Qty, quantity)
	}

	next, found, err := sess.store.UpdateQuantity(ctx, productID, quantity)
	if err != nil {
		return next, s.record("update", err)
	}
	if !found {
		s.log.Debug(s.log.WithField(ctx, "product_id", productID), "quantity update for product not in cart ignored")
		return next, nil
	}
	return next, s.record("update", nil)
}

func (s *CartService) RemoveItem(ctx context.Context, sessionID, productID string) (cart.Cart, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return cart.Empty(), err
	}
	defer release()

	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	next, err := sess.store.RemoveItem(ctx, productID)
	return next, s.record("remove", err)
}

func (s *CartService) ClearCart(ctx context.Context, sessionID string) (cart.Cart, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return cart.Empty(), err
	}
	defer release()

	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	next, err := sess.store.ClearCart(ctx)
	return next, s.record("clear", err)
}

func (s *CartService) ItemQuantity(ctx context.Context, sessionID, productID string) (int, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	defer release()
	return sess.store.GetItemQuantity(productID), nil
}

func (s *CartService) IsInCart(ctx context.Context, sessionID, productID string) (bool, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return false, err
	}
	defer release()
	return sess.store.IsInCart(productID), nil
}

// Subscribe registers l on the session's store. A session with subscribers is
// never evicted while idle, and Forget clears it instead of dropping it, so
// listeners keep receiving every later state.
func (s *CartService) Subscribe(ctx context.Context, sessionID string, l store.Listener) (unsubscribe func(), err error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()
	if sess.transient {
		return nil, ErrStorageUnavailable
	}

	s.mu.Lock()
	sess.listeners++
	s.mu.Unlock()
	remove := sess.store.Subscribe(l)

	var once sync.Once
	return func() {
		once.Do(func() {
			remove()
			s.mu.Lock()
			sess.listeners--
			s.mu.Unlock()
		})
	}, nil
}

// Checkout captures the lines and totals for the checkout flow.
func (s *CartService) Checkout(ctx context.Context, sessionID string) (checkout.Snapshot, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return checkout.Snapshot{}, err
	}
	defer release()
	if sess.transient {
		return checkout.Snapshot{}, ErrStorageUnavailable
	}

	c := sess.store.Snapshot()
	if c.IsEmpty() {
		return checkout.Snapshot{}, ErrEmptyCart
	}
	return checkout.NewSnapshot(c, s.currency, s.now()), nil
}

// Forget deletes the session's persisted lines. The in-memory store is
// dropped, unless it has subscribers: then it is cleared and kept.
func (s *CartService) Forget(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrInvalidSession
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	keep := ok && sess.listeners > 0
	switch {
	case keep:
		sess.inUse++
	case ok:
		delete(s.sessions, sessionID)
	}
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()

	if keep {
		sess.opMu.Lock()
		if _, err := sess.store.ClearCart(ctx); err != nil {
			s.log.Warn(ctx, "failed to clear subscribed cart", err)
		}
		sess.opMu.Unlock()
		s.release(sess)
	}

	if err := s.storage.Delete(ctx, storage.Key(sessionID)); err != nil {
		return fmt.Errorf("delete cart %s: %w", sessionID, err)
	}
	return nil
}

func (s *CartService) record(op string, err error) error {
	if errors.Is(err, store.ErrPersist) {
		s.metrics.IncPersistFailure()
	}
	s.metrics.IncMutation(op)
	return err
}
