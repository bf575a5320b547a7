package services

import (
	"context"
	"sync"

	"scan-order/catalog"
	"scan-order/models"
	"scan-order/storage"

	"go.uber.org/zap"
)

// Session is one customer's ordering state: the active store, its cart and the order being tracked.
// All state lives here and in the session store; nothing is kept in package globals.
type Session struct {
	ID string

	mu       sync.Mutex // serializes scan and checkout flows
	cart     *CartSynchronizer
	resolver *Resolver
	catalog  catalog.Catalog
	engine   *Engine
	poller   *Poller
	log      *zap.Logger

	trackMu  sync.Mutex
	tracking *PollHandle
}

// CheckoutResult is the created order and the outcome of the payment attempt, if any.
type CheckoutResult struct {
	Order        *models.Order
	PaymentTried bool
	Paid         bool
	PaymentErr   error
}

// SessionDeps are the collaborators shared by all sessions.
type SessionDeps struct {
	Store    storage.SessionStore
	Catalog  catalog.Catalog
	Resolver *Resolver
	Engine   *Engine
	Poller   *Poller
	Log      *zap.Logger
}

func NewSession(id string, deps SessionDeps) *Session {
	return &Session{
		ID:       id,
		cart:     NewCartSynchronizer(deps.Store, id, deps.Log),
		resolver: deps.Resolver,
		catalog:  deps.Catalog,
		engine:   deps.Engine,
		poller:   deps.Poller,
		log:      deps.Log.Named("session").With(zap.String("session", id)),
	}
}

// Cart exposes the session's cart for item operations.
func (s *Session) Cart() *CartSynchronizer {
	return s.cart
}

// Restore reloads the store context and cart saved by an earlier run.
func (s *Session) Restore(ctx context.Context) (*models.StoreContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Restore(ctx)
}

// Scan resolves a scene code and switches the session to that store. An unresolvable code
// returns a *ResolutionError and leaves the session as it was.
func (s *Session) Scan(ctx context.Context, sceneCode string, confirm Confirmer) (models.StoreContext, SwitchResult, error) {
	sc, err := s.resolver.Resolve(ctx, sceneCode)
	if err != nil {
		return models.StoreContext{}, SwitchResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.cart.SwitchStore(ctx, sc, confirm)
	if err != nil {
		return models.StoreContext{}, SwitchResult{}, err
	}
	return sc, res, nil
}

// Menu lists the active store's products.
func (s *Session) Menu(ctx context.Context) ([]models.Product, error) {
	active, ok := s.cart.Active()
	if !ok {
		return nil, ErrNoActiveStore
	}
	return s.catalog.Menu(ctx, active.ID)
}

// AddProduct looks the product up in the active store's menu and adds it to the cart.
func (s *Session) AddProduct(ctx context.Context, productID, spec string, qty int) (models.CartItem, error) {
	active, ok := s.cart.Active()
	if !ok {
		return models.CartItem{}, ErrNoActiveStore
	}
	p, err := s.catalog.Product(ctx, active.ID, productID)
	if err != nil {
		return models.CartItem{}, err
	}
	return s.cart.AddItem(ctx, p, spec, qty)
}

// Checkout turns the live cart into an order and attempts payment when the store takes online
// payment. The ordered lines leave the live cart as soon as the order exists; items added while
// payment runs stay in the cart. A failed payment does not undo the order; it stays PENDING_PAY
// and can be paid again with Pay.
func (s *Session) Checkout(ctx context.Context) (CheckoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, ok := s.cart.Active()
	if !ok {
		return CheckoutResult{}, ErrNoActiveStore
	}
	ordered := s.cart.Items()
	o, err := s.engine.Create(ctx, s.ID, active, ordered)
	if err != nil {
		return CheckoutResult{}, err
	}
	s.cart.RemoveOrdered(ctx, active.ID, ordered)
	res := CheckoutResult{Order: o}
	if active.AllowPay {
		res.PaymentTried = true
		res.Paid, res.PaymentErr = s.engine.RequestPayment(ctx, o.ID)
		if res.Paid {
			if updated, err := s.engine.Get(ctx, o.ID); err == nil {
				res.Order = updated
			}
		}
	}
	s.log.Info("checkout finished",
		zap.String("order_id", o.ID),
		zap.Bool("payment_tried", res.PaymentTried),
		zap.Bool("paid", res.Paid))
	return res, nil
}

// Order returns one of this session's orders.
func (s *Session) Order(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := s.engine.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.SessionID != s.ID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// Pay retries payment for one of this session's orders.
func (s *Session) Pay(ctx context.Context, orderID string) (bool, error) {
	if _, err := s.Order(ctx, orderID); err != nil {
		return false, err
	}
	return s.engine.RequestPayment(ctx, orderID)
}

// Cancel cancels one of this session's orders if it has not finished.
func (s *Session) Cancel(ctx context.Context, orderID string) (*models.Order, error) {
	if _, err := s.Order(ctx, orderID); err != nil {
		return nil, err
	}
	return s.engine.Cancel(ctx, orderID, "cancelled by customer")
}

// Orders lists the session's orders, newest first.
func (s *Session) Orders(ctx context.Context, limit int) ([]*models.Order, error) {
	return s.engine.ListRecent(ctx, s.ID, limit)
}

// Track starts polling an order's status, replacing any order tracked before.
// onDone receives the final result unless tracking is stopped first.
func (s *Session) Track(ctx context.Context, orderID string, onChange func(models.OrderStatus), onDone func(PollResult)) error {
	if _, err := s.Order(ctx, orderID); err != nil {
		return err
	}
	s.StopTracking()
	h := s.poller.Start(ctx, orderID, onChange)
	s.trackMu.Lock()
	s.tracking = h
	s.trackMu.Unlock()
	go func() {
		res := <-h.Done()
		if res.Outcome == PollCancelled || onDone == nil {
			return
		}
		h.ifActive(func() { onDone(res) })
	}()
	return nil
}

// StopTracking stops the current status watch, if any. No callback fires after it returns.
func (s *Session) StopTracking() {
	s.trackMu.Lock()
	h := s.tracking
	s.tracking = nil
	s.trackMu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// SessionManager owns the live sessions, creating and restoring them on first use.
type SessionManager struct {
	deps SessionDeps

	mu       sync.Mutex
	sessions map[string]*managedSession
}

type managedSession struct {
	session  *Session
	restored sync.Once
}

func NewSessionManager(deps SessionDeps) *SessionManager {
	return &SessionManager{deps: deps, sessions: make(map[string]*managedSession)}
}

// Get returns the session for id, restoring it from storage the first time it is seen.
// Concurrent first calls for one id wait for the same restore; other ids are not held up by it.
func (m *SessionManager) Get(ctx context.Context, id string) *Session {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	if !ok {
		ms = &managedSession{session: NewSession(id, m.deps)}
		m.sessions[id] = ms
	}
	m.mu.Unlock()

	ms.restored.Do(func() {
		if _, err := ms.session.Restore(ctx); err != nil {
			m.deps.Log.Warn("session restore degraded", zap.String("session", id), zap.Error(err))
		}
	})
	return ms.session
}
