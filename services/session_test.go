package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"scan-order/models"
	"scan-order/storage"

	"go.uber.org/zap"
)

type sessionFixture struct {
	deps    SessionDeps
	engine  *Engine
	store   *storage.MemoryStore
	gateway *scriptedGateway
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	gw := &scriptedGateway{}
	e, _, _ := newTestEngine(gw)
	cat := testCatalog()
	store := storage.NewMemoryStore()
	p := NewPoller(&fakeKitchen{engine: e}, PollerConfig{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 10}, zap.NewNop())
	p.wait = noWait
	return &sessionFixture{
		deps: SessionDeps{
			Store:    store,
			Catalog:  cat,
			Resolver: NewResolver(cat, zap.NewNop()),
			Engine:   e,
			Poller:   p,
			Log:      zap.NewNop(),
		},
		engine:  e,
		store:   store,
		gateway: gw,
	}
}

func keep() Confirmer {
	return ConfirmFunc(func(context.Context, models.StoreContext, []models.CartItem) (bool, error) { return false, nil })
}

func TestSessionScanResolvesStore(t *testing.T) {
	f := newSessionFixture(t)
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	sc, res, err := s.Scan(ctx, "TABLE-A12", nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if sc.ID != "X" || sc.TableNumber != "A12" || sc.DefaultOrderType != models.OrderTypeDineIn {
		t.Errorf("store context = %+v, want X, table A12, dine-in", sc)
	}
	if res.Previous != nil {
		t.Errorf("Previous = %+v on first scan, want nil", res.Previous)
	}
	menu, err := s.Menu(ctx)
	if err != nil || len(menu) != 2 {
		t.Fatalf("Menu() = %d products, %v; want 2", len(menu), err)
	}
}

func TestSessionFailedScanKeepsState(t *testing.T) {
	f := newSessionFixture(t)
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	if _, _, err := s.Scan(ctx, "STORE-X", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddProduct(ctx, "p1", "", 2); err != nil {
		t.Fatal(err)
	}
	_, _, err := s.Scan(ctx, "NOPE", nil)
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("Scan(NOPE) error = %v, want ErrResolution", err)
	}
	active, ok := s.Cart().Active()
	if !ok || active.ID != "X" {
		t.Errorf("active store after failed scan = %+v, %v; want X", active, ok)
	}
	if s.Cart().Count() != 2 {
		t.Errorf("cart count after failed scan = %d, want 2", s.Cart().Count())
	}
}

func TestSessionAddProductErrors(t *testing.T) {
	f := newSessionFixture(t)
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	if _, err := s.AddProduct(ctx, "p1", "", 1); !errors.Is(err, ErrNoActiveStore) {
		t.Errorf("AddProduct before scan error = %v, want ErrNoActiveStore", err)
	}
	s.Scan(ctx, "STORE-X", nil)
	if _, err := s.AddProduct(ctx, "q1", "", 1); err == nil {
		t.Error("AddProduct of another store's product succeeded")
	}
	if _, err := s.AddProduct(ctx, "p2", "warm", 1); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("AddProduct with unknown spec error = %v, want ErrInvalidSpec", err)
	}
}

func TestSessionCheckoutPayAndTrack(t *testing.T) {
	f := newSessionFixture(t)
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	s.Scan(ctx, "TABLE-A12", nil)
	s.AddProduct(ctx, "p1", "", 1)
	s.AddProduct(ctx, "p2", "iced", 2)

	res, err := s.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !res.PaymentTried || !res.Paid || res.PaymentErr != nil {
		t.Fatalf("checkout result = %+v, want paid", res)
	}
	if res.Order.Status != models.OrderStatusPaid {
		t.Errorf("order status = %s, want PAID", res.Order.Status)
	}
	if !res.Order.TotalAmount.Equal(money("39.90")) {
		t.Errorf("total = %s, want 39.90", res.Order.TotalAmount)
	}
	if res.Order.TakeNumber != "A001" {
		t.Errorf("take number = %s, want A001", res.Order.TakeNumber)
	}
	if s.Cart().Count() != 0 {
		t.Errorf("cart not cleared after checkout: %d items", s.Cart().Count())
	}

	var mu sync.Mutex
	var seen []models.OrderStatus
	done := make(chan PollResult, 1)
	err = s.Track(ctx, res.Order.ID, func(st models.OrderStatus) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	}, func(r PollResult) { done <- r })
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	select {
	case r := <-done:
		if r.Outcome != PollTerminal || r.Status != models.OrderStatusCompleted {
			t.Errorf("tracking result = %+v, want COMPLETED", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tracking did not finish")
	}
	mu.Lock()
	defer mu.Unlock()
	want := []models.OrderStatus{models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusCompleted}
	if len(seen) != len(want) {
		t.Fatalf("statuses seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("status %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestSessionCheckoutWithoutOnlinePayment(t *testing.T) {
	f := newSessionFixture(t)
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	s.Scan(ctx, "STORE-Z", nil)
	s.AddProduct(ctx, "z1", "", 1)
	res, err := s.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if res.PaymentTried || res.Order.Status != models.OrderStatusPendingPay {
		t.Errorf("checkout result = %+v, want untried payment and PENDING_PAY", res)
	}
	if res.Order.TakeNumber != "B001" {
		t.Errorf("take number = %s, want B001", res.Order.TakeNumber)
	}
	if f.gateway.chargeCount() != 0 {
		t.Errorf("gateway charged %d times, want 0", f.gateway.chargeCount())
	}
}

func TestSessionCheckoutOrderingPaused(t *testing.T) {
	f := newSessionFixture(t)
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	s.Scan(ctx, "STORE-Y", nil)
	s.AddProduct(ctx, "q1", "", 1)
	_, _, err := s.Scan(ctx, "PAUSED-Y", nil)
	if err != nil {
		t.Fatalf("Scan(PAUSED-Y): %v", err)
	}
	if _, err := s.AddProduct(ctx, "q1", "", 1); !errors.Is(err, ErrOrderingNotAllowed) {
		t.Errorf("AddProduct error = %v, want ErrOrderingNotAllowed", err)
	}
	if _, err := s.Checkout(ctx); !errors.Is(err, ErrOrderingNotAllowed) {
		t.Errorf("Checkout error = %v, want ErrOrderingNotAllowed", err)
	}
	if s.Cart().Count() != 1 {
		t.Errorf("cart count = %d after refused checkout, want 1", s.Cart().Count())
	}
}

func TestSessionCheckoutDeclinedThenPay(t *testing.T) {
	f := newSessionFixture(t)
	f.gateway.declines = 1
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	s.Scan(ctx, "STORE-X", nil)
	s.AddProduct(ctx, "p1", "", 1)
	res, err := s.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if res.Paid || !errors.Is(res.PaymentErr, ErrPaymentDeclined) {
		t.Fatalf("checkout result = %+v, want declined payment", res)
	}
	if res.Order.Status != models.OrderStatusPendingPay {
		t.Errorf("status after decline = %s, want PENDING_PAY", res.Order.Status)
	}

	paid, err := s.Pay(ctx, res.Order.ID)
	if err != nil || !paid {
		t.Fatalf("Pay retry = %v, %v; want true, nil", paid, err)
	}
	o, _ := s.Order(ctx, res.Order.ID)
	if o.Status != models.OrderStatusPaid {
		t.Errorf("status after retry = %s, want PAID", o.Status)
	}
}

// gatedGateway holds every charge until release is closed.
type gatedGateway struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedGateway) Charge(ctx context.Context, o models.Order) error {
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSessionCheckoutKeepsItemsAddedDuringPayment(t *testing.T) {
	f := newSessionFixture(t)
	gw := &gatedGateway{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f.deps.Engine, _, _ = newTestEngine(gw)
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	s.Scan(ctx, "STORE-X", nil)
	s.AddProduct(ctx, "p1", "", 1)

	done := make(chan CheckoutResult, 1)
	go func() {
		res, err := s.Checkout(ctx)
		if err != nil {
			t.Errorf("Checkout: %v", err)
		}
		done <- res
	}()
	<-gw.entered
	if _, err := s.AddProduct(ctx, "p1", "", 1); err != nil {
		t.Errorf("AddProduct while paying: %v", err)
	}
	close(gw.release)
	res := <-done

	if !res.Paid {
		t.Fatalf("checkout result = %+v, want paid", res)
	}
	if items := res.Order.Items; len(items) != 1 || items[0].Quantity != 1 {
		t.Errorf("order items = %+v, want one unit of p1", res.Order.Items)
	}
	if got := s.Cart().Count(); got != 1 {
		t.Errorf("cart count after checkout = %d, want 1 (the unit added while paying)", got)
	}
	raw, err := f.store.Get(ctx, storage.CartKey("u1", "X"))
	if err != nil {
		t.Fatalf("read persisted cart: %v", err)
	}
	var saved []models.CartItem
	if err := json.Unmarshal(raw, &saved); err != nil || len(saved) != 1 || saved[0].Quantity != 1 {
		t.Errorf("persisted cart = %s (%v), want one unit", raw, err)
	}
}

func TestSessionCheckoutEmptyCart(t *testing.T) {
	f := newSessionFixture(t)
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	if _, err := s.Checkout(ctx); !errors.Is(err, ErrNoActiveStore) {
		t.Errorf("Checkout before scan error = %v, want ErrNoActiveStore", err)
	}
	s.Scan(ctx, "STORE-X", nil)
	if _, err := s.Checkout(ctx); !errors.Is(err, ErrEmptyCart) {
		t.Errorf("Checkout with empty cart error = %v, want ErrEmptyCart", err)
	}
}

func TestSessionOrdersAreOwned(t *testing.T) {
	f := newSessionFixture(t)
	alice := NewSession("alice", f.deps)
	bob := NewSession("bob", f.deps)
	ctx := context.Background()

	alice.Scan(ctx, "STORE-X", nil)
	alice.AddProduct(ctx, "p1", "", 1)
	res, err := alice.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := res.Order.ID

	if _, err := bob.Order(ctx, id); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("bob.Order error = %v, want ErrOrderNotFound", err)
	}
	if _, err := bob.Cancel(ctx, id); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("bob.Cancel error = %v, want ErrOrderNotFound", err)
	}
	if err := bob.Track(ctx, id, nil, nil); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("bob.Track error = %v, want ErrOrderNotFound", err)
	}
	orders, _ := bob.Orders(ctx, 10)
	if len(orders) != 0 {
		t.Errorf("bob sees %d orders, want 0", len(orders))
	}
	orders, _ = alice.Orders(ctx, 10)
	if len(orders) != 1 || orders[0].ID != id {
		t.Errorf("alice orders = %v, want [%s]", orders, id)
	}
}

func TestSessionCancelUnpaidOrder(t *testing.T) {
	f := newSessionFixture(t)
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	s.Scan(ctx, "STORE-Z", nil)
	s.AddProduct(ctx, "z1", "", 1)
	res, _ := s.Checkout(ctx)
	o, err := s.Cancel(ctx, res.Order.ID)
	if err != nil || o.Status != models.OrderStatusCancelled {
		t.Fatalf("Cancel = %v, %v; want CANCELLED", o, err)
	}
	if _, err := s.Pay(ctx, res.Order.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Pay on cancelled order error = %v, want ErrInvalidTransition", err)
	}
}

func TestSessionSwitchParksAndRestoresCart(t *testing.T) {
	f := newSessionFixture(t)
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	s.Scan(ctx, "STORE-X", nil)
	s.AddProduct(ctx, "p1", "", 1)
	_, res, err := s.Scan(ctx, "STORE-Y", keep())
	if err != nil || !res.Parked {
		t.Fatalf("switch to Y = %+v, %v; want parked", res, err)
	}
	if s.Cart().Count() != 0 {
		t.Errorf("Y cart count = %d, want 0", s.Cart().Count())
	}
	_, res, _ = s.Scan(ctx, "TABLE-A12", keep())
	if res.Restored != 1 || s.Cart().Count() != 1 {
		t.Errorf("back at X: restored %d lines, count %d; want 1 and 1", res.Restored, s.Cart().Count())
	}
}

func TestSessionManagerRestoresFromStorage(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	first := NewSessionManager(f.deps)
	s := first.Get(ctx, "u1")
	s.Scan(ctx, "TABLE-A12", nil)
	s.AddProduct(ctx, "p2", "hot", 3)
	if again := first.Get(ctx, "u1"); again != s {
		t.Error("Get returned a different session for the same id")
	}

	// A new manager over the same store models a process restart.
	restarted := NewSessionManager(f.deps)
	r := restarted.Get(ctx, "u1")
	active, ok := r.Cart().Active()
	if !ok || active.ID != "X" || active.TableNumber != "A12" {
		t.Fatalf("restored store = %+v, %v; want X at A12", active, ok)
	}
	items := r.Cart().Items()
	if len(items) != 1 || items[0].Quantity != 3 || items[0].Spec != "hot" {
		t.Errorf("restored items = %+v, want one line of 3 hot", items)
	}
	if fresh := restarted.Get(ctx, "u2"); fresh.Cart().Count() != 0 {
		t.Error("unknown session started with items")
	}
	if _, ok := restarted.Get(ctx, "u2").Cart().Active(); ok {
		t.Error("unknown session has an active store")
	}
}

func TestSessionManagerDegradedRestore(t *testing.T) {
	f := newSessionFixture(t)
	failing := &failingStore{SessionStore: f.store}
	failing.setDown(true)
	f.deps.Store = failing
	ctx := context.Background()

	s := NewSessionManager(f.deps).Get(ctx, "u1")
	if _, ok := s.Cart().Active(); ok {
		t.Error("active store after failed restore")
	}
	if _, _, err := s.Scan(ctx, "STORE-X", nil); err != nil {
		t.Fatalf("Scan with storage down: %v", err)
	}
	if _, err := s.AddProduct(ctx, "p1", "", 1); err != nil {
		t.Fatalf("AddProduct with storage down: %v", err)
	}
	if s.Cart().Count() != 1 {
		t.Errorf("in-memory cart count = %d, want 1", s.Cart().Count())
	}
	if !errors.Is(s.Cart().LastPersistError(), ErrPersistenceUnavailable) {
		t.Errorf("LastPersistError = %v, want ErrPersistenceUnavailable", s.Cart().LastPersistError())
	}
}

// slowStore blocks reads for one session until release is closed.
type slowStore struct {
	storage.SessionStore
	slowSession string
	entered     chan struct{}
	release     chan struct{}
}

func (s *slowStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == storage.StoreKey(s.slowSession) {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.SessionStore.Get(ctx, key)
}

func TestSessionManagerRestoreDoesNotBlockOthers(t *testing.T) {
	f := newSessionFixture(t)
	slow := &slowStore{SessionStore: f.store, slowSession: "slow", entered: make(chan struct{}, 1), release: make(chan struct{})}
	f.deps.Store = slow
	m := NewSessionManager(f.deps)
	ctx := context.Background()

	slowDone := make(chan *Session, 1)
	go func() { slowDone <- m.Get(ctx, "slow") }()
	<-slow.entered

	fast := make(chan *Session, 1)
	go func() { fast <- m.Get(ctx, "u2") }()
	select {
	case s := <-fast:
		if s.ID != "u2" {
			t.Errorf("Get(u2) returned session %q", s.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Get(u2) waited on another session's restore")
	}

	close(slow.release)
	if s := <-slowDone; m.Get(ctx, "slow") != s {
		t.Error("Get(slow) returned a different session after restore")
	}
}

func TestStopTrackingSilencesCallbacks(t *testing.T) {
	f := newSessionFixture(t)
	r := &blockingReader{next: make(chan models.OrderStatus)}
	f.deps.Poller = NewPoller(r, PollerConfig{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 100}, zap.NewNop())
	s := NewSession("u1", f.deps)
	ctx := context.Background()

	s.Scan(ctx, "STORE-Z", nil)
	s.AddProduct(ctx, "z1", "", 1)
	res, _ := s.Checkout(ctx)

	var mu sync.Mutex
	calls := 0
	finished := false
	s.Track(ctx, res.Order.ID, func(models.OrderStatus) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, func(PollResult) {
		mu.Lock()
		finished = true
		mu.Unlock()
	})
	r.next <- models.OrderStatusPendingPay
	s.StopTracking()
	mu.Lock()
	before := calls
	mu.Unlock()

	select {
	case r.next <- models.OrderStatusCancelled:
		t.Error("poller read after StopTracking")
	case <-time.After(20 * time.Millisecond):
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != before || finished {
		t.Errorf("callbacks after StopTracking: calls %d -> %d, finished %v", before, calls, finished)
	}
}
