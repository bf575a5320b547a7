package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scan-order/catalog"
	"scan-order/models"
	"scan-order/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const testCatalogYAML = `
merchants:
  - id: X
    name: Store X
    address: 1 First St
    theme: {primary: "#111111", secondary: "#222222"}
    features: {dine_in: true, pickup: true}
    menu:
      - id: p1
        name: Mango mousse
        price: "19.90"
      - id: p2
        name: Latte
        price: "10.00"
        specs: [hot, iced]
  - id: Y
    name: Store Y
    features: {dine_in: true, pickup: true}
    menu:
      - id: q1
        name: Croissant
        price: "8.50"
  - id: Z
    name: Store Z
    features: {dine_in: false, pickup: true}
    menu:
      - id: z1
        name: Bagel
        price: "6.00"
scenes:
  - code: TABLE-A12
    merchant: X
    table: A12
  - code: STORE-X
    merchant: X
  - code: STORE-Y
    merchant: Y
  - code: TABLE-Z1
    merchant: Z
    table: Z1
  - code: STORE-Z
    merchant: Z
    pay_disabled: true
  - code: PAUSED-Y
    merchant: Y
    ordering_paused: true
`

func testCatalog() *catalog.Static {
	c, err := catalog.ParseStatic([]byte(testCatalogYAML))
	if err != nil {
		panic(err)
	}
	return c
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func storeX() models.StoreContext {
	return models.StoreContext{ID: "X", Name: "Store X", AllowOrder: true, AllowPay: true, DefaultOrderType: models.OrderTypeDineIn, TableNumber: "A12"}
}

func storeY() models.StoreContext {
	return models.StoreContext{ID: "Y", Name: "Store Y", AllowOrder: true, AllowPay: true, DefaultOrderType: models.OrderTypePickUp}
}

func product(id, price string) models.Product {
	return models.Product{ID: id, Name: "Product " + id, Price: money(price)}
}

// failingStore wraps a SessionStore and fails every call while down is set.
type failingStore struct {
	storage.SessionStore
	mu   sync.Mutex
	down bool
}

var errStoreDown = errors.New("quota exceeded")

func (f *failingStore) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *failingStore) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.isDown() {
		return nil, errStoreDown
	}
	return f.SessionStore.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.isDown() {
		return errStoreDown
	}
	return f.SessionStore.Set(ctx, key, value)
}

func (f *failingStore) Remove(ctx context.Context, key string) error {
	if f.isDown() {
		return errStoreDown
	}
	return f.SessionStore.Remove(ctx, key)
}

// scriptedGateway declines while declines > 0, then approves.
type scriptedGateway struct {
	mu       sync.Mutex
	declines int
	err      error
	charges  int
}

func (g *scriptedGateway) Charge(ctx context.Context, o models.Order) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges++
	if g.err != nil {
		return g.err
	}
	if g.declines > 0 {
		g.declines--
		return fmt.Errorf("%w: card declined", ErrPaymentDeclined)
	}
	return nil
}

func (g *scriptedGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, evt OrderEvent) error {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type + ":" + string(e.Status)
	}
	return out
}

func newTestEngine(gw PaymentGateway) (*Engine, *storage.MemoryOrders, *recordingPublisher) {
	repo := storage.NewMemoryOrders()
	pub := &recordingPublisher{}
	if gw == nil {
		gw = &scriptedGateway{}
	}
	e := NewEngine(repo, gw, pub, time.Second, zap.NewNop())
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("order-%d", n)
	}
	return e, repo, pub
}

// fakeKitchen is the external fulfillment system for tests: every status read first lets the
// kitchen move the order one step forward through Engine.Advance.
type fakeKitchen struct {
	engine *Engine
	mu     sync.Mutex
	reads  int
}

func (k *fakeKitchen) GetStatus(ctx context.Context, orderID string) (models.OrderStatus, error) {
	k.mu.Lock()
	k.reads++
	k.mu.Unlock()
	cur, err := k.engine.GetStatus(ctx, orderID)
	if err != nil {
		return "", err
	}
	if cur != models.OrderStatusPendingPay {
		if next, ok := cur.Next(); ok {
			if _, err := k.engine.Advance(ctx, orderID, next, "kitchen"); err != nil {
				return "", err
			}
		}
	}
	return k.engine.GetStatus(ctx, orderID)
}

func noWait(context.Context, time.Duration) error { return nil }
