package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"scan-order/models"
	"scan-order/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Confirmer decides whether the cart of the store being left should be discarded.
// It may wait for the customer; returning an error means no decision was made.
type Confirmer interface {
	ConfirmDiscard(ctx context.Context, leaving models.StoreContext, items []models.CartItem) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, leaving models.StoreContext, items []models.CartItem) (bool, error)

func (f ConfirmFunc) ConfirmDiscard(ctx context.Context, leaving models.StoreContext, items []models.CartItem) (bool, error) {
	return f(ctx, leaving, items)
}

// SwitchResult describes what happened to the carts during SwitchStore.
type SwitchResult struct {
	Previous  *models.StoreContext
	SameStore bool
	Discarded bool // the previous store's cart was dropped
	Parked    bool // the previous store's non-empty cart stays saved under that store
	Restored  int  // lines loaded from storage for the new store
}

// CartSynchronizer keeps one session's active store and its cart, writing every change through
// to the session store. Carts of different stores are kept under separate keys and never merged.
type CartSynchronizer struct {
	mu        sync.Mutex
	store     storage.SessionStore
	sessionID string
	log       *zap.Logger
	newID     func() string

	active     *models.StoreContext
	items      []models.CartItem
	dirty      bool // last write of items failed
	persistErr error
}

func NewCartSynchronizer(store storage.SessionStore, sessionID string, log *zap.Logger) *CartSynchronizer {
	return &CartSynchronizer{
		store:     store,
		sessionID: sessionID,
		log:       log.Named("cart").With(zap.String("session", sessionID)),
		newID:     uuid.NewString,
	}
}

// Restore loads the persisted store context and then that store's cart.
// With nothing persisted it returns nil and the session stays at the entry step.
// Storage failures leave the entry step in place and are returned wrapped in ErrPersistenceUnavailable.
func (c *CartSynchronizer) Restore(ctx context.Context) (*models.StoreContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active, c.items, c.dirty = nil, nil, false
	raw, err := c.store.Get(ctx, storage.StoreKey(c.sessionID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		c.setPersistErr("load store context", err)
		return nil, c.persistErr
	}
	var sc models.StoreContext
	if err := json.Unmarshal(raw, &sc); err != nil || sc.ID == "" {
		c.log.Warn("discarding unreadable store context", zap.Error(err))
		return nil, nil
	}
	items, err := c.loadCart(ctx, sc.ID)
	c.active = &sc
	c.items = items
	if err != nil {
		out := sc
		return &out, err
	}
	out := sc
	return &out, nil
}

// SwitchStore makes next the active store. Re-scanning the same store only replaces the context.
// Leaving a store with a non-empty cart asks confirm whether to discard it; without a decision the
// cart is kept under its own store. The new store's saved cart, possibly empty, becomes the live cart.
// Other cart operations wait until SwitchStore returns.
func (c *CartSynchronizer) SwitchStore(ctx context.Context, next models.StoreContext, confirm Confirmer) (SwitchResult, error) {
	if err := ctx.Err(); err != nil {
		return SwitchResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var res SwitchResult
	if c.active != nil {
		prev := *c.active
		res.Previous = &prev
	}
	if c.active != nil && c.active.ID == next.ID {
		c.active = &next
		c.persistContext(ctx)
		res.SameStore = true
		return res, nil
	}

	if c.active != nil && len(c.items) > 0 {
		discard := false
		if confirm != nil {
			d, err := confirm.ConfirmDiscard(ctx, *c.active, models.CloneCart(c.items))
			if err != nil {
				c.log.Info("no discard decision, keeping cart", zap.String("store_id", c.active.ID), zap.Error(err))
			} else {
				discard = d
			}
		}
		if discard {
			if err := c.store.Remove(ctx, storage.CartKey(c.sessionID, c.active.ID)); err != nil {
				c.setPersistErr("remove discarded cart", err)
			}
			res.Discarded = true
		} else {
			if c.dirty {
				c.writeCart(ctx, c.active.ID, c.items)
			}
			res.Parked = true
		}
	}

	items, err := c.loadCart(ctx, next.ID)
	if err != nil {
		c.log.Warn("starting with empty cart", zap.String("store_id", next.ID), zap.Error(err))
	}
	c.active = &next
	c.items = items
	c.dirty = false
	c.persistContext(ctx)
	res.Restored = len(items)
	c.log.Info("store switched",
		zap.String("store_id", next.ID),
		zap.Bool("discarded", res.Discarded),
		zap.Bool("parked", res.Parked),
		zap.Int("restored_lines", res.Restored))
	return res, nil
}

// AddItem adds qty of product to the cart. A line with the same product and spec is incremented.
func (c *CartSynchronizer) AddItem(ctx context.Context, product models.Product, spec string, qty int) (models.CartItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return models.CartItem{}, ErrNoActiveStore
	}
	if !c.active.AllowOrder {
		return models.CartItem{}, ErrOrderingNotAllowed
	}
	if qty < 1 {
		return models.CartItem{}, ErrInvalidQuantity
	}
	if !product.HasSpec(spec) {
		return models.CartItem{}, fmt.Errorf("%w: %q", ErrInvalidSpec, spec)
	}

	items := models.CloneCart(c.items)
	var line models.CartItem
	merged := false
	for i := range items {
		if items[i].ProductID == product.ID && items[i].Spec == spec {
			if items[i].Quantity > math.MaxInt-qty {
				return models.CartItem{}, ErrInvalidQuantity
			}
			items[i].Quantity += qty
			line = items[i]
			merged = true
			break
		}
	}
	if !merged {
		line = models.CartItem{
			ID:        c.newID(),
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  qty,
			Spec:      spec,
			Image:     product.Image,
		}
		items = append(items, line)
	}
	c.commit(ctx, items)
	return line, nil
}

// UpdateQuantity changes a line's quantity by delta and returns the new quantity.
// A result of zero or less removes the line and returns 0.
func (c *CartSynchronizer) UpdateQuantity(ctx context.Context, itemID string, delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(itemID)
	if idx < 0 {
		return 0, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if delta > 0 && c.items[idx].Quantity > math.MaxInt-delta {
		return c.items[idx].Quantity, ErrInvalidQuantity
	}
	items := models.CloneCart(c.items)
	q := items[idx].Quantity + delta
	if q <= 0 {
		items = append(items[:idx], items[idx+1:]...)
		q = 0
	} else {
		items[idx].Quantity = q
	}
	c.commit(ctx, items)
	return q, nil
}

func (c *CartSynchronizer) RemoveItem(ctx context.Context, itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(itemID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	items := models.CloneCart(c.items)
	items = append(items[:idx], items[idx+1:]...)
	c.commit(ctx, items)
	return nil
}

// Clear empties the active store's cart. Carts parked under other stores are untouched.
func (c *CartSynchronizer) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return
	}
	c.commit(ctx, nil)
}

// RemoveOrdered takes the lines of an order's snapshot out of storeID's live cart, subtracting
// quantities line by line. Lines added or increased after the snapshot keep the difference.
// Nothing happens if storeID is no longer the active store.
func (c *CartSynchronizer) RemoveOrdered(ctx context.Context, storeID string, ordered []models.CartItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.ID != storeID || len(ordered) == 0 {
		return
	}
	taken := make(map[string]int, len(ordered))
	for _, it := range ordered {
		taken[it.ID] += it.Quantity
	}
	items := make([]models.CartItem, 0, len(c.items))
	for _, it := range c.items {
		it.Quantity -= taken[it.ID]
		if it.Quantity > 0 {
			items = append(items, it)
		}
	}
	c.commit(ctx, items)
}

// Active returns a copy of the active store context.
func (c *CartSynchronizer) Active() (models.StoreContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return models.StoreContext{}, false
	}
	return *c.active, true
}

// Items returns a copy of the live cart.
func (c *CartSynchronizer) Items() []models.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CloneCart(c.items)
}

func (c *CartSynchronizer) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CartTotal(c.items)
}

// Count is the number of units in the cart.
func (c *CartSynchronizer) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// LastPersistError is the most recent storage failure, or nil once a later write succeeded.
func (c *CartSynchronizer) LastPersistError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistErr
}

func (c *CartSynchronizer) indexOf(itemID string) int {
	for i, it := range c.items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// commit replaces the live cart and writes it through. The in-memory cart changes even if the write fails.
func (c *CartSynchronizer) commit(ctx context.Context, items []models.CartItem) {
	c.items = items
	c.writeCart(ctx, c.active.ID, items)
}

func (c *CartSynchronizer) writeCart(ctx context.Context, storeID string, items []models.CartItem) {
	key := storage.CartKey(c.sessionID, storeID)
	var err error
	if len(items) == 0 {
		err = c.store.Remove(ctx, key)
	} else {
		var raw []byte
		raw, err = json.Marshal(items)
		if err == nil {
			err = c.store.Set(ctx, key, raw)
		}
	}
	if err != nil {
		c.dirty = true
		c.setPersistErr("save cart", err)
		return
	}
	c.dirty = false
	c.persistErr = nil
}

func (c *CartSynchronizer) persistContext(ctx context.Context) {
	raw, err := json.Marshal(c.active)
	if err == nil {
		err = c.store.Set(ctx, storage.StoreKey(c.sessionID), raw)
	}
	if err != nil {
		c.setPersistErr("save store context", err)
	}
}

func (c *CartSynchronizer) loadCart(ctx context.Context, storeID string) ([]models.CartItem, error) {
	raw, err := c.store.Get(ctx, storage.CartKey(c.sessionID, storeID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		c.setPersistErr("load cart", err)
		return nil, c.persistErr
	}
	var items []models.CartItem
	if err := json.Unmarshal(raw, &items); err != nil {
		c.log.Warn("discarding unreadable cart", zap.String("store_id", storeID), zap.Error(err))
		return nil, nil
	}
	valid := items[:0]
	for _, it := range items {
		if it.Quantity >= 1 && it.ID != "" {
			valid = append(valid, it)
		}
	}
	return valid, nil
}

func (c *CartSynchronizer) setPersistErr(op string, err error) {
	c.persistErr = fmt.Errorf("%w: %s: %v", ErrPersistenceUnavailable, op, err)
	c.log.Warn("session storage failed, continuing in memory", zap.String("op", op), zap.Error(err))
}
