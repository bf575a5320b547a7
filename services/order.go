package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scan-order/models"
	"scan-order/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderRepository persists orders and their status history.
type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	// Transition applies from -> to only if the stored status is still from, else storage.ErrStatusConflict.
	Transition(ctx context.Context, id string, from, to models.OrderStatus, note string) (*models.Order, error)
	History(ctx context.Context, id string) ([]models.StatusChange, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.Order, error)
	ListOpenByStore(ctx context.Context, storeID string, limit int) ([]*models.Order, error)
	NextTakeNumber(ctx context.Context, storeID string, day time.Time) (int, error)
	DailyStats(ctx context.Context, storeID string, day time.Time) (*models.DailyStats, error)
}

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is sent to the fulfillment system.
type OrderEvent struct {
	Type        string             `json:"type"`
	OrderID     string             `json:"order_id"`
	StoreID     string             `json:"store_id"`
	TakeNumber  string             `json:"take_no,omitempty"`
	OrderType   models.OrderType   `json:"order_type"`
	TableNumber string             `json:"table_no,omitempty"`
	Status      models.OrderStatus `json:"status"`
	Previous    models.OrderStatus `json:"previous,omitempty"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Items       []models.CartItem  `json:"items,omitempty"`
	At          time.Time          `json:"at"`
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, evt OrderEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishOrderEvent(context.Context, OrderEvent) error { return nil }

// StatusListener is called after every applied status change.
type StatusListener func(ctx context.Context, o *models.Order, from models.OrderStatus)

// ValidStatusTransition reports whether an order may move from one status to another.
// Forward moves go one step at a time; CANCELLED is reachable from any non-terminal status.
func ValidStatusTransition(from, to models.OrderStatus) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	if to == models.OrderStatusCancelled {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// Engine owns the order lifecycle. Status only changes through its methods.
type Engine struct {
	repo           OrderRepository
	gateway        PaymentGateway
	publisher      EventPublisher
	log            *zap.Logger
	paymentTimeout time.Duration
	now            func() time.Time
	newID          func() string

	listenersMu sync.RWMutex
	listeners   []StatusListener
}

func NewEngine(repo OrderRepository, gateway PaymentGateway, publisher EventPublisher, paymentTimeout time.Duration, log *zap.Logger) *Engine {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Engine{
		repo:           repo,
		gateway:        gateway,
		publisher:      publisher,
		log:            log.Named("orders"),
		paymentTimeout: paymentTimeout,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// OnStatusChange registers fn for every applied transition, including creation (from is empty).
func (e *Engine) OnStatusChange(fn StatusListener) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, fn)
	e.listenersMu.Unlock()
}

// FormatTakeNumber renders the pickup code shown to the customer: A### for dine-in, B### for pick-up.
func FormatTakeNumber(t models.OrderType, n int) string {
	prefix := "B"
	if t == models.OrderTypeDineIn {
		prefix = "A"
	}
	return fmt.Sprintf("%s%03d", prefix, n%1000)
}

// Create places an order from a snapshot of items. The caller's slice is copied, not retained.
func (e *Engine) Create(ctx context.Context, sessionID string, store models.StoreContext, items []models.CartItem) (*models.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if !store.AllowOrder {
		return nil, ErrOrderingNotAllowed
	}
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, fmt.Errorf("%w: line %s", ErrInvalidQuantity, it.ID)
		}
	}
	snapshot := models.CloneCart(items)
	now := e.now().UTC()

	n, err := e.repo.NextTakeNumber(ctx, store.ID, now)
	if err != nil {
		return nil, fmt.Errorf("allocate take number: %w", err)
	}
	orderType := store.DefaultOrderType
	if orderType == "" {
		orderType = models.OrderTypePickUp
	}
	o := &models.Order{
		ID:          e.newID(),
		SessionID:   sessionID,
		StoreID:     store.ID,
		StoreName:   store.Name,
		OrderType:   orderType,
		TableNumber: store.TableNumber,
		Items:       snapshot,
		TotalAmount: models.CartTotal(snapshot),
		TakeNumber:  FormatTakeNumber(orderType, n),
		Status:      models.OrderStatusPendingPay,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	e.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("store_id", o.StoreID),
		zap.String("take_no", o.TakeNumber),
		zap.String("total", o.TotalAmount.StringFixed(2)))
	e.publish(ctx, EventOrderCreated, o, "")
	e.notify(ctx, o, "")
	return o.Clone(), nil
}

// RequestPayment charges a PENDING_PAY order and marks it PAID on success. It returns false with an
// error wrapping ErrPaymentDeclined when the charge fails; the order then stays PENDING_PAY and can be
// retried. An order that is already paid returns true without charging again.
func (e *Engine) RequestPayment(ctx context.Context, orderID string) (bool, error) {
	o, err := e.repo.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	switch {
	case o.Status == models.OrderStatusCancelled:
		return false, &TransitionError{OrderID: orderID, From: o.Status, To: models.OrderStatusPaid}
	case o.Status != models.OrderStatusPendingPay:
		return true, nil
	}

	payCtx, cancel := context.WithTimeout(ctx, e.paymentTimeout)
	err = e.gateway.Charge(payCtx, *o)
	cancel()
	if err != nil {
		e.log.Info("payment failed", zap.String("order_id", orderID), zap.Error(err))
		if errors.Is(err, ErrPaymentDeclined) {
			return false, fmt.Errorf("order %s: %w", orderID, err)
		}
		return false, fmt.Errorf("order %s: %w: %w", orderID, ErrPaymentDeclined, err)
	}

	_, err = e.transition(ctx, o, models.OrderStatusPaid, "payment captured")
	if errors.Is(err, storage.ErrStatusConflict) {
		current, getErr := e.repo.Get(ctx, orderID)
		if getErr != nil {
			return false, getErr
		}
		if current.Status == models.OrderStatusCancelled {
			e.log.Error("order cancelled while payment was captured", zap.String("order_id", orderID))
			return false, &TransitionError{OrderID: orderID, From: current.Status, To: models.OrderStatusPaid}
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Advance applies a status reported by the fulfillment system. Reporting the current status again
// is a no-op; skipping ahead or moving backwards returns an error matching ErrInvalidTransition.
func (e *Engine) Advance(ctx context.Context, orderID string, to models.OrderStatus, note string) (*models.Order, error) {
	const maxConflicts = 3
	for attempt := 0; ; attempt++ {
		o, err := e.repo.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status == to {
			return o, nil
		}
		updated, err := e.transition(ctx, o, to, note)
		if errors.Is(err, storage.ErrStatusConflict) && attempt < maxConflicts {
			continue
		}
		return updated, err
	}
}

// Cancel moves any non-terminal order to CANCELLED.
func (e *Engine) Cancel(ctx context.Context, orderID, reason string) (*models.Order, error) {
	return e.Advance(ctx, orderID, models.OrderStatusCancelled, reason)
}

// GetStatus reads the current status. It never changes the order.
func (e *Engine) GetStatus(ctx context.Context, orderID string) (models.OrderStatus, error) {
	o, err := e.repo.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

func (e *Engine) Get(ctx context.Context, orderID string) (*models.Order, error) {
	return e.repo.Get(ctx, orderID)
}

func (e *Engine) History(ctx context.Context, orderID string) ([]models.StatusChange, error) {
	return e.repo.History(ctx, orderID)
}

// ListRecent returns the session's newest orders first.
func (e *Engine) ListRecent(ctx context.Context, sessionID string, limit int) ([]*models.Order, error) {
	return e.repo.ListBySession(ctx, sessionID, limit)
}

// ListOpen returns the store's orders that are not completed or cancelled.
func (e *Engine) ListOpen(ctx context.Context, storeID string, limit int) ([]*models.Order, error) {
	return e.repo.ListOpenByStore(ctx, storeID, limit)
}

func (e *Engine) DailyStats(ctx context.Context, storeID string, day time.Time) (*models.DailyStats, error) {
	return e.repo.DailyStats(ctx, storeID, day)
}

func (e *Engine) transition(ctx context.Context, o *models.Order, to models.OrderStatus, note string) (*models.Order, error) {
	if !ValidStatusTransition(o.Status, to) {
		return nil, &TransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	updated, err := e.repo.Transition(ctx, o.ID, o.Status, to, note)
	if err != nil {
		return nil, err
	}
	e.log.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
		zap.String("note", note))
	e.publish(ctx, EventOrderStatusChanged, updated, o.Status)
	e.notify(ctx, updated, o.Status)
	return updated, nil
}

func (e *Engine) publish(ctx context.Context, typ string, o *models.Order, prev models.OrderStatus) {
	evt := OrderEvent{
		Type:        typ,
		OrderID:     o.ID,
		StoreID:     o.StoreID,
		TakeNumber:  o.TakeNumber,
		OrderType:   o.OrderType,
		TableNumber: o.TableNumber,
		Status:      o.Status,
		Previous:    prev,
		TotalAmount: o.TotalAmount,
		At:          o.UpdatedAt,
	}
	if typ == EventOrderCreated {
		evt.Items = models.CloneCart(o.Items)
	}
	if err := e.publisher.PublishOrderEvent(ctx, evt); err != nil {
		e.log.Warn("publish order event failed", zap.String("order_id", o.ID), zap.String("type", typ), zap.Error(err))
	}
}

func (e *Engine) notify(ctx context.Context, o *models.Order, from models.OrderStatus) {
	e.listenersMu.RLock()
	listeners := make([]StatusListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, o.Clone(), from)
	}
}
