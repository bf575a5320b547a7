package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"scan-order/models"

	"github.com/shopspring/decimal"
)

type takeKey struct {
	storeID string
	day     string
}

// MemoryOrders is an in-process order repository.
type MemoryOrders struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	history map[string][]models.StatusChange
	take    map[takeKey]int
	now     func() time.Time
}

func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{
		orders:  make(map[string]*models.Order),
		history: make(map[string][]models.StatusChange),
		take:    make(map[takeKey]int),
		now:     time.Now,
	}
}

func (m *MemoryOrders) Create(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o.Clone()
	m.history[o.ID] = append(m.history[o.ID], models.StatusChange{
		OrderID:   o.ID,
		To:        o.Status,
		ChangedAt: o.CreatedAt,
	})
	return nil
}

func (m *MemoryOrders) Get(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (m *MemoryOrders) Transition(_ context.Context, id string, from, to models.OrderStatus, note string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if o.Status != from {
		return nil, ErrStatusConflict
	}
	now := m.now()
	o.Status = to
	o.UpdatedAt = now
	m.history[id] = append(m.history[id], models.StatusChange{
		OrderID:   id,
		From:      from,
		To:        to,
		Note:      note,
		ChangedAt: now,
	})
	return o.Clone(), nil
}

func (m *MemoryOrders) History(_ context.Context, id string) ([]models.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return nil, ErrOrderNotFound
	}
	out := make([]models.StatusChange, len(m.history[id]))
	copy(out, m.history[id])
	return out, nil
}

func (m *MemoryOrders) ListBySession(_ context.Context, sessionID string, limit int) ([]*models.Order, error) {
	return m.list(func(o *models.Order) bool { return o.SessionID == sessionID }, limit), nil
}

func (m *MemoryOrders) ListOpenByStore(_ context.Context, storeID string, limit int) ([]*models.Order, error) {
	return m.list(func(o *models.Order) bool {
		return o.StoreID == storeID && !o.Status.IsTerminal()
	}, limit), nil
}

// list returns matching orders, newest first.
func (m *MemoryOrders) list(match func(*models.Order) bool, limit int) []*models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Order
	for _, o := range m.orders {
		if match(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryOrders) NextTakeNumber(_ context.Context, storeID string, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := takeKey{storeID: storeID, day: day.UTC().Format("2006-01-02")}
	m.take[k]++
	return m.take[k], nil
}

func (m *MemoryOrders) DailyStats(_ context.Context, storeID string, day time.Time) (*models.DailyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	date := day.UTC().Format("2006-01-02")
	s := &models.DailyStats{Revenue: decimal.Zero}
	for _, o := range m.orders {
		if o.StoreID != storeID || o.CreatedAt.UTC().Format("2006-01-02") != date {
			continue
		}
		s.OrdersCount++
		switch {
		case o.Status == models.OrderStatusCancelled:
			s.CancelledCount++
		case o.Status.Rank() >= models.OrderStatusPaid.Rank():
			s.PaidCount++
			s.Revenue = s.Revenue.Add(o.TotalAmount)
		}
	}
	return s, nil
}
