package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingPay OrderStatus = "PENDING_PAY"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusPreparing  OrderStatus = "PREPARING"
	OrderStatusReady      OrderStatus = "READY"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var statusRank = map[OrderStatus]int{
	OrderStatusPendingPay: 1,
	OrderStatusPaid:       2,
	OrderStatusPreparing:  3,
	OrderStatusReady:      4,
	OrderStatusCompleted:  5,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	return s == OrderStatusCancelled || statusRank[s] > 0
}

// Rank is the position of s in the forward sequence; 0 for CANCELLED and unknown values.
func (s OrderStatus) Rank() int {
	return statusRank[s]
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Next returns the following forward status, or false when s has none.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case OrderStatusPendingPay:
		return OrderStatusPaid, true
	case OrderStatusPaid:
		return OrderStatusPreparing, true
	case OrderStatusPreparing:
		return OrderStatusReady, true
	case OrderStatusReady:
		return OrderStatusCompleted, true
	}
	return "", false
}

// Order is a placed order. Items are a snapshot taken at creation and never change.
type Order struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	StoreID     string          `json:"storeId"`
	StoreName   string          `json:"storeName"`
	OrderType   OrderType       `json:"order_type"`
	TableNumber string          `json:"table_no,omitempty"`
	Items       []CartItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	TakeNumber  string          `json:"takeNo,omitempty"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = CloneCart(o.Items)
	return &c
}

// StatusChange is one entry of an order's status history.
type StatusChange struct {
	OrderID   string      `json:"order_id"`
	From      OrderStatus `json:"from,omitempty"`
	To        OrderStatus `json:"to"`
	Note      string      `json:"note,omitempty"`
	ChangedAt time.Time   `json:"changed_at"`
}

type DailyStats struct {
	OrdersCount    int
	PaidCount      int
	CancelledCount int
	Revenue        decimal.Decimal // sum over orders that reached PAID and were not cancelled
}
