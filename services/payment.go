package services

import (
	"context"
	"fmt"
	"time"

	"scan-order/models"

	"github.com/shopspring/decimal"
)

// PaymentGateway charges an order. A decline is reported as an error wrapping ErrPaymentDeclined.
type PaymentGateway interface {
	Charge(ctx context.Context, order models.Order) error
}

// MockGateway simulates a card processor. It approves every charge unless the total is above
// DeclineAbove or the context ends before Latency has passed.
type MockGateway struct {
	DeclineAbove *decimal.Decimal
	Latency      time.Duration
}

// NewMockGateway parses declineAbove; an empty string never declines.
func NewMockGateway(declineAbove string, latency time.Duration) (*MockGateway, error) {
	g := &MockGateway{Latency: latency}
	if declineAbove != "" {
		limit, err := decimal.NewFromString(declineAbove)
		if err != nil {
			return nil, fmt.Errorf("parse decline limit %q: %w", declineAbove, err)
		}
		g.DeclineAbove = &limit
	}
	return g, nil
}

func (g *MockGateway) Charge(ctx context.Context, order models.Order) error {
	if g.Latency > 0 {
		t := time.NewTimer(g.Latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if g.DeclineAbove != nil && order.TotalAmount.GreaterThan(*g.DeclineAbove) {
		return fmt.Errorf("%w: amount %s over limit", ErrPaymentDeclined, order.TotalAmount.StringFixed(2))
	}
	return nil
}
