package services

import (
	"strings"
	"testing"

	"scan-order/models"
)

func cardOrder(status models.OrderStatus) *models.Order {
	return &models.Order{
		ID:          "o-1",
		StoreName:   "Store X",
		OrderType:   models.OrderTypeDineIn,
		TableNumber: "A12",
		TakeNumber:  "A007",
		Status:      status,
		Items: []models.CartItem{
			{ID: "l1", Name: "Latte", Spec: "iced", Price: money("10.00"), Quantity: 2},
			{ID: "l2", Name: "Mango mousse", Price: money("19.90"), Quantity: 1},
		},
		TotalAmount: money("39.90"),
	}
}

func callbacks(c OrderCardContent) []string {
	var out []string
	for _, row := range c.Buttons {
		for _, b := range row {
			out = append(out, b.CallbackData)
		}
	}
	return out
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "¥0.00"},
		{"19.9", "¥19.90"},
		{"39.90", "¥39.90"},
		{"1234.567", "¥1234.57"},
	}
	for _, tt := range tests {
		if got := FormatMoney(money(tt.in)); got != tt.want {
			t.Errorf("FormatMoney(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildCustomerCard(t *testing.T) {
	tests := []struct {
		status models.OrderStatus
		want   []string
	}{
		{models.OrderStatusPendingPay, []string{"pay:o-1", "cancel:o-1"}},
		{models.OrderStatusPaid, []string{"track:o-1"}},
		{models.OrderStatusReady, []string{"track:o-1"}},
		{models.OrderStatusCompleted, nil},
		{models.OrderStatusCancelled, nil},
	}
	for _, tt := range tests {
		card := BuildCustomerCard(cardOrder(tt.status))
		got := callbacks(card)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("BuildCustomerCard(%s) callbacks = %v, want %v", tt.status, got, tt.want)
		}
		for _, sub := range []string{"A007", "table A12", "Latte (iced) × 2 = ¥20.00", "Total: ¥39.90", StatusLabel(tt.status)} {
			if !strings.Contains(card.Text, sub) {
				t.Errorf("BuildCustomerCard(%s) text missing %q:\n%s", tt.status, sub, card.Text)
			}
		}
	}
}

func TestBuildStaffCard(t *testing.T) {
	tests := []struct {
		status models.OrderStatus
		want   []string
	}{
		{models.OrderStatusPendingPay, []string{"order_status:o-1:PAID", "order_status:o-1:CANCELLED"}},
		{models.OrderStatusPaid, []string{"order_status:o-1:PREPARING", "order_status:o-1:CANCELLED"}},
		{models.OrderStatusPreparing, []string{"order_status:o-1:READY", "order_status:o-1:CANCELLED"}},
		{models.OrderStatusReady, []string{"order_status:o-1:COMPLETED", "order_status:o-1:CANCELLED"}},
		{models.OrderStatusCompleted, nil},
	}
	for _, tt := range tests {
		got := callbacks(BuildStaffCard(cardOrder(tt.status)))
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("BuildStaffCard(%s) callbacks = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data   string
		prefix string
		args   []string
	}{
		{"pay:o-1", "pay", []string{"o-1"}},
		{"order_status:o-1:READY", "order_status", []string{"o-1", "READY"}},
		{"menu", "menu", []string{}},
	}
	for _, tt := range tests {
		prefix, args := ParseCallback(tt.data)
		if prefix != tt.prefix || strings.Join(args, "|") != strings.Join(tt.args, "|") || len(args) != len(tt.args) {
			t.Errorf("ParseCallback(%q) = %q, %v; want %q, %v", tt.data, prefix, args, tt.prefix, tt.args)
		}
	}
}

func TestCartSummary(t *testing.T) {
	empty := CartSummary(storeX(), nil)
	if !strings.Contains(empty, "empty") {
		t.Errorf("CartSummary(empty) = %q, want empty notice", empty)
	}
	got := CartSummary(storeX(), cardOrder(models.OrderStatusPendingPay).Items)
	if !strings.Contains(got, "Total: ¥39.90") || !strings.Contains(got, "table A12") {
		t.Errorf("CartSummary = %q, want table and total", got)
	}
}
