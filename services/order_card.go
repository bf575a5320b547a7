package services

import (
	"fmt"
	"strings"

	"scan-order/models"

	"github.com/shopspring/decimal"
)

// Callback data prefixes shared by cards and the bot handlers.
const (
	CallbackOrderStatus = "order_status" // order_status:<order id>:<status>, staff only
	CallbackPay         = "pay"          // pay:<order id>
	CallbackCancel      = "cancel"       // cancel:<order id>
	CallbackTrack       = "track"        // track:<order id>
)

// OrderCardButton is one inline button (text + callback_data or url).
type OrderCardButton struct {
	Text         string
	CallbackData string
	URL          string // if set, use as URL button instead of callback
}

// OrderCardContent is the text and optional inline keyboard for an order card.
type OrderCardContent struct {
	Text    string
	Buttons [][]OrderCardButton
}

// FormatMoney renders an amount with two decimals.
func FormatMoney(d decimal.Decimal) string {
	return "¥" + d.StringFixed(2)
}

// StatusLabel is the customer-facing wording for a status.
func StatusLabel(s models.OrderStatus) string {
	switch s {
	case models.OrderStatusPendingPay:
		return "⏳ Awaiting payment"
	case models.OrderStatusPaid:
		return "💳 Paid"
	case models.OrderStatusPreparing:
		return "👨‍🍳 Preparing"
	case models.OrderStatusReady:
		return "🔔 Ready for pickup"
	case models.OrderStatusCompleted:
		return "✅ Completed"
	case models.OrderStatusCancelled:
		return "❌ Cancelled"
	default:
		return string(s)
	}
}

func orderTypeLabel(o *models.Order) string {
	if o.OrderType == models.OrderTypeDineIn {
		if o.TableNumber != "" {
			return "Dine in, table " + o.TableNumber
		}
		return "Dine in"
	}
	return "Pick up"
}

func writeItems(b *strings.Builder, items []models.CartItem) {
	for _, it := range items {
		name := it.Name
		if it.Spec != "" {
			name += " (" + it.Spec + ")"
		}
		fmt.Fprintf(b, "• %s × %d = %s\n", name, it.Quantity, FormatMoney(it.LineTotal()))
	}
}

func cb(prefix string, parts ...string) string {
	return prefix + ":" + strings.Join(parts, ":")
}

// BuildCustomerCard returns the order card shown to the customer.
func BuildCustomerCard(o *models.Order) OrderCardContent {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 %s\n", o.StoreName)
	if o.TakeNumber != "" {
		fmt.Fprintf(&b, "Take number: %s\n", o.TakeNumber)
	}
	fmt.Fprintf(&b, "%s\n\n", orderTypeLabel(o))
	writeItems(&b, o.Items)
	fmt.Fprintf(&b, "\nTotal: %s\n", FormatMoney(o.TotalAmount))
	fmt.Fprintf(&b, "Status: %s", StatusLabel(o.Status))

	var buttons [][]OrderCardButton
	switch {
	case o.Status == models.OrderStatusPendingPay:
		buttons = [][]OrderCardButton{
			{{Text: "💳 Pay", CallbackData: cb(CallbackPay, o.ID)}},
			{{Text: "Cancel order", CallbackData: cb(CallbackCancel, o.ID)}},
		}
	case !o.Status.IsTerminal():
		buttons = [][]OrderCardButton{
			{{Text: "🔄 Refresh", CallbackData: cb(CallbackTrack, o.ID)}},
		}
	}
	return OrderCardContent{Text: b.String(), Buttons: buttons}
}

// BuildStaffCard returns the order card shown in the staff console, with the next fulfillment actions.
// An unpaid order offers recording a counter payment.
func BuildStaffCard(o *models.Order) OrderCardContent {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s", o.TakeNumber)
	if o.TakeNumber == "" {
		b.WriteString(o.ID)
	}
	fmt.Fprintf(&b, "\n%s · %s\n\n", o.StoreName, orderTypeLabel(o))
	writeItems(&b, o.Items)
	fmt.Fprintf(&b, "\nTotal: %s\n", FormatMoney(o.TotalAmount))
	fmt.Fprintf(&b, "Status: %s\nID: %s", StatusLabel(o.Status), o.ID)

	var buttons [][]OrderCardButton
	if next, ok := o.Status.Next(); ok {
		buttons = append(buttons, []OrderCardButton{{
			Text:         staffActionLabel(next),
			CallbackData: cb(CallbackOrderStatus, o.ID, string(next)),
		}})
	}
	if !o.Status.IsTerminal() {
		buttons = append(buttons, []OrderCardButton{{
			Text:         "Cancel",
			CallbackData: cb(CallbackOrderStatus, o.ID, string(models.OrderStatusCancelled)),
		}})
	}
	return OrderCardContent{Text: b.String(), Buttons: buttons}
}

func staffActionLabel(next models.OrderStatus) string {
	switch next {
	case models.OrderStatusPaid:
		return "💳 Paid at counter"
	case models.OrderStatusPreparing:
		return "👨‍🍳 Start preparing"
	case models.OrderStatusReady:
		return "🔔 Mark ready"
	case models.OrderStatusCompleted:
		return "✅ Mark completed"
	default:
		return string(next)
	}
}

// ParseCallback splits callback data into its prefix and arguments.
func ParseCallback(data string) (prefix string, args []string) {
	parts := strings.Split(data, ":")
	return parts[0], parts[1:]
}

// CartSummary renders the live cart for the customer.
func CartSummary(store models.StoreContext, items []models.CartItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛒 %s", store.Name)
	if store.TableNumber != "" {
		fmt.Fprintf(&b, " · table %s", store.TableNumber)
	}
	b.WriteString("\n\n")
	if len(items) == 0 {
		b.WriteString("Your cart is empty.")
		return b.String()
	}
	writeItems(&b, items)
	fmt.Fprintf(&b, "\nTotal: %s", FormatMoney(models.CartTotal(items)))
	return b.String()
}
