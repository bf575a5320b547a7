package models

type OrderType string

const (
	OrderTypeDineIn OrderType = "DINE_IN"
	OrderTypePickUp OrderType = "PICK_UP"
)

// StoreContext is the resolved store a session is ordering from.
// It is replaced as a whole on every scan and never edited in place.
type StoreContext struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	TableNumber      string    `json:"table_no,omitempty"`
	AllowOrder       bool      `json:"allow_order"`
	AllowPay         bool      `json:"allow_pay"`
	DefaultOrderType OrderType `json:"order_type_default"`
	Theme            Theme     `json:"theme"`
}
