package services

import (
	"errors"
	"fmt"

	"scan-order/models"
	"scan-order/storage"
)

var (
	ErrResolution             = errors.New("scene code could not be resolved")
	ErrPaymentDeclined        = errors.New("payment declined")
	ErrPersistenceUnavailable = errors.New("session storage unavailable")
	ErrInvalidTransition      = errors.New("invalid order status transition")
	ErrOrderNotFound          = storage.ErrOrderNotFound
	ErrEmptyCart              = errors.New("cart is empty")
	ErrNoActiveStore          = errors.New("no store selected")
	ErrOrderingNotAllowed     = errors.New("ordering is not available at this store")
	ErrPaymentNotAllowed      = errors.New("online payment is not available at this store")
	ErrInvalidQuantity        = errors.New("quantity must be at least 1")
	ErrItemNotFound           = errors.New("cart item not found")
	ErrInvalidSpec            = errors.New("spec not offered for this product")
)

// ResolutionError reports a scene code that does not map to a store.
type ResolutionError struct {
	SceneCode string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve scene %q: %v", e.SceneCode, e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrResolution}
	}
	return []error{ErrResolution, e.Err}
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	OrderID string
	From    models.OrderStatus
	To      models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
