package storage

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusConflict means the order was no longer in the expected status when a transition was applied.
	ErrStatusConflict = errors.New("order status changed concurrently")
)
