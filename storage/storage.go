// Package storage holds the key-value session stores and the order repositories.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by SessionStore.Get for a missing key.
var ErrNotFound = errors.New("storage: key not found")

// SessionStore is a small durable key-value store scoped to customer sessions.
type SessionStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

const keyPrefix = "scanorder"

// StoreKey is the key holding the session's current store context.
func StoreKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:store", keyPrefix, sessionID)
}

// CartKey is the key holding the session's cart for one store.
func CartKey(sessionID, storeID string) string {
	return fmt.Sprintf("%s:%s:cart:%s", keyPrefix, sessionID, storeID)
}
