// Package keystore provides the opaque string key-value store that holds
// private key material and session records.
package keystore

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("key not found")
)

// Keystore is the minimal interface the protocol needs from secure storage.
type Keystore interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete of an absent key is not an error.
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context) ([]string, error)
}
