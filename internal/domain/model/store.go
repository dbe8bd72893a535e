package model

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by a KeyValueStore when a key has never been set.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is the persistence capability the domain depends on.
// Implementations are bound to one scope (for example "device").
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
