package kv

import "context"

// Store is an opaque key-value slot holding JSON documents.
// Get returns a nil value and nil error when the key has never been written.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
