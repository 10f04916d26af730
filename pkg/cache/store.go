package cache

import (
	"context"
	"time"
)

// Store is the durable tier consulted on memory misses. Implementations are
// key/value only; the manager owns serialization and TTL policy.
type Store interface {
	// Get returns the stored bytes and their expiry. ok is false when the key
	// is absent or expired.
	Get(ctx context.Context, key string) (value []byte, expiresAt time.Time, ok bool, err error)

	// Set writes value under key. A zero expiresAt means no expiry.
	Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}
