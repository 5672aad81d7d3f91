// Package kv provides the shared key-value backing for distributed locks
// and task result storage. Production uses Redis; tests use the in-memory
// store.
package kv

import (
	"context"
	"time"
)

// Store is the minimal key-value contract the lock and result channel
// need. Implementations must be safe for concurrent use and must fail
// closed: an unreachable backend returns an error, never a silent
// success.
type Store interface {
	// SetNX sets key to value with a TTL only if the key is absent.
	// Returns whether the key was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Set writes key unconditionally with a TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value for key, or ok=false if absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Del removes key. Removing an absent key is not an error.
	Del(ctx context.Context, key string) error

	// CompareAndDelete removes key only if it currently holds value.
	// Returns whether the key was removed.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}
