package kv

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// lockPrefix namespaces lock keys in the shared store.
const lockPrefix = "chat_lock:"

// DefaultLockTTL bounds how long a crashed holder can keep a lock alive.
const DefaultLockTTL = 600 * time.Second

// Lock is a named mutual-exclusion primitive with expiry. Each
// acquisition is bound to a holder token so a lock that expired and was
// re-acquired by another worker cannot be released by the original
// holder.
type Lock struct {
	store Store
}

// NewLock creates a lock manager on the given store.
func NewLock(store Store) *Lock {
	return &Lock{store: store}
}

// Acquire attempts to take the named lock with the given TTL. On success
// it returns the holder token required to release. A store error means
// the lock was NOT acquired.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	token := uuid.New().String()
	ok, err := l.store.SetNX(ctx, lockPrefix+name, token, ttl)
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Release drops the named lock if it is still held under token. Releasing
// a lock that expired or changed hands is a no-op, not an error.
func (l *Lock) Release(ctx context.Context, name, token string) error {
	_, err := l.store.CompareAndDelete(ctx, lockPrefix+name, token)
	return err
}
