package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/ransomchat/internal/domain"
)

func TestMemoryStore_SetNX(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.SetNX(ctx, "k", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "k", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX on a live key must fail")

	val, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", val)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	ok, err := s.SetNX(ctx, "k", "a", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Advance past the TTL
	s.SetClock(func() time.Time { return now.Add(11 * time.Second) })

	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "expired key must read as absent")

	// And the key is free for a new holder
	ok, err = s.SetNX(ctx, "k", "b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_Del(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "k", "a", 0))
	require.NoError(t, s.Del(ctx, "k"))
	require.NoError(t, s.Del(ctx, "k"), "deleting an absent key is not an error")

	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLock_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	lock := NewLock(NewMemoryStore())

	token, ok, err := lock.Acquire(ctx, "session-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = lock.Acquire(ctx, "session-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "at most one holder per name")

	// A different name is independent
	_, ok, err = lock.Acquire(ctx, "session-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lock.Release(ctx, "session-1", token))

	_, ok, err = lock.Acquire(ctx, "session-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released lock must be acquirable again")
}

func TestLock_ReleaseRequiresToken(t *testing.T) {
	ctx := context.Background()
	lock := NewLock(NewMemoryStore())

	token, ok, err := lock.Acquire(ctx, "session-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A stale or foreign token must not free the lock
	require.NoError(t, lock.Release(ctx, "session-1", "not-the-token"))
	_, ok, err = lock.Acquire(ctx, "session-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx, "session-1", token))
	_, ok, err = lock.Acquire(ctx, "session-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	lock := NewLock(store)

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	_, ok, err := lock.Acquire(ctx, "crashed", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	store.SetClock(func() time.Time { return now.Add(6 * time.Second) })

	_, ok, err = lock.Acquire(ctx, "crashed", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must not deadlock new holders")
}

func TestResults_RoundTrip(t *testing.T) {
	ctx := context.Background()
	results := NewResults(NewMemoryStore(), 0)

	_, found, err := results.Fetch(ctx, "task-1")
	require.NoError(t, err)
	assert.False(t, found)

	want := domain.TaskResult{
		Status:    domain.ResultCompleted,
		TaskID:    "task-1",
		Response:  "pay up",
		SessionID: "sess-1",
		Group:     "LockBit",
	}
	require.NoError(t, results.Store(ctx, "task-1", want))

	got, found, err := results.Fetch(ctx, "task-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestResults_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	results := NewResults(NewMemoryStore(), 0)

	require.NoError(t, results.Store(ctx, "task-1", domain.TaskResult{Status: domain.ResultError, TaskID: "task-1"}))
	require.NoError(t, results.Store(ctx, "task-1", domain.TaskResult{Status: domain.ResultCompleted, TaskID: "task-1"}))

	got, found, err := results.Fetch(ctx, "task-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.ResultCompleted, got.Status)
}

func TestResults_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	results := NewResults(store, 30*time.Second)

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	require.NoError(t, results.Store(ctx, "task-1", domain.TaskResult{Status: domain.ResultCompleted, TaskID: "task-1"}))

	store.SetClock(func() time.Time { return now.Add(31 * time.Second) })

	_, found, err := results.Fetch(ctx, "task-1")
	require.NoError(t, err)
	assert.False(t, found, "expired result reads as unknown, not completed")
}
