package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kestrelsec/ransomchat/internal/domain"
)

// resultPrefix namespaces task result keys in the shared store.
const resultPrefix = "chat_result:"

// DefaultResultTTL is how long a task outcome stays pollable. After it
// expires the task reads as "processing" forever, so clients should poll
// well within this window.
const DefaultResultTTL = 600 * time.Second

// Results is the write-once-per-task, time-limited outcome channel that
// async clients poll. A second write for the same task silently wins.
type Results struct {
	store Store
	ttl   time.Duration
}

// NewResults creates a result channel with the given TTL. A zero ttl
// uses DefaultResultTTL.
func NewResults(store Store, ttl time.Duration) *Results {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &Results{store: store, ttl: ttl}
}

// Store serializes the result and writes it under the task's key.
func (r *Results) Store(ctx context.Context, taskID string, result domain.TaskResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding task result: %w", err)
	}
	return r.store.Set(ctx, resultPrefix+taskID, string(data), r.ttl)
}

// Fetch returns the stored result for a task. ok=false means the task is
// still running, never existed, or its result expired — the channel
// cannot tell these apart.
func (r *Results) Fetch(ctx context.Context, taskID string) (domain.TaskResult, bool, error) {
	raw, ok, err := r.store.Get(ctx, resultPrefix+taskID)
	if err != nil || !ok {
		return domain.TaskResult{}, false, err
	}

	var result domain.TaskResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return domain.TaskResult{}, false, fmt.Errorf("decoding task result: %w", err)
	}
	return result, true, nil
}
