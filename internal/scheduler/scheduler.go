// Package scheduler dispatches one task per inbound async message onto a
// worker pool. Workers are concurrent across sessions; within a session
// the distributed lock serializes the exchange critical section, so
// replies land in the order their requests arrived.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelsec/ransomchat/internal/chat"
	"github.com/kestrelsec/ransomchat/internal/domain"
	"github.com/kestrelsec/ransomchat/internal/kv"
	"github.com/kestrelsec/ransomchat/internal/logging"
	"github.com/kestrelsec/ransomchat/internal/store"
)

// ErrQueueFull is returned when the task queue cannot take more work.
var ErrQueueFull = errors.New("task queue full")

// ErrStopped is returned when enqueueing after Stop.
var ErrStopped = errors.New("scheduler stopped")

// ErrLockTimeout marks a task that exhausted its lock-acquisition
// retries. The inbound message is already durable when this happens; no
// reply was generated, so the client must re-poll or resend.
var ErrLockTimeout = errors.New("session lock wait timed out")

// lockTimeoutMessage is the client-facing text stored in the failure
// result when a task gives up waiting for the session lock.
const lockTimeoutMessage = "Timeout waiting for previous message to complete. Please try again."

// Config tunes the worker pool and the lock retry policy.
type Config struct {
	Workers           int
	QueueSize         int
	LockTTL           time.Duration
	LockRetries       int
	LockRetryInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.LockTTL <= 0 {
		c.LockTTL = kv.DefaultLockTTL
	}
	if c.LockRetries <= 0 {
		c.LockRetries = 60
	}
	if c.LockRetryInterval <= 0 {
		c.LockRetryInterval = time.Second
	}
	return c
}

// Task is one queued async exchange.
type Task struct {
	ID  string
	Req chat.ExchangeRequest
}

// Scheduler owns the queue, the workers, and the task status table.
type Scheduler struct {
	cfg     Config
	orch    *chat.Orchestrator
	lock    *kv.Lock
	results *kv.Results
	log     *logging.Logger

	queue chan *Task
	wg    sync.WaitGroup

	mu       sync.Mutex
	statuses map[string]domain.TaskStatus
	stopped  bool
}

// New creates a scheduler. Call Start before enqueueing.
func New(cfg Config, orch *chat.Orchestrator, lock *kv.Lock, results *kv.Results, log *logging.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:      cfg,
		orch:     orch,
		lock:     lock,
		results:  results,
		log:      log.Sub("scheduler"),
		queue:    make(chan *Task, cfg.QueueSize),
		statuses: make(map[string]domain.TaskStatus),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.log.Info().Int("workers", s.cfg.Workers).Int("queueSize", s.cfg.QueueSize).Msg("scheduler started")
}

// Stop closes the queue and waits for in-flight tasks to finish. Tasks
// run to completion; there is no mid-task cancellation.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.queue)
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// Enqueue validates the request and queues a task for it. The request
// must name an existing session; SessionID is required on the async path
// so the inbound message has somewhere durable to land.
func (s *Scheduler) Enqueue(req chat.ExchangeRequest) (string, error) {
	if err := s.orch.Validate(req); err != nil {
		return "", err
	}
	if req.SessionID == "" {
		return "", &chat.ValidationError{Field: "session_id"}
	}

	task := &Task{ID: uuid.New().String(), Req: req}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", ErrStopped
	}
	s.statuses[task.ID] = domain.TaskQueued
	s.mu.Unlock()

	select {
	case s.queue <- task:
	default:
		s.mu.Lock()
		delete(s.statuses, task.ID)
		s.mu.Unlock()
		return "", ErrQueueFull
	}

	s.log.Debug().Str("taskId", task.ID).Str("sessionId", req.SessionID).Msg("task queued")
	return task.ID, nil
}

// Status reports a task's lifecycle state, if the scheduler still tracks
// it. Entries live from Enqueue until the terminal result lands in the
// result channel; a terminal entry survives only when that write failed,
// so pollers still learn the outcome.
func (s *Scheduler) Status(taskID string) (domain.TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[taskID]
	return st, ok
}

func (s *Scheduler) setStatus(taskID string, st domain.TaskStatus) {
	s.mu.Lock()
	s.statuses[taskID] = st
	s.mu.Unlock()
}

func (s *Scheduler) clearStatus(taskID string) {
	s.mu.Lock()
	delete(s.statuses, taskID)
	s.mu.Unlock()
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	log := s.log.Sub(fmt.Sprintf("worker-%d", id))
	for task := range s.queue {
		s.process(context.Background(), task, log)
	}
}

// process runs one task to a terminal state. Every failure path writes
// the result channel so a polling client always finds an outcome while
// the result TTL lasts.
func (s *Scheduler) process(ctx context.Context, task *Task, log *logging.Logger) {
	s.setStatus(task.ID, domain.TaskRunning)
	req := task.Req

	// Persist the inbound message before any locking so it survives a
	// lock timeout.
	userMsg, err := s.orch.Sessions().AppendMessage(req.SessionID, domain.RoleUser, req.Message)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			s.fail(ctx, task, "Chat session not found", log)
		} else {
			s.fail(ctx, task, err.Error(), log)
		}
		return
	}

	token, err := s.acquireWithRetry(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			log.Warn().Str("taskId", task.ID).Str("sessionId", req.SessionID).Msg("lock timeout")
			s.fail(ctx, task, lockTimeoutMessage, log)
		} else {
			s.fail(ctx, task, err.Error(), log)
		}
		return
	}
	// Released only after the result is stored, so a poller that sees
	// the lock free can also see the outcome.
	defer func() {
		if err := s.lock.Release(ctx, req.SessionID, token); err != nil {
			log.Error().Err(err).Str("sessionId", req.SessionID).Msg("lock release failed")
		}
	}()

	result, err := s.orch.RunPersisted(ctx, req, userMsg.ID)
	if err != nil {
		s.fail(ctx, task, errorMessage(err), log)
		return
	}

	out := domain.TaskResult{
		Status:             domain.ResultCompleted,
		TaskID:             task.ID,
		Response:           result.Reply,
		UserMessageID:      result.UserMessageID,
		AssistantMessageID: result.AssistantMessageID,
		SessionID:          result.SessionID,
		Group:              result.Group,
	}
	if err := s.results.Store(ctx, task.ID, out); err != nil {
		log.Error().Err(err).Str("taskId", task.ID).Msg("storing task result failed")
		s.setStatus(task.ID, domain.TaskCompleted)
	} else {
		// The result channel is now authoritative; dropping the entry
		// keeps the status table from growing with every task ever run.
		s.clearStatus(task.ID)
	}
	log.Info().Str("taskId", task.ID).Str("sessionId", req.SessionID).Msg("task completed")
}

// acquireWithRetry polls the session lock at a fixed interval for a
// bounded number of attempts, returning ErrLockTimeout once they are
// exhausted. A store error fails closed immediately.
func (s *Scheduler) acquireWithRetry(ctx context.Context, sessionID string) (string, error) {
	for attempt := 0; attempt < s.cfg.LockRetries; attempt++ {
		token, ok, err := s.lock.Acquire(ctx, sessionID, s.cfg.LockTTL)
		if err != nil {
			return "", fmt.Errorf("acquiring session lock: %w", err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-time.After(s.cfg.LockRetryInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", ErrLockTimeout
}

// fail writes a failed terminal result to the result channel and drops
// the task's status entry, keeping it only if the write did not land.
func (s *Scheduler) fail(ctx context.Context, task *Task, msg string, log *logging.Logger) {
	out := domain.TaskResult{
		Status: domain.ResultError,
		TaskID: task.ID,
		Error:  msg,
	}
	if err := s.results.Store(ctx, task.ID, out); err != nil {
		log.Error().Err(err).Str("taskId", task.ID).Msg("storing failure result failed")
		s.setStatus(task.ID, domain.TaskFailed)
	} else {
		s.clearStatus(task.ID)
	}
	log.Warn().Str("taskId", task.ID).Str("error", msg).Msg("task failed")
}

func errorMessage(err error) string {
	var apiErr *chat.ExternalAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}
