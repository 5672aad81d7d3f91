package domain

// TaskStatus tracks the lifecycle of one asynchronous chat exchange.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskResult is the terminal outcome of an async task, stored in the
// result channel for polling. Status is "completed" or "error" on the
// wire to match what clients poll for.
type TaskResult struct {
	Status             string `json:"status"`
	TaskID             string `json:"task_id"`
	Response           string `json:"response,omitempty"`
	Error              string `json:"error,omitempty"`
	UserMessageID      string `json:"user_message_id,omitempty"`
	AssistantMessageID string `json:"assistant_message_id,omitempty"`
	SessionID          string `json:"session_id,omitempty"`
	Group              string `json:"group,omitempty"`
}

// Result statuses as polled by clients.
const (
	ResultCompleted  = "completed"
	ResultError      = "error"
	ResultProcessing = "processing"
)
