// Package llm defines the completion API client interface. The backend
// treats the language model as an opaque call: messages in, text or an
// error out. Credentials travel with each chat session, so clients are
// constructed per exchange via a Factory.
package llm

import "context"

// Role constants for completion messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn handed to the completion API.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the input to a Complete call.
type Request struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"maxTokens,omitempty"`
}

// Response is the result of a completion.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// Client is the interface all completion providers implement.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// Factory builds a client from per-session credentials.
type Factory func(apiKey, baseURL string) Client
