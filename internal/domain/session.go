// Package domain holds the core types shared across the chat backend.
package domain

import (
	"fmt"
	"math/rand"
	"time"
)

// Role identifies who authored a message. The set is closed: only the
// victim ("user") and the simulated group ("assistant") appear in a log.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Credentials carries the completion API settings attached to a session.
type Credentials struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// ChatSession is a persisted negotiation conversation with one persona.
type ChatSession struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	GroupName   string    `json:"group_name"`
	Title       string    `json:"title"`
	APIKey      string    `json:"api_key,omitempty"`
	BaseURL     string    `json:"base_url,omitempty"`
	Model       string    `json:"model,omitempty"`
	CompanyName string    `json:"company_name"`
	Revenue     string    `json:"revenue"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Messages    []Message `json:"messages,omitempty"`
}

// Message is a single immutable turn in a chat session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultCompanyName is used when no victim company is supplied.
const DefaultCompanyName = "the victim's company"

// GenerateRevenue produces a random annual revenue between $10M and $10B,
// rendered as "$512M" or "$2.5B". Sessions without an explicit revenue get
// one of these at creation and keep it for life.
func GenerateRevenue() string {
	millions := 10 + rand.Float64()*(10000-10)
	if millions >= 1000 {
		return fmt.Sprintf("$%.1fB", millions/1000)
	}
	return fmt.Sprintf("$%.0fM", millions)
}
