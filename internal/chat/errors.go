package chat

import "fmt"

// ValidationError reports a missing or malformed request field. It is
// raised before any side effect.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// ExternalAPIError wraps a completion API failure verbatim. The backend
// does not retry these; messages already persisted for the turn are
// kept.
type ExternalAPIError struct {
	Err error
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("AI API error: %v", e.Err)
}

func (e *ExternalAPIError) Unwrap() error { return e.Err }
