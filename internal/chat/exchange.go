// Package chat orchestrates one negotiation exchange: history resolution,
// prompt construction, the completion API call, and persistence.
package chat

import (
	"context"

	"github.com/kestrelsec/ransomchat/internal/domain"
	"github.com/kestrelsec/ransomchat/internal/llm"
	"github.com/kestrelsec/ransomchat/internal/logging"
	"github.com/kestrelsec/ransomchat/internal/persona"
	"github.com/kestrelsec/ransomchat/internal/store"
)

// maxResponseTokens caps the reply length requested from the completion
// API.
const maxResponseTokens = 500

// ExchangeRequest is one inbound message plus everything needed to
// process it.
type ExchangeRequest struct {
	SessionID string        `json:"session_id,omitempty"`
	Owner     string        `json:"-"`
	GroupName string        `json:"group_name"`
	APIKey    string        `json:"api_key"`
	BaseURL   string        `json:"base_url,omitempty"`
	Model     string        `json:"model,omitempty"`
	Message   string        `json:"message"`
	History   []llm.Message `json:"history,omitempty"`
}

// ExchangeResult is the outcome of a completed exchange.
type ExchangeResult struct {
	Reply              string
	SessionID          string
	Group              string
	UserMessageID      string
	AssistantMessageID string
}

// Orchestrator ties the session store, prompt builder, and completion
// API together.
type Orchestrator struct {
	sessions     *store.ChatStore
	behaviourDir string
	clients      llm.Factory
	baseURL      string
	model        string
	log          *logging.Logger
}

// NewOrchestrator creates an orchestrator. defaultBaseURL and
// defaultModel fill requests that omit them.
func NewOrchestrator(
	sessions *store.ChatStore,
	behaviourDir string,
	clients llm.Factory,
	defaultBaseURL, defaultModel string,
	log *logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		sessions:     sessions,
		behaviourDir: behaviourDir,
		clients:      clients,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		log:          log.Sub("chat"),
	}
}

// Sessions exposes the underlying chat store.
func (o *Orchestrator) Sessions() *store.ChatStore { return o.sessions }

// BehaviourDir returns the persona profile directory.
func (o *Orchestrator) BehaviourDir() string { return o.behaviourDir }

// Validate rejects requests with missing required fields before any side
// effect happens.
func (o *Orchestrator) Validate(req ExchangeRequest) error {
	if req.APIKey == "" {
		return &ValidationError{Field: "api_key"}
	}
	if req.GroupName == "" {
		return &ValidationError{Field: "group_name"}
	}
	if req.Message == "" {
		return &ValidationError{Field: "message"}
	}
	return nil
}

// Run performs one synchronous exchange. History comes from the request
// payload or, when a session is named and no history supplied, from the
// session store. On success with a session, both turns are persisted.
func (o *Orchestrator) Run(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	if err := o.Validate(req); err != nil {
		return nil, err
	}

	var sess *domain.ChatSession
	if req.SessionID != "" {
		var err error
		sess, err = o.sessions.GetSession(req.SessionID, req.Owner)
		if err != nil {
			return nil, err
		}
	}

	history := req.History
	if sess != nil && len(history) == 0 {
		for _, m := range sess.Messages {
			history = append(history, llm.Message{Role: string(m.Role), Content: m.Content})
		}
	}

	reply, err := o.complete(ctx, req, sess, append(history, llm.Message{
		Role:    llm.RoleUser,
		Content: req.Message,
	}), len(history) == 0)
	if err != nil {
		return nil, err
	}

	result := &ExchangeResult{Reply: reply, Group: req.GroupName}
	if sess != nil {
		result.SessionID = sess.ID
		userMsg, err := o.sessions.AppendMessage(sess.ID, domain.RoleUser, req.Message)
		if err != nil {
			return nil, err
		}
		asstMsg, err := o.sessions.AppendMessage(sess.ID, domain.RoleAssistant, reply)
		if err != nil {
			return nil, err
		}
		result.UserMessageID = userMsg.ID
		result.AssistantMessageID = asstMsg.ID
	}

	o.log.Info().
		Str("group", req.GroupName).
		Str("sessionId", result.SessionID).
		Int("historyLen", len(history)).
		Msg("exchange completed")
	return result, nil
}

// RunPersisted performs the critical section of an asynchronous exchange.
// The caller has already persisted the inbound message (it is the last
// entry of the session's log) and holds the session lock.
func (o *Orchestrator) RunPersisted(ctx context.Context, req ExchangeRequest, userMessageID string) (*ExchangeResult, error) {
	sess, err := o.sessions.GetSession(req.SessionID, req.Owner)
	if err != nil {
		return nil, err
	}

	var messages []llm.Message
	if len(req.History) > 0 {
		messages = append(append(messages, req.History...), llm.Message{
			Role:    llm.RoleUser,
			Content: req.Message,
		})
	} else {
		// The log may already hold inbound messages queued after this
		// one; the prompt stops at this task's own message.
		for _, m := range sess.Messages {
			messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
			if m.ID == userMessageID {
				break
			}
		}
	}

	// Only the just-persisted inbound message means a fresh conversation.
	isFirst := len(messages) <= 1

	reply, err := o.complete(ctx, req, sess, messages, isFirst)
	if err != nil {
		return nil, err
	}

	asstMsg, err := o.sessions.AppendMessage(sess.ID, domain.RoleAssistant, reply)
	if err != nil {
		return nil, err
	}

	o.log.Info().
		Str("group", req.GroupName).
		Str("sessionId", sess.ID).
		Msg("async exchange completed")

	return &ExchangeResult{
		Reply:              reply,
		SessionID:          sess.ID,
		Group:              req.GroupName,
		UserMessageID:      userMessageID,
		AssistantMessageID: asstMsg.ID,
	}, nil
}

// BuildInitPrompt loads the persona and renders the first-message prompt
// for a new negotiation, used by the chat initialization endpoint.
func (o *Orchestrator) BuildInitPrompt(group, revenue, companyName string) (string, error) {
	b, err := persona.LoadBehaviour(o.behaviourDir, group)
	if err != nil {
		return "", err
	}
	return persona.BuildPrompt(b, persona.PromptOptions{
		GroupName:      group,
		Revenue:        revenue,
		CompanyName:    companyName,
		IsFirstMessage: true,
	}), nil
}

// complete builds the system prompt and calls the completion API.
func (o *Orchestrator) complete(ctx context.Context, req ExchangeRequest, sess *domain.ChatSession, messages []llm.Message, isFirst bool) (string, error) {
	b, err := persona.LoadBehaviour(o.behaviourDir, req.GroupName)
	if err != nil {
		return "", err
	}

	opts := persona.PromptOptions{
		GroupName:      req.GroupName,
		IsFirstMessage: isFirst,
	}
	if sess != nil {
		opts.Revenue = sess.Revenue
		opts.CompanyName = sess.CompanyName
	}
	system := persona.BuildPrompt(b, opts)

	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = o.baseURL
	}
	model := req.Model
	if model == "" {
		model = o.model
	}

	client := o.clients(req.APIKey, baseURL)
	resp, err := client.Complete(ctx, llm.Request{
		Model:     model,
		System:    system,
		Messages:  messages,
		MaxTokens: maxResponseTokens,
	})
	if err != nil {
		return "", &ExternalAPIError{Err: err}
	}
	return resp.Content, nil
}
