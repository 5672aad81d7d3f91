package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kestrelsec/ransomchat/internal/chat"
	"github.com/kestrelsec/ransomchat/internal/domain"
	"github.com/kestrelsec/ransomchat/internal/persona"
	"github.com/kestrelsec/ransomchat/internal/scheduler"
	"github.com/kestrelsec/ransomchat/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps service errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var vErr *chat.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Chat not found")
	case errors.Is(err, persona.ErrPersonaNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// owner extracts the requesting user. Authentication proper is handled
// upstream; the gateway only needs the identity for session scoping.
func owner(r *http.Request) (string, bool) {
	o := r.Header.Get("X-Owner")
	return o, o != ""
}

func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	o, ok := owner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "X-Owner header is required")
	}
	return o, ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON request")
		return false
	}
	return true
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// handlePersonas lists the available threat-actor profiles, largest
// behaviour file first.
func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	groups, err := persona.List(s.orch.BehaviourDir())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

type createChatRequest struct {
	GroupName   string `json:"group_name"`
	Title       string `json:"title,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
	Model       string `json:"model,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Revenue     string `json:"revenue,omitempty"`
}

// handleCreateChat creates a new negotiation session.
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	o, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req createChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GroupName == "" {
		writeError(w, http.StatusBadRequest, "Group name is required")
		return
	}

	sess, err := s.orch.Sessions().CreateSession(domain.ChatSession{
		Owner:       o,
		GroupName:   req.GroupName,
		Title:       req.Title,
		APIKey:      req.APIKey,
		BaseURL:     req.BaseURL,
		Model:       req.Model,
		CompanyName: req.CompanyName,
		Revenue:     req.Revenue,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":         sess.ID,
		"group_name": sess.GroupName,
		"welcome_message": fmt.Sprintf(
			"Welcome to the %s negotiation chatroom.", sess.GroupName),
	})
}

// handleListChats lists the caller's sessions, most recent first.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	o, ok := requireOwner(w, r)
	if !ok {
		return
	}
	chats, err := s.orch.Sessions().ListSessions(o)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if chats == nil {
		chats = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

// handleSearchChats searches the caller's sessions by message content.
func (s *Server) handleSearchChats(w http.ResponseWriter, r *http.Request) {
	o, ok := requireOwner(w, r)
	if !ok {
		return
	}
	chats, err := s.orch.Sessions().SearchSessions(o, r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if chats == nil {
		chats = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

// handleGetChat returns a session with its full message log.
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	o, ok := requireOwner(w, r)
	if !ok {
		return
	}
	sess, err := s.orch.Sessions().GetSession(r.PathValue("id"), o)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleDeleteChat removes a session and its messages.
func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	o, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if err := s.orch.Sessions().DeleteSession(r.PathValue("id"), o); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleChat performs a synchronous exchange and returns the reply
// inline.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	o, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req chat.ExchangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Owner = o

	res, err := s.orch.Run(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"response": res.Reply,
		"group":    res.Group,
	}
	if res.SessionID != "" {
		resp["session_id"] = res.SessionID
	}
	writeJSON(w, http.StatusOK, resp)
}

type initChatRequest struct {
	GroupName   string `json:"group_name"`
	APIKey      string `json:"api_key,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
	Model       string `json:"model,omitempty"`
	SaveSession bool   `json:"save_session,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Revenue     string `json:"revenue,omitempty"`
}

// handleInitChat renders the opening system prompt and welcome message
// for a new negotiation, optionally creating a persistent session.
func (s *Server) handleInitChat(w http.ResponseWriter, r *http.Request) {
	o, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req initChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GroupName == "" {
		writeError(w, http.StatusBadRequest, "Group name is required")
		return
	}

	revenue := req.Revenue
	if revenue == "" {
		revenue = domain.GenerateRevenue()
	}
	companyName := req.CompanyName
	if companyName == "" {
		companyName = domain.DefaultCompanyName
	}

	systemPrompt, err := s.orch.BuildInitPrompt(req.GroupName, revenue, companyName)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"system_prompt": systemPrompt,
		"welcome_message": fmt.Sprintf(
			"Hello. You've reached the %s support chat. Your systems have been "+
				"encrypted and your data has been exfiltrated. We are ready to "+
				"discuss resolution. Do you have authorization to negotiate on "+
				"behalf of your organization?", req.GroupName),
		"group":        req.GroupName,
		"revenue":      revenue,
		"company_name": companyName,
	}

	if req.SaveSession {
		sess, err := s.orch.Sessions().CreateSession(domain.ChatSession{
			Owner:       o,
			GroupName:   req.GroupName,
			APIKey:      req.APIKey,
			BaseURL:     req.BaseURL,
			Model:       req.Model,
			CompanyName: companyName,
			Revenue:     revenue,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp["session_id"] = sess.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleChatAsync queues an exchange for background processing and
// returns a task ID to poll. A session is created on the fly when none
// is named so every async exchange is persisted.
func (s *Server) handleChatAsync(w http.ResponseWriter, r *http.Request) {
	o, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req chat.ExchangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Owner = o

	if err := s.orch.Validate(req); err != nil {
		writeDomainError(w, err)
		return
	}

	if req.SessionID == "" {
		sess, err := s.orch.Sessions().CreateSession(domain.ChatSession{
			Owner:     o,
			GroupName: req.GroupName,
			APIKey:    req.APIKey,
			BaseURL:   req.BaseURL,
			Model:     req.Model,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		req.SessionID = sess.ID
	} else if _, err := s.orch.Sessions().GetSession(req.SessionID, o); err != nil {
		writeDomainError(w, err)
		return
	}

	taskID, err := s.sched.Enqueue(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"task_id":    taskID,
		"session_id": req.SessionID,
		"status":     domain.ResultProcessing,
		"message":    "Message queued. Poll for response using task_id.",
	})
}

// handleChatStatus polls for the outcome of an async exchange. The
// result channel is authoritative; until it holds a terminal result the
// task reports as processing.
func (s *Server) handleChatStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskID")

	result, found, err := s.results.Fetch(r.Context(), taskID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if found {
		writeJSON(w, http.StatusOK, result)
		return
	}

	// A failed task normally leaves an error result behind; this covers
	// the case where the result store write itself failed.
	if st, known := s.sched.Status(taskID); known && st == domain.TaskFailed {
		writeJSON(w, http.StatusOK, domain.TaskResult{
			Status: domain.ResultError,
			TaskID: taskID,
			Error:  "task failed before a result could be stored",
		})
		return
	}

	writeJSON(w, http.StatusOK, domain.TaskResult{
		Status: domain.ResultProcessing,
		TaskID: taskID,
	})
}
