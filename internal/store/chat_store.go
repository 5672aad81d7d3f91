package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelsec/ransomchat/internal/domain"
)

// ErrSessionNotFound is returned when a session does not exist or does
// not belong to the caller.
var ErrSessionNotFound = errors.New("chat session not found")

// timeFormat keeps millisecond resolution so message order survives
// bursts of appends within the same second.
const timeFormat = "2006-01-02 15:04:05.000"

// ChatStore persists chat sessions and their ordered message logs.
type ChatStore struct {
	db *DB
}

// NewChatStore creates a chat store using the given database.
func NewChatStore(db *DB) *ChatStore {
	return &ChatStore{db: db}
}

// CreateSession inserts a new chat session. A missing title defaults to
// "Chat with <group>", and a missing revenue is generated once here and
// never regenerated afterwards.
func (s *ChatStore) CreateSession(sess domain.ChatSession) (*domain.ChatSession, error) {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.Title == "" {
		sess.Title = fmt.Sprintf("Chat with %s", sess.GroupName)
	}
	if sess.Revenue == "" {
		sess.Revenue = domain.GenerateRevenue()
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.sql.Exec(
		`INSERT INTO chat_sessions (id, owner, group_name, title, api_key, base_url, model, company_name, revenue, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Owner, sess.GroupName, sess.Title, sess.APIKey, sess.BaseURL, sess.Model,
		sess.CompanyName, sess.Revenue, now.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return &sess, nil
}

// GetSession returns the session with its message log, or
// ErrSessionNotFound if it does not exist or belongs to another owner.
func (s *ChatStore) GetSession(id, owner string) (*domain.ChatSession, error) {
	var sess domain.ChatSession
	var createdAt, updatedAt string

	err := s.db.sql.QueryRow(
		`SELECT id, owner, group_name, title, api_key, base_url, model, company_name, revenue, created_at, updated_at
		 FROM chat_sessions WHERE id = ? AND owner = ?`, id, owner,
	).Scan(
		&sess.ID, &sess.Owner, &sess.GroupName, &sess.Title, &sess.APIKey, &sess.BaseURL,
		&sess.Model, &sess.CompanyName, &sess.Revenue, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	sess.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	sess.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	msgs, err := s.History(id)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return &sess, nil
}

// AppendMessage adds one immutable message to a session's log and bumps
// the session's updated_at.
func (s *ChatStore) AppendMessage(sessionID string, role domain.Role, content string) (*domain.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid message role %q", role)
	}

	var exists int
	err := s.db.sql.QueryRow(`SELECT COUNT(*) FROM chat_sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking session: %w", err)
	}
	if exists == 0 {
		return nil, ErrSessionNotFound
	}

	msg := domain.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.sql.Exec(
		`INSERT INTO messages (id, session_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, sessionID, string(msg.Role), msg.Content, msg.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	if err := s.Touch(sessionID); err != nil {
		return nil, err
	}
	return &msg, nil
}

// History returns a session's messages ordered by creation time
// ascending. Insertion order breaks ties.
func (s *ChatStore) History(sessionID string) ([]domain.Message, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, session_id, role, content, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at, rowid`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var role, createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = domain.Role(role)
		m.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Touch updates a session's modification timestamp.
func (s *ChatStore) Touch(sessionID string) error {
	res, err := s.db.sql.Exec(
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(timeFormat), sessionID,
	)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session and, via the foreign key cascade, all
// of its messages.
func (s *ChatStore) DeleteSession(id, owner string) error {
	res, err := s.db.sql.Exec(`DELETE FROM chat_sessions WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Summary is a session listing entry with message preview fields.
type Summary struct {
	ID              string    `json:"id"`
	GroupName       string    `json:"group_name"`
	Title           string    `json:"title"`
	MessageCount    int       `json:"message_count"`
	FirstMessage    string    `json:"first_message,omitempty"`
	LastMessage     string    `json:"last_message,omitempty"`
	MatchingContext string    `json:"matching_context,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListSessions returns the owner's sessions, most recently updated first.
func (s *ChatStore) ListSessions(owner string) ([]Summary, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, group_name, title, created_at, updated_at
		 FROM chat_sessions WHERE owner = ? ORDER BY updated_at DESC`, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var createdAt, updatedAt string
		if err := rows.Scan(&sum.ID, &sum.GroupName, &sum.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sum.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		sum.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		if err := s.fillPreview(&sum); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// SearchSessions returns the owner's sessions whose messages contain the
// query substring, case-insensitively, most recently updated first.
func (s *ChatStore) SearchSessions(owner, query string) ([]Summary, error) {
	if query == "" {
		return nil, nil
	}

	pattern := "%" + query + "%"
	rows, err := s.db.sql.Query(
		`SELECT DISTINCT cs.id, cs.group_name, cs.title, cs.created_at, cs.updated_at
		 FROM chat_sessions cs
		 JOIN messages m ON m.session_id = cs.id
		 WHERE cs.owner = ? AND m.content LIKE ? COLLATE NOCASE
		 ORDER BY cs.updated_at DESC`, owner, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("searching sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var createdAt, updatedAt string
		if err := rows.Scan(&sum.ID, &sum.GroupName, &sum.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sum.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		sum.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		if err := s.fillPreview(&sum); err != nil {
			return nil, err
		}

		var match string
		err = s.db.sql.QueryRow(
			`SELECT content FROM messages
			 WHERE session_id = ? AND content LIKE ? COLLATE NOCASE
			 ORDER BY created_at, rowid LIMIT 1`, sum.ID, pattern,
		).Scan(&match)
		switch {
		case err == nil:
			sum.MatchingContext = truncate(match, 200)
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("finding matching message: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// fillPreview populates message count and first/last message snippets.
func (s *ChatStore) fillPreview(sum *Summary) error {
	err := s.db.sql.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sum.ID,
	).Scan(&sum.MessageCount)
	if err != nil {
		return fmt.Errorf("counting messages: %w", err)
	}

	// First user message, skipping any assistant welcome. A session the
	// victim has not written to yet shows the "New Chat" placeholder.
	var first string
	err = s.db.sql.QueryRow(
		`SELECT content FROM messages WHERE session_id = ? AND role = 'user'
		 ORDER BY created_at, rowid LIMIT 1`, sum.ID,
	).Scan(&first)
	switch {
	case err == nil:
		sum.FirstMessage = truncate(first, 100)
	case errors.Is(err, sql.ErrNoRows):
		sum.FirstMessage = "New Chat"
	default:
		return fmt.Errorf("loading first message: %w", err)
	}

	var last string
	err = s.db.sql.QueryRow(
		`SELECT content FROM messages WHERE session_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`, sum.ID,
	).Scan(&last)
	switch {
	case err == nil:
		sum.LastMessage = truncate(last, 100)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("loading last message: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
