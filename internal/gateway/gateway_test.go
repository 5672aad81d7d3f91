package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/ransomchat/internal/chat"
	"github.com/kestrelsec/ransomchat/internal/config"
	"github.com/kestrelsec/ransomchat/internal/domain"
	"github.com/kestrelsec/ransomchat/internal/kv"
	"github.com/kestrelsec/ransomchat/internal/llm"
	"github.com/kestrelsec/ransomchat/internal/logging"
	"github.com/kestrelsec/ransomchat/internal/scheduler"
	"github.com/kestrelsec/ransomchat/internal/store"
)

const testBehaviour = `Greetings:
- Hello. Your network has been compromised.
`

type testServer struct {
	http     *httptest.Server
	sessions *store.ChatStore
	results  *kv.Results
}

func newTestServer(t *testing.T, client llm.Client) *testServer {
	t.Helper()

	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "LockBit_behaviour.txt"), []byte(testBehaviour), 0o600))

	sessions := store.NewChatStore(db)
	orch := chat.NewOrchestrator(sessions, dir, llm.MockFactory(client), "", "gpt-4o", log)

	mem := kv.NewMemoryStore()
	sched := scheduler.New(scheduler.Config{
		Workers:           2,
		LockRetryInterval: 5 * time.Millisecond,
	}, orch, kv.NewLock(mem), kv.NewResults(mem, 0), log)
	sched.Start()
	t.Cleanup(sched.Stop)

	results := kv.NewResults(mem, 0)
	srv := NewServer(config.ServerConfig{}, orch, sched, results, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{http: ts, sessions: sessions, results: results}
}

func echoClient() *llm.MockClient {
	return &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.Response, error) {
			last := req.Messages[len(req.Messages)-1]
			return &llm.Response{Content: "reply to " + last.Content}, nil
		},
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, buf)
	require.NoError(t, err)
	req.Header.Set("X-Owner", "alice")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", body["error"])
}

func TestPersonas(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodGet, "/api/personas", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	groups := body["groups"].([]any)
	require.Len(t, groups, 1)
	assert.Equal(t, "LockBit", groups[0].(map[string]any)["name"])
}

func TestOwnerRequired(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, err := http.Get(ts.http.URL + "/api/chats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateChat(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodPost, "/api/chats", map[string]any{
		"group_name": "LockBit",
		"api_key":    "sk-test",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "LockBit", body["group_name"])
	assert.Equal(t, "Welcome to the LockBit negotiation chatroom.", body["welcome_message"])
}

func TestCreateChatRequiresGroup(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodPost, "/api/chats", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Group name is required", body["error"])
}

func TestListSearchGetDelete(t *testing.T) {
	ts := newTestServer(t, echoClient())

	sess, err := ts.sessions.CreateSession(domain.ChatSession{
		Owner: "alice", GroupName: "LockBit",
	})
	require.NoError(t, err)
	_, err = ts.sessions.AppendMessage(sess.ID, domain.RoleUser, "we need a discount")
	require.NoError(t, err)

	resp, body := ts.do(t, http.MethodGet, "/api/chats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["chats"].([]any), 1)

	resp, body = ts.do(t, http.MethodGet, "/api/chats/search?q=discount", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	chats := body["chats"].([]any)
	require.Len(t, chats, 1)
	assert.Contains(t, chats[0].(map[string]any)["matching_context"], "discount")

	resp, body = ts.do(t, http.MethodGet, "/api/chats/"+sess.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sess.ID, body["id"])
	require.Len(t, body["messages"].([]any), 1)

	resp, body = ts.do(t, http.MethodDelete, "/api/chats/"+sess.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, _ = ts.do(t, http.MethodGet, "/api/chats/"+sess.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSyncChat(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodPost, "/api/chat", map[string]any{
		"group_name": "LockBit",
		"api_key":    "sk-test",
		"message":    "hello",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "reply to hello", body["response"])
	assert.Equal(t, "LockBit", body["group"])
	_, hasSession := body["session_id"]
	assert.False(t, hasSession)
}

func TestSyncChatValidation(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodPost, "/api/chat", map[string]any{
		"group_name": "LockBit",
		"message":    "hello",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "api_key")
}

func TestSyncChatUnknownPersona(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, _ := ts.do(t, http.MethodPost, "/api/chat", map[string]any{
		"group_name": "NoSuchGroup",
		"api_key":    "sk-test",
		"message":    "hello",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInitChat(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodPost, "/api/chat/init", map[string]any{
		"group_name":   "LockBit",
		"save_session": true,
		"company_name": "Acme Corp",
		"revenue":      "$500M",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["system_prompt"], "$500M")
	assert.Contains(t, body["system_prompt"], "Acme Corp")
	assert.Contains(t, body["welcome_message"], "LockBit support chat")
	assert.Equal(t, "$500M", body["revenue"])
	assert.NotEmpty(t, body["session_id"])

	// The saved session carries the negotiated identity
	sess, err := ts.sessions.GetSession(body["session_id"].(string), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", sess.CompanyName)
	assert.Equal(t, "$500M", sess.Revenue)
}

func TestInitChatGeneratesRevenue(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodPost, "/api/chat/init", map[string]any{
		"group_name": "LockBit",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Regexp(t, `^\$`, body["revenue"])
	assert.Equal(t, "the victim's company", body["company_name"])
	_, hasSession := body["session_id"]
	assert.False(t, hasSession)
}

func pollStatus(t *testing.T, ts *testServer, taskID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, body := ts.do(t, http.MethodGet, "/api/chat/status/"+taskID, nil)
		if body["status"] != string(domain.ResultProcessing) {
			return body
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not complete", taskID)
	return nil
}

func TestAsyncChatRoundTrip(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodPost, "/api/chat/async", map[string]any{
		"group_name": "LockBit",
		"api_key":    "sk-test",
		"message":    "we want proof of decryption",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processing", body["status"])
	taskID := body["task_id"].(string)
	sessionID := body["session_id"].(string)
	require.NotEmpty(t, taskID)
	require.NotEmpty(t, sessionID)

	result := pollStatus(t, ts, taskID)
	assert.Equal(t, "completed", result["status"])
	assert.Equal(t, "reply to we want proof of decryption", result["response"])
	assert.Equal(t, sessionID, result["session_id"])

	// Both turns landed in the on-the-fly session
	history, err := ts.sessions.History(sessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestAsyncChatUnknownSession(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodPost, "/api/chat/async", map[string]any{
		"session_id": "no-such-session",
		"group_name": "LockBit",
		"api_key":    "sk-test",
		"message":    "hello",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Chat not found", body["error"])
}

func TestChatStatusUnknownTask(t *testing.T) {
	ts := newTestServer(t, echoClient())

	resp, body := ts.do(t, http.MethodGet, "/api/chat/status/unknown-task", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, "unknown-task", body["task_id"])
}

func TestChatWatch(t *testing.T) {
	ts := newTestServer(t, echoClient())

	// Store a completed result after a short delay so the watcher has
	// to wait for it.
	go func() {
		time.Sleep(50 * time.Millisecond)
		ts.results.Store(context.Background(), "watch-task", domain.TaskResult{
			Status:   domain.ResultCompleted,
			TaskID:   "watch-task",
			Response: "final offer",
		})
	}()

	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/api/chat/watch/watch-task"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var result domain.TaskResult
	require.NoError(t, conn.ReadJSON(&result))
	assert.Equal(t, domain.ResultCompleted, result.Status)
	assert.Equal(t, "final offer", result.Response)
}

func TestCORSPreflight(t *testing.T) {
	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "LockBit_behaviour.txt"), []byte(testBehaviour), 0o600))

	sessions := store.NewChatStore(db)
	orch := chat.NewOrchestrator(sessions, dir, llm.MockFactory(echoClient()), "", "gpt-4o", log)
	mem := kv.NewMemoryStore()
	sched := scheduler.New(scheduler.Config{}, orch, kv.NewLock(mem), kv.NewResults(mem, 0), log)
	sched.Start()
	t.Cleanup(sched.Stop)

	srv := NewServer(config.ServerConfig{AllowedOrigins: []string{"https://app.example.com"}},
		orch, sched, kv.NewResults(mem, 0), log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	// Unlisted origins get no CORS headers
	req, err = http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
