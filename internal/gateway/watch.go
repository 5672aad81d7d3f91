package gateway

import (
	"net/http"
	"time"

	"github.com/kestrelsec/ransomchat/internal/domain"
)

const (
	// watchPollInterval is how often the watcher checks the result
	// channel on behalf of the client.
	watchPollInterval = 500 * time.Millisecond
	// watchTimeout bounds a watch to the lifetime of the result entry.
	watchTimeout   = 10 * time.Minute
	watchWriteWait = 10 * time.Second
)

// handleChatWatch upgrades to a WebSocket and pushes the terminal task
// result as soon as it lands in the result channel, saving clients from
// polling the status endpoint themselves.
func (s *Server) handleChatWatch(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskID")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()
	deadline := time.After(watchTimeout)

	for {
		result, found, err := s.results.Fetch(ctx, taskID)
		if err != nil {
			s.log.Warn().Err(err).Str("taskId", taskID).Msg("result fetch failed during watch")
			return
		}
		if found {
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(result); err != nil {
				s.log.Debug().Err(err).Str("taskId", taskID).Msg("watch client gone")
			}
			return
		}

		select {
		case <-ticker.C:
		case <-deadline:
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			conn.WriteJSON(domain.TaskResult{
				Status: domain.ResultError,
				TaskID: taskID,
				Error:  "timed out waiting for task result",
			})
			return
		case <-ctx.Done():
			return
		}
	}
}
