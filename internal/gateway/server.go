// Package gateway exposes the negotiation chat service over HTTP and
// WebSocket.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kestrelsec/ransomchat/internal/chat"
	"github.com/kestrelsec/ransomchat/internal/config"
	"github.com/kestrelsec/ransomchat/internal/kv"
	"github.com/kestrelsec/ransomchat/internal/logging"
	"github.com/kestrelsec/ransomchat/internal/scheduler"
)

// Server is the ransomchat HTTP + WebSocket gateway.
type Server struct {
	cfg        config.ServerConfig
	orch       *chat.Orchestrator
	sched      *scheduler.Scheduler
	results    *kv.Results
	log        *logging.Logger
	httpServer *http.Server
	upgrader   websocket.Upgrader
	startedAt  time.Time
}

// NewServer wires the orchestrator, scheduler, and result channel into a
// gateway.
func NewServer(
	cfg config.ServerConfig,
	orch *chat.Orchestrator,
	sched *scheduler.Scheduler,
	results *kv.Results,
	log *logging.Logger,
) *Server {
	return &Server{
		cfg:     cfg,
		orch:    orch,
		sched:   sched,
		results: results,
		log:     log.Sub("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler builds the full route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.AllowedOrigins)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/personas", s.handlePersonas)

	mux.HandleFunc("POST /api/chats", s.handleCreateChat)
	mux.HandleFunc("GET /api/chats", s.handleListChats)
	mux.HandleFunc("GET /api/chats/search", s.handleSearchChats)
	mux.HandleFunc("GET /api/chats/{id}", s.handleGetChat)
	mux.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/init", s.handleInitChat)
	mux.HandleFunc("POST /api/chat/async", s.handleChatAsync)
	mux.HandleFunc("GET /api/chat/status/{taskID}", s.handleChatStatus)
	mux.HandleFunc("GET /api/chat/watch/{taskID}", s.handleChatWatch)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// Start begins listening for connections. It blocks until the context is
// cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Addr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // long-poll and websocket endpoints manage their own deadlines
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.startedAt = time.Now()
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Msg("gateway server ready")

	// Shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not
// started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}
