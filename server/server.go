// Package server exposes the chat system over HTTP: a blocking
// request/response endpoint, a line-delimited SSE stream and the session
// management surface (create, history, reset, health).
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/runner"
	"github.com/hupe1980/chatmesh/session"
)

// Options holds dependency overrides passed to New().
type Options struct {
	Logger logging.Logger
}

// Server wires the turn orchestrator and session store into HTTP handlers.
type Server struct {
	runner *runner.Runner
	store  *session.InMemoryStore
	logger logging.Logger
}

// New constructs a Server.
func New(r *runner.Runner, store *session.InMemoryStore, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{runner: r, store: store, logger: opts.Logger}
}

// Handler returns the routed HTTP handler for the chat API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/message", s.handleMessage)
	mux.HandleFunc("POST /api/chat/stream", s.handleStream)
	mux.HandleFunc("GET /api/chat/stream", s.handleStreamGet)
	mux.HandleFunc("POST /api/chat/session/new", s.handleNewSession)
	mux.HandleFunc("GET /api/chat/session/{id}/history", s.handleHistory)
	mux.HandleFunc("POST /api/chat/reset", s.handleReset)
	mux.HandleFunc("GET /api/chat/health", s.handleHealth)
	return mux
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req runner.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := s.runner.Run(r.Context(), req)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req runner.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.streamTurn(w, r, req)
}

// handleStreamGet serves EventSource clients, which can only issue GETs.
func (s *Server) handleStreamGet(w http.ResponseWriter, r *http.Request) {
	msg := r.URL.Query().Get("message")
	if msg == "" {
		s.sendJSONError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}
	req := runner.Request{Message: msg, SessionID: r.URL.Query().Get("session_id")}
	s.streamTurn(w, r, req)
}

func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, req runner.Request) {
	// Check streaming support before sending (fail fast).
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for ev := range s.runner.RunStream(r.Context(), req) {
		if err := writeSSEFrame(w, core.EncodeFrame(ev)); err != nil {
			s.logger.Warn("stream write failed: %v", err)
			return
		}
		flusher.Flush()
	}
}

func writeSSEFrame(w http.ResponseWriter, frame core.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

func (s *Server) handleNewSession(w http.ResponseWriter, _ *http.Request) {
	id := s.store.Create()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"message":    "New session created",
	})
}

// historyEntry is the wire form of one recorded turn.
type historyEntry struct {
	Role      core.Role `json:"role"`
	Content   string    `json:"content"`
	Handler   string    `json:"agent_used,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	turns, ok := s.store.History(id)
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, core.ErrSessionNotFound.Error())
		return
	}

	entries := make([]historyEntry, len(turns))
	for i, t := range turns {
		entries[i] = historyEntry{Role: t.Role, Content: t.Content, Handler: t.Handler, Timestamp: t.Timestamp}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   entries,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if s.store.Delete(req.SessionID) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "conversation_reset", "message": "Session cleared successfully"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "not_found", "message": "Session not found"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"service":         "chatmesh",
		"active_sessions": s.store.Count(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed: %v", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
