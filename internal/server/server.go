// Package server provides the HTTP status API for mudra.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/store"
)

// StatusSource provides the latest status and a feed of changes.
// *display.Tracker satisfies it.
type StatusSource interface {
	Latest() (display.Status, bool)
	Subscribe() (<-chan display.Status, func())
}

// History lists journaled publishes. *store.PublishRepository satisfies it.
type History interface {
	List(limit int) ([]store.Publish, error)
}

// Toggle pauses and resumes detection. *app.App satisfies it.
type Toggle interface {
	SetEnabled(bool)
	IsEnabled() bool
}

// Config holds the server configuration. Endpoints whose dependency is nil
// are not registered.
type Config struct {
	StaticDir string
	Status    StatusSource
	History   History
	Frames    FrameSource
	Toggle    Toggle
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Status != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.Handle("/api/status/ws", NewStatusHandler(s.config.Status))
	}

	if s.config.History != nil {
		s.mux.HandleFunc("/api/history", s.handleHistory)
	}

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames))
	}

	if s.config.Toggle != nil {
		s.mux.HandleFunc("/api/enabled", s.handleEnabled)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handleStatus handles GET requests to /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, ok := s.config.Status.Latest()
	if !ok {
		http.Error(w, "No status yet", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleHistory handles GET requests to /api/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	publishes, err := s.config.History.List(limit)
	if err != nil {
		slog.Error("failed to list publishes", "error", err)
		http.Error(w, "Failed to list publishes", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"publishes": publishes,
	})
}

// handleEnabled reports or changes the pause state on /api/enabled.
func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut, http.MethodPost:
		var body struct {
			Enabled *bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
			http.Error(w, "Body must be {\"enabled\": bool}", http.StatusBadRequest)
			return
		}
		s.config.Toggle.SetEnabled(*body.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.config.Toggle.IsEnabled()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// HTTPServer returns an *http.Server for addr, for callers that need Shutdown.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
