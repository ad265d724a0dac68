// Package server provides the HTTP server for the poseball demo.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/poseball/internal/app"
	"github.com/ayusman/poseball/internal/server/api"
	"github.com/ayusman/poseball/internal/store"
)

// Controller is the frame loop as seen by the HTTP server.
type Controller interface {
	api.WebcamController
	OnFrame(fn func(app.Snapshot))
}

// Config holds the server configuration.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Controller Controller
	Frames     FrameSource
}

// Server represents the HTTP server for the poseball application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	state  *StateHandler
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

	// Run history requires a store
	if s.config.Store != nil {
		runHandler := api.NewRunHandler(s.config.Store)
		if s.config.Controller != nil {
			runHandler.WithActiveRun(s.activeRun)
		}
		s.mux.Handle("/api/runs", runHandler)
		s.mux.Handle("/api/runs/", runHandler)
	}

	// Webcam toggle and live state require the frame loop
	if s.config.Controller != nil {
		s.mux.Handle("/api/webcam", api.NewWebcamHandler(s.config.Controller))

		s.state = NewStateHandler(s.config.Controller)
		s.mux.Handle("/api/state", s.state)
	}

	// Composed frames
	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// activeRun returns the run the frame loop is recording, if it is running.
func (s *Server) activeRun() string {
	snap := s.config.Controller.Snapshot()
	if snap.State != app.Running.String() {
		return ""
	}
	return snap.RunID
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

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}
	if s.config.Controller != nil {
		snap := s.config.Controller.Snapshot()
		response["webcam"] = snap.State
		response["model_ready"] = snap.ModelReady
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Close disconnects websocket clients.
func (s *Server) Close() {
	if s.state != nil {
		s.state.Close()
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
