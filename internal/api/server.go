// Package api exposes the state store and cascade operations over HTTP for
// the browser extension, and mounts the WebSocket bridge.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lotas/doctrack/internal/config"
	"github.com/lotas/doctrack/internal/server"
	"github.com/lotas/doctrack/internal/tracker"
)

// Store is the persistence the API needs.
type Store interface {
	tracker.Store
	tracker.Settings
}

// Server is the HTTP API server for doctrack.
type Server struct {
	router chi.Router
	store  Store
	bridge *server.Server
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server. bridge may be nil, in
// which case /ws and the live endpoints are not mounted.
func NewServer(store Store, bridge *server.Server, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		store:  store,
		bridge: bridge,
		log:    log,
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	if s.bridge != nil {
		r.Get("/ws", s.bridge.Handler().ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/state/get", s.handleStateGet)
		r.Post("/state/set", s.handleStateSet)
		r.Post("/progress", s.handleProgress)
		r.Post("/completion", s.handleCompletion)
		r.Post("/remove", s.handleRemove)
		r.Post("/restore", s.handleRestore)
		r.Post("/notes", s.handleNotes)
		if s.bridge != nil {
			r.Get("/live/structure", s.handleLiveStructure)
		}
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.bridge != nil && s.bridge.Connected()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "extension": connected})
}
