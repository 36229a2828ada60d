// Package status serves the receiver state over HTTP
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/herlein/asfs/pkg/asfs"
)

// Source provides the state served. *asfs.Session implements it.
type Source interface {
	Snapshot() asfs.Snapshot
}

// Server exposes session snapshots
type Server struct {
	source  Source
	log     zerolog.Logger
	started time.Time
	router  chi.Router
	server  *http.Server
}

// NewServer creates a status server for source
func NewServer(source Source, logger zerolog.Logger) *Server {
	s := &Server{
		source:  source,
		log:     logger,
		started: time.Now(),
		router:  chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.HandleHealth)
	s.router.Get("/status", s.HandleStatus)
	s.router.Get("/packets/last", s.HandleLastPacket)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the server
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	s.log.Info().Str("addr", addr).Msg("Starting status server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// HandleHealth reports liveness
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// HandleStatus returns the session snapshot
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.source.Snapshot())
}

// HandleLastPacket returns the most recent frame, 404 before the first one
func (s *Server) HandleLastPacket(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	if snap.LastPacket == nil {
		s.respondError(w, http.StatusNotFound, "no packet received yet")
		return
	}
	s.respondJSON(w, http.StatusOK, snap.LastPacket)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
