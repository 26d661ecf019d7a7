// Package httpapi is the ambient HTTP control surface: a minimal chi
// router exposing the scan_text/cancel operations over plain HTTP
// instead of a WebSocket.
package httpapi

import (
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/3leaps/sensiscan/pkg/config"
	"github.com/3leaps/sensiscan/pkg/coordinator"
)

// Server holds the process-wide state the HTTP handlers need: the
// scanning config and a registry of in-flight scans so a cancel request
// can reach the right Coordinator.
type Server struct {
	cfg     *config.Config
	version string

	mu     sync.Mutex
	active map[string]*coordinator.Coordinator

	router chi.Router
}

// NewServer builds a Server and wires its routes. cfg configures every
// scan started via POST /v1/scans; version is reported by GET /healthz.
func NewServer(cfg *config.Config, version string) *Server {
	s := &Server{
		cfg:     cfg,
		version: version,
		active:  make(map[string]*coordinator.Coordinator),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/v1/scans", s.handleStartScan)
	r.Post("/v1/scans/{id}/cancel", s.handleCancelScan)

	s.router = r
	return s
}

// Handler returns the root http.Handler for the server.
func (s *Server) Handler() chi.Router {
	return s.router
}

// register tracks a Coordinator under scanID so a cancel request can
// find it, and returns a cleanup func to call once the scan finishes.
func (s *Server) register(scanID string, c *coordinator.Coordinator) func() {
	s.mu.Lock()
	s.active[scanID] = c
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.active, scanID)
		s.mu.Unlock()
	}
}

func (s *Server) lookup(scanID string) (*coordinator.Coordinator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.active[scanID]
	return c, ok
}
