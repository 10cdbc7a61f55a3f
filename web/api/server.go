// Package api serves the schedule-mode status endpoints: health, recent
// runs from the ledger, scheduled job state, and Prometheus metrics.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/unosaa/datapipe/internal/batch"
	"github.com/unosaa/datapipe/internal/domain"
	"github.com/unosaa/datapipe/internal/runstore"
)

// Store is the run-ledger interface the handlers read from.
type Store interface {
	ListRuns(opts runstore.ListOptions) ([]*domain.Run, error)
	GetRun(id string) (*domain.Run, error)
}

// Server is the HTTP status server
type Server struct {
	store   Store
	sched   *batch.Scheduler
	metrics http.Handler
	addr    string
	mux     *http.ServeMux
}

// NewServer creates a new status server. sched and metrics may be nil.
func NewServer(store Store, sched *batch.Scheduler, metrics http.Handler, addr string) *Server {
	s := &Server{
		store:   store,
		sched:   sched,
		metrics: metrics,
		addr:    addr,
		mux:     http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.healthHandler())
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.getRunHandler())
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics)
	}
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return http.ListenAndServe(s.addr, s.mux)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
