package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/unosaa/datapipe/internal/domain"
	"github.com/unosaa/datapipe/internal/runstore"
)

// defaultRunLimit bounds /api/runs responses unless the caller asks for
// more.
const defaultRunLimit = 50

// RunResponse is the API response for a run
type RunResponse struct {
	ID         string  `json:"id"`
	Command    string  `json:"command"`
	Target     string  `json:"target"`
	Status     string  `json:"status"`
	ExitCode   int     `json:"exit_code"`
	Error      string  `json:"error,omitempty"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Duration   string  `json:"duration"`
}

// JobResponse is the API response for a scheduled job
type JobResponse struct {
	Name    string `json:"name"`
	Command string `json:"command"`
	Cron    string `json:"cron"`
	Enabled bool   `json:"enabled"`
	NextRun string `json:"next_run,omitempty"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Total     int           `json:"total"`
	Running   int           `json:"running"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Jobs      []JobResponse `json:"jobs,omitempty"`
}

func runToResponse(r *domain.Run) RunResponse {
	resp := RunResponse{
		ID:        r.ID,
		Command:   string(r.Command),
		Target:    r.Target,
		Status:    string(r.Status),
		ExitCode:  r.ExitCode,
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}

	if r.FinishedAt != nil {
		t := r.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &t
	}

	resp.Duration = r.Duration().Round(time.Second).String()

	return resp
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		runs, err := s.store.ListRuns(runstore.ListOptions{})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		var status StatusResponse
		status.Total = len(runs)

		for _, run := range runs {
			switch run.Status {
			case domain.RunRunning:
				status.Running++
			case domain.RunSucceeded:
				status.Succeeded++
			case domain.RunFailed:
				status.Failed++
			}
		}

		if s.sched != nil {
			for _, name := range s.sched.ListJobs() {
				cfg, ok := s.sched.GetConfig(name)
				if !ok {
					continue
				}
				job := JobResponse{
					Name:    cfg.Name,
					Command: cfg.Command,
					Cron:    cfg.Cron,
					Enabled: cfg.IsEnabled(),
				}
				if next := s.sched.NextRun(name); !next.IsZero() {
					job.NextRun = next.Format(time.RFC3339)
				}
				status.Jobs = append(status.Jobs, job)
			}
		}

		writeJSON(w, status)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := defaultRunLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		opts := runstore.ListOptions{Limit: limit}
		if cmd := r.URL.Query().Get("command"); cmd != "" {
			opts.Command = domain.Command(cmd)
		}

		runs, err := s.store.ListRuns(opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]RunResponse, len(runs))
		for i, run := range runs {
			responses[i] = runToResponse(run)
		}

		writeJSON(w, responses)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		run, err := s.store.GetRun(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}

		writeJSON(w, runToResponse(run))
	}
}
