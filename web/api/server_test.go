package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unosaa/datapipe/internal/domain"
	"github.com/unosaa/datapipe/internal/runstore"
)

func TestListRunsHandler(t *testing.T) {
	store := &mockStore{
		runs: []*domain.Run{
			{ID: "a", Command: domain.CommandETL, Target: "dev", Status: domain.RunSucceeded, StartedAt: time.Now()},
			{ID: "b", Command: domain.CommandIngest, Target: "dev", Status: domain.RunFailed, ExitCode: 2, StartedAt: time.Now()},
		},
	}

	server := NewServer(store, nil, nil, ":8088")

	req := httptest.NewRequest("GET", "/api/runs", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}

	var runs []RunResponse
	json.NewDecoder(w.Body).Decode(&runs)

	if len(runs) != 2 {
		t.Errorf("Run count = %d, want 2", len(runs))
	}
}

func TestListRunsHandler_BadLimit(t *testing.T) {
	server := NewServer(&mockStore{}, nil, nil, ":8088")

	req := httptest.NewRequest("GET", "/api/runs?limit=zero", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	store := &mockStore{
		runs: []*domain.Run{
			{ID: "a", Status: domain.RunSucceeded, StartedAt: time.Now()},
			{ID: "b", Status: domain.RunRunning, StartedAt: time.Now()},
			{ID: "c", Status: domain.RunFailed, StartedAt: time.Now()},
		},
	}

	server := NewServer(store, nil, nil, ":8088")

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	var status StatusResponse
	json.NewDecoder(w.Body).Decode(&status)

	if status.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", status.Succeeded)
	}
	if status.Running != 1 {
		t.Errorf("Running = %d, want 1", status.Running)
	}
	if status.Failed != 1 {
		t.Errorf("Failed = %d, want 1", status.Failed)
	}
}

func TestGetRunHandler(t *testing.T) {
	store := &mockStore{
		runs: []*domain.Run{
			{ID: "a", Command: domain.CommandETL, Target: "dev", Status: domain.RunSucceeded, StartedAt: time.Now()},
		},
	}

	server := NewServer(store, nil, nil, ":8088")

	req := httptest.NewRequest("GET", "/api/runs/a", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}

	var run RunResponse
	json.NewDecoder(w.Body).Decode(&run)
	if run.Command != "etl" {
		t.Errorf("Command = %q, want etl", run.Command)
	}

	req = httptest.NewRequest("GET", "/api/runs/missing", nil)
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404 for missing run", w.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	server := NewServer(&mockStore{}, nil, nil, ":8088")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
}

type mockStore struct {
	runs []*domain.Run
}

func (m *mockStore) ListRuns(opts runstore.ListOptions) ([]*domain.Run, error) {
	runs := m.runs
	if opts.Limit > 0 && len(runs) > opts.Limit {
		runs = runs[:opts.Limit]
	}
	return runs, nil
}

func (m *mockStore) GetRun(id string) (*domain.Run, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}
