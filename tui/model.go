package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unosaa/datapipe/internal/domain"
	"github.com/unosaa/datapipe/internal/runstore"
)

// RunLister loads run history for the dashboard.
type RunLister interface {
	ListRuns(opts runstore.ListOptions) ([]*domain.Run, error)
}

// Model is the dashboard application model
type Model struct {
	store RunLister
	limit int

	// Data
	runs []*domain.Run

	// Stats
	running   int
	succeeded int
	failed    int

	// UI state
	width       int
	height      int
	selectedRun int
	showDetail  bool
	loadErr     error

	// Refresh
	lastRefresh time.Time
}

// ModelConfig holds initial data for the dashboard model
type ModelConfig struct {
	Store RunLister
	Limit int
	Runs  []*domain.Run
}

// NewModel creates a new dashboard model
func NewModel(cfg ModelConfig) Model {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 20
	}

	m := Model{
		store: cfg.Store,
		limit: limit,
	}
	m.setRuns(cfg.Runs)
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// setRuns replaces the run list and recomputes the status counts.
func (m *Model) setRuns(runs []*domain.Run) {
	m.runs = runs
	m.running, m.succeeded, m.failed = 0, 0, 0
	for _, r := range runs {
		switch r.Status {
		case domain.RunRunning:
			m.running++
		case domain.RunSucceeded:
			m.succeeded++
		case domain.RunFailed:
			m.failed++
		}
	}
	if m.selectedRun >= len(runs) {
		m.selectedRun = 0
	}
	m.lastRefresh = time.Now()
}

// refresh reloads the run history from the store.
func (m *Model) refresh() {
	if m.store == nil {
		return
	}
	runs, err := m.store.ListRuns(runstore.ListOptions{Limit: m.limit})
	if err != nil {
		m.loadErr = err
		return
	}
	m.loadErr = nil
	m.setRuns(runs)
}
