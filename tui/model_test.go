package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unosaa/datapipe/internal/domain"
	"github.com/unosaa/datapipe/internal/runstore"
)

type fakeRunStore struct {
	runs  []*domain.Run
	err   error
	calls int
}

func (f *fakeRunStore) ListRuns(opts runstore.ListOptions) ([]*domain.Run, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	runs := f.runs
	if opts.Limit > 0 && len(runs) > opts.Limit {
		runs = runs[:opts.Limit]
	}
	return runs, nil
}

func testRun(id string, cmd domain.Command, status domain.RunStatus) *domain.Run {
	started := time.Now().Add(-5 * time.Minute)
	run := &domain.Run{
		ID:        id,
		Command:   cmd,
		Target:    "dev",
		Status:    status,
		StartedAt: started,
	}
	if status != domain.RunRunning {
		finished := started.Add(3 * time.Minute)
		run.FinishedAt = &finished
	}
	return run
}

func TestNewModel(t *testing.T) {
	runs := []*domain.Run{
		testRun("a", domain.CommandETL, domain.RunSucceeded),
		testRun("b", domain.CommandTransform, domain.RunRunning),
		testRun("c", domain.CommandIngest, domain.RunFailed),
	}

	model := NewModel(ModelConfig{Runs: runs, Limit: 10})

	if len(model.runs) != 3 {
		t.Errorf("runs count = %d, want 3", len(model.runs))
	}
	if model.running != 1 {
		t.Errorf("running = %d, want 1", model.running)
	}
	if model.succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", model.succeeded)
	}
	if model.failed != 1 {
		t.Errorf("failed = %d, want 1", model.failed)
	}
	if model.selectedRun != 0 {
		t.Errorf("selectedRun = %d, want 0", model.selectedRun)
	}
}

func TestNewModel_DefaultLimit(t *testing.T) {
	model := NewModel(ModelConfig{})

	if model.limit != 20 {
		t.Errorf("limit = %d, want 20", model.limit)
	}
}

func TestModel_ScrollNavigation(t *testing.T) {
	runs := []*domain.Run{
		testRun("a", domain.CommandETL, domain.RunSucceeded),
		testRun("b", domain.CommandETL, domain.RunSucceeded),
	}
	model := NewModel(ModelConfig{Runs: runs})
	model.width = 100
	model.height = 40

	// Scroll down
	newModel, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	model = newModel.(Model)

	if model.selectedRun != 1 {
		t.Errorf("after j: selectedRun = %d, want 1", model.selectedRun)
	}

	// Already at the bottom, j should stay put
	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	model = newModel.(Model)

	if model.selectedRun != 1 {
		t.Errorf("after j at bottom: selectedRun = %d, want 1", model.selectedRun)
	}

	// Scroll up
	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	model = newModel.(Model)

	if model.selectedRun != 0 {
		t.Errorf("after k: selectedRun = %d, want 0", model.selectedRun)
	}

	// Already at the top, k should stay put
	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	model = newModel.(Model)

	if model.selectedRun != 0 {
		t.Errorf("after k at top: selectedRun = %d, want 0", model.selectedRun)
	}
}

func TestModel_TopBottomKeys(t *testing.T) {
	runs := []*domain.Run{
		testRun("a", domain.CommandETL, domain.RunSucceeded),
		testRun("b", domain.CommandETL, domain.RunSucceeded),
		testRun("c", domain.CommandETL, domain.RunSucceeded),
	}
	model := NewModel(ModelConfig{Runs: runs})
	model.width = 100
	model.height = 40

	newModel, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("G")})
	model = newModel.(Model)

	if model.selectedRun != 2 {
		t.Errorf("after G: selectedRun = %d, want 2", model.selectedRun)
	}

	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	model = newModel.(Model)

	if model.selectedRun != 0 {
		t.Errorf("after g: selectedRun = %d, want 0", model.selectedRun)
	}
}

func TestModel_QuitCommands(t *testing.T) {
	model := NewModel(ModelConfig{})
	model.width = 100
	model.height = 40

	// Test 'q' quit
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("'q' should return a quit command")
	}

	// Test ctrl+c quit
	_, cmd = model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Error("ctrl+c should return a quit command")
	}
}

func TestModel_DetailToggle(t *testing.T) {
	runs := []*domain.Run{
		testRun("a", domain.CommandETL, domain.RunFailed),
	}
	model := NewModel(ModelConfig{Runs: runs})
	model.width = 100
	model.height = 40

	// Toggle detail view with enter
	newModel, _ := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = newModel.(Model)

	if !model.showDetail {
		t.Error("showDetail should be true after enter")
	}

	// Toggle off with enter
	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = newModel.(Model)

	if model.showDetail {
		t.Error("showDetail should be false after second enter")
	}

	// Toggle on and close with esc
	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = newModel.(Model)
	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	model = newModel.(Model)

	if model.showDetail {
		t.Error("showDetail should be false after esc")
	}
}

func TestModel_DetailNeedsRuns(t *testing.T) {
	model := NewModel(ModelConfig{})
	model.width = 100
	model.height = 40

	newModel, _ := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = newModel.(Model)

	if model.showDetail {
		t.Error("enter with no runs should not open the detail view")
	}
}

func TestModel_WindowResize(t *testing.T) {
	model := NewModel(ModelConfig{})

	newModel, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model = newModel.(Model)

	if model.width != 120 {
		t.Errorf("width = %d, want 120", model.width)
	}
	if model.height != 40 {
		t.Errorf("height = %d, want 40", model.height)
	}
}

func TestModel_TickMsg(t *testing.T) {
	store := &fakeRunStore{runs: []*domain.Run{
		testRun("a", domain.CommandETL, domain.RunSucceeded),
	}}
	model := NewModel(ModelConfig{Store: store})
	model.width = 100
	model.height = 40

	// TickMsg should reload runs and schedule the next tick
	newModel, cmd := model.Update(TickMsg(time.Now()))
	model = newModel.(Model)

	if cmd == nil {
		t.Error("TickMsg should return a command for the next tick")
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
	if len(model.runs) != 1 {
		t.Errorf("runs count = %d, want 1", len(model.runs))
	}
}

func TestModel_RefreshKey(t *testing.T) {
	store := &fakeRunStore{runs: []*domain.Run{
		testRun("a", domain.CommandETL, domain.RunSucceeded),
		testRun("b", domain.CommandPromote, domain.RunFailed),
	}}
	model := NewModel(ModelConfig{Store: store})
	model.width = 100
	model.height = 40

	newModel, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	model = newModel.(Model)

	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
	if len(model.runs) != 2 {
		t.Errorf("runs count = %d, want 2", len(model.runs))
	}
	if model.failed != 1 {
		t.Errorf("failed = %d, want 1", model.failed)
	}
}

func TestModel_RefreshErrorKeepsRuns(t *testing.T) {
	store := &fakeRunStore{err: errors.New("database locked")}
	runs := []*domain.Run{
		testRun("a", domain.CommandETL, domain.RunSucceeded),
	}
	model := NewModel(ModelConfig{Store: store, Runs: runs})
	model.width = 100
	model.height = 40

	newModel, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	model = newModel.(Model)

	if model.loadErr == nil {
		t.Error("loadErr should be set after a failed refresh")
	}
	if len(model.runs) != 1 {
		t.Errorf("runs count = %d, want 1 (stale data kept)", len(model.runs))
	}

	// A later successful refresh clears the error
	store.err = nil
	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	model = newModel.(Model)

	if model.loadErr != nil {
		t.Errorf("loadErr = %v, want nil after recovery", model.loadErr)
	}
}

func TestModel_SelectionClampedAfterRefresh(t *testing.T) {
	store := &fakeRunStore{runs: []*domain.Run{
		testRun("a", domain.CommandETL, domain.RunSucceeded),
	}}
	runs := []*domain.Run{
		testRun("a", domain.CommandETL, domain.RunSucceeded),
		testRun("b", domain.CommandETL, domain.RunSucceeded),
		testRun("c", domain.CommandETL, domain.RunSucceeded),
	}
	model := NewModel(ModelConfig{Store: store, Runs: runs})
	model.width = 100
	model.height = 40
	model.selectedRun = 2

	newModel, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	model = newModel.(Model)

	if model.selectedRun != 0 {
		t.Errorf("selectedRun = %d, want 0 after list shrank", model.selectedRun)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{3*time.Minute + 12*time.Second, "3m12s"},
		{61 * time.Minute, "1h01m"},
		{0, "0s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
