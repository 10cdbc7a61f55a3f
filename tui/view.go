package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/unosaa/datapipe/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	succeededStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	selectedStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))
)

// View renders the dashboard
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	// Header
	header := fmt.Sprintf(" UN-OSAA Data Pipeline │ Runs: %d │ Running: %d │ Succeeded: %d │ Failed: %d ",
		len(m.runs), m.running, m.succeeded, m.failed)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	if m.showDetail && m.selectedRun < len(m.runs) {
		detail := m.renderRunDetail()
		b.WriteString(sectionStyle.Width(m.width - 2).Render(detail))
		b.WriteString("\n")
	} else {
		runsSection := m.renderRuns()
		b.WriteString(sectionStyle.Width(m.width - 2).Render(runsSection))
		b.WriteString("\n")
	}

	// Refresh failures show up here instead of killing the UI
	if m.loadErr != nil {
		b.WriteString(warningStyle.Width(m.width).Render(fmt.Sprintf(" refresh failed: %s ", m.loadErr)))
		b.WriteString("\n")
	}

	// Status bar
	var statusBar string
	if m.showDetail {
		statusBar = " [esc/enter]back [q]uit "
	} else {
		statusBar = " [j/k]navigate [enter]details [g/G]top/bottom [r]efresh [q]uit "
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(statusBar))

	return b.String()
}

func (m Model) renderRuns() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("RECENT RUNS"))
	b.WriteString("\n")

	if len(m.runs) == 0 {
		b.WriteString(dimStyle.Render("  No runs recorded yet. Run 'datapipe etl' to get started."))
		return b.String()
	}

	header := fmt.Sprintf("    %-18s %-8s %-10s %5s  %-13s %9s",
		"COMMAND", "TARGET", "STATUS", "EXIT", "STARTED", "DURATION")
	b.WriteString(dimStyle.Render(header))
	b.WriteString("\n")

	// Calculate visible range
	maxVisible := 15
	if m.height > 24 {
		maxVisible = m.height - 9
	}

	start := 0
	if m.selectedRun >= maxVisible {
		start = m.selectedRun - maxVisible + 1
	}
	end := start + maxVisible
	if end > len(m.runs) {
		end = len(m.runs)
	}

	for i := start; i < end; i++ {
		run := m.runs[i]
		icon, style := runStatusStyle(run.Status)

		line := fmt.Sprintf("  %s %-18s %-8s %-10s %5d  %-13s %9s",
			icon,
			truncate(string(run.Command), 18),
			truncate(run.Target, 8),
			run.Status,
			run.ExitCode,
			run.StartedAt.Format("Jan 02 15:04"),
			formatDuration(runElapsed(run)))

		// Highlight selected run
		if i == m.selectedRun {
			b.WriteString(selectedStyle.Render("> " + line[2:]))
		} else {
			b.WriteString(style.Render(line))
		}
		b.WriteString("\n")
	}

	if len(m.runs) > maxVisible {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  ... showing %d-%d of %d (j/k to scroll)", start+1, end, len(m.runs))))
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderRunDetail() string {
	var b strings.Builder
	run := m.runs[m.selectedRun]

	b.WriteString(titleStyle.Render(fmt.Sprintf("RUN DETAIL: %s", run.ID)))
	b.WriteString("\n\n")

	_, style := runStatusStyle(run.Status)

	b.WriteString(fmt.Sprintf("  Command:  %s\n", run.Command))
	b.WriteString(fmt.Sprintf("  Target:   %s\n", run.Target))
	b.WriteString(fmt.Sprintf("  Status:   %s\n", style.Render(string(run.Status))))
	b.WriteString(fmt.Sprintf("  Exit:     %d\n", run.ExitCode))
	b.WriteString(fmt.Sprintf("  Started:  %s\n", run.StartedAt.Format(time.RFC3339)))
	if run.FinishedAt != nil {
		b.WriteString(fmt.Sprintf("  Finished: %s\n", run.FinishedAt.Format(time.RFC3339)))
	}
	b.WriteString(fmt.Sprintf("  Duration: %s\n", formatDuration(runElapsed(run))))

	if run.Error != "" {
		b.WriteString("\n")
		b.WriteString(failedStyle.Render("  ERROR:"))
		b.WriteString("\n")
		b.WriteString(failedStyle.Render(fmt.Sprintf("  %s", truncate(run.Error, m.width-8))))
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func runStatusStyle(status domain.RunStatus) (string, lipgloss.Style) {
	switch status {
	case domain.RunRunning:
		return "●", runningStyle
	case domain.RunSucceeded:
		return "✓", succeededStyle
	case domain.RunFailed:
		return "✗", failedStyle
	default:
		return "○", dimStyle
	}
}

// runElapsed reports wall time for finished runs and time since start
// for runs still in flight.
func runElapsed(run *domain.Run) time.Duration {
	if run.FinishedAt == nil {
		return time.Since(run.StartedAt)
	}
	return run.Duration()
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
