package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.refresh()
		case "j", "down":
			if m.selectedRun < len(m.runs)-1 {
				m.selectedRun++
			}
		case "k", "up":
			if m.selectedRun > 0 {
				m.selectedRun--
			}
		case "g":
			m.selectedRun = 0
		case "G":
			if len(m.runs) > 0 {
				m.selectedRun = len(m.runs) - 1
			}
		case "enter":
			if len(m.runs) > 0 {
				m.showDetail = !m.showDetail
			}
		case "esc":
			m.showDetail = false
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.refresh()
		return m, tickCmd()
	}

	return m, nil
}
