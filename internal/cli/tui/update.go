package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) Init() tea.Cmd {
	return m.refresh(true)
}

// refresh fetches everything, and schedules the next tick when scheduled is set.
func (m Model) refresh(scheduled bool) tea.Cmd {
	if !scheduled {
		return fetchAll(m.config)
	}
	return tea.Batch(fetchAll(m.config), tick(m.config.RefreshInterval))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tickMsg:
		m.loading = true
		return m, m.refresh(true)

	case statusMsg:
		// the status call decides whether the server is reachable at all
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.data
			m.lastUpdated = time.Now()
		}

	case modelsMsg:
		if m.keepError(msg.err) {
			break
		}
		m.models = msg.data
		if m.tableOffset >= len(m.models) {
			m.tableOffset = 0
		}

	case calibrationMsg:
		if !m.keepError(msg.err) {
			m.calibration = msg.data
		}

	case testsMsg:
		if !m.keepError(msg.err) {
			m.tests = msg.data
		}
	}

	return m, nil
}

// keepError records err unless a status error is already shown. It reports
// whether err was non-nil.
func (m *Model) keepError(err error) bool {
	if err == nil {
		return false
	}
	if m.err == nil {
		m.err = err
	}
	return true
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.loading = true
		return m, m.refresh(false)
	case "up", "k":
		m.tableOffset = max(m.tableOffset-1, 0)
	case "down", "j":
		m.tableOffset = max(min(m.tableOffset+1, len(m.models)-1), 0)
	}
	return m, nil
}
