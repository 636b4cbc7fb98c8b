package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run blocks until the dashboard is closed.
func Run(cfg Config) error {
	p := tea.NewProgram(NewModel(cfg), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
