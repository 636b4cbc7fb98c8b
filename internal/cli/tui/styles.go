package tui

import "github.com/charmbracelet/lipgloss"

// 256-color palette
const (
	cyan   = lipgloss.Color("86")
	gray   = lipgloss.Color("240")
	silver = lipgloss.Color("245")
	white  = lipgloss.Color("252")
	green  = lipgloss.Color("82")
	orange = lipgloss.Color("214")
	red    = lipgloss.Color("196")
)

var (
	titleStyle         = lipgloss.NewStyle().Bold(true).Foreground(cyan)
	sectionHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(cyan)
	helpStyle          = lipgloss.NewStyle().Foreground(silver)
	labelStyle         = lipgloss.NewStyle().Foreground(silver)
	valueStyle         = lipgloss.NewStyle().Foreground(white)
	errorStyle         = lipgloss.NewStyle().Bold(true).Foreground(red)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(cyan).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(gray)
	tableCellStyle = valueStyle

	progressBarEmptyStyle = lipgloss.NewStyle().Foreground(gray)

	// accuracy above chance, winners
	goodStyle = lipgloss.NewStyle().Foreground(green)
	badStyle  = lipgloss.NewStyle().Foreground(orange)
)

// getProgressColor colors a usage bar by how close it is to saturation.
func getProgressColor(percent float64) lipgloss.Color {
	if percent >= 90 {
		return red
	}
	if percent >= 70 {
		return orange
	}
	return green
}
