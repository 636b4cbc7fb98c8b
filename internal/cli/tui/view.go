package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sections []string

	// Title bar
	sections = append(sections, m.renderTitleBar())

	// Error display
	if m.err != nil {
		sections = append(sections, errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	if m.status != nil && m.status.Resources != nil {
		sections = append(sections, m.renderResources())

		if len(m.status.Resources.Disks) > 0 {
			sections = append(sections, m.renderStorage())
		}
	}

	if len(m.models) > 0 {
		sections = append(sections, m.renderModels())
	}

	if m.calibration != nil && m.calibration.LedgerSize > 0 {
		sections = append(sections, m.renderCalibration())
	}

	if len(m.tests) > 0 {
		sections = append(sections, m.renderTests())
	}

	// Footer
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTitleBar() string {
	title := titleStyle.Render("QUORUM DASHBOARD")

	refreshInfo := fmt.Sprintf("↻ %s", m.config.RefreshInterval)
	if m.loading {
		refreshInfo = "↻ loading..."
	}

	help := helpStyle.Render("q:quit r:refresh ↑↓:scroll")

	// Calculate spacing
	rightPart := fmt.Sprintf("%s | %s", refreshInfo, help)
	spacing := m.width - lipgloss.Width(title) - lipgloss.Width(rightPart) - 2
	if spacing < 1 {
		spacing = 1
	}

	return fmt.Sprintf("%s%s%s", title, strings.Repeat(" ", spacing), helpStyle.Render(rightPart))
}

func (m Model) renderResources() string {
	res := m.status.Resources

	host := fmt.Sprintf("  %s    %s",
		m.renderProgressBar("Host CPU", res.Host.CPUPercent, 20),
		m.renderProgressBar("Host Mem", res.Host.MemoryPercent, 20))
	proc := fmt.Sprintf("  %s    %s",
		m.renderProgressBar("Proc CPU", res.Process.CPUPercent, 20),
		m.renderProgressBar("Proc Mem", res.Process.MemoryPercent, 20))

	return host + "\n" + proc
}

func (m Model) renderProgressBar(label string, percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	color := getProgressColor(percent)
	filledBar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	emptyBar := progressBarEmptyStyle.Render(strings.Repeat("░", width-filled))

	return fmt.Sprintf("%s [%s%s] %5.1f%%", labelStyle.Render(label), filledBar, emptyBar, percent)
}

func (m Model) renderStorage() string {
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render("  Storage"))

	for _, disk := range m.status.Resources.Disks {
		usedGB := float64(disk.UsedBytes) / 1024 / 1024 / 1024
		totalGB := float64(disk.TotalBytes) / 1024 / 1024 / 1024

		bar := m.renderProgressBar(fmt.Sprintf("%-8s", truncate(disk.Path, 8)), disk.UsagePercent, 20)
		info := fmt.Sprintf("(%.1f / %.1f GB)", usedGB, totalGB)

		lines = append(lines, fmt.Sprintf("  %s  %s", bar, valueStyle.Render(info)))
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderModels() string {
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render("  Predictors"))

	header := fmt.Sprintf("  %-20s │ %-14s │ %6s │ %8s │ %9s │ %7s │ %7s",
		"Predictor", "Type", "Weight", "Accuracy", "Latency", "Success", "Samples")
	lines = append(lines, tableHeaderStyle.Render(header))

	maxVisible := 8
	start := m.tableOffset
	if start >= len(m.models) {
		start = 0
	}
	end := start + maxVisible
	if end > len(m.models) {
		end = len(m.models)
	}

	for _, info := range m.models[start:end] {
		e := info.Entry
		name := truncate(e.PredictorID, 20)
		if !e.Enabled {
			name = truncate(e.PredictorID, 15) + " (off)"
		}

		accuracy, latency, success, samples := "-", "-", "-", "0"
		if p := info.Performance; p != nil {
			accuracy = formatAccuracy(p.EffectiveAccuracy())
			latency = fmt.Sprintf("%.1fms", p.LatencyMs)
			success = fmt.Sprintf("%.0f%%", p.SuccessRate*100)
			samples = formatNumber(int(p.SampleCount))
		}

		row := fmt.Sprintf("  %-20s │ %-14s │ %6.2f │ %8s │ %9s │ %7s │ %7s",
			name, truncate(e.Type(), 14), e.Weight, accuracy, latency, success, samples)
		lines = append(lines, tableCellStyle.Render(row))
	}

	if len(m.models) > maxVisible {
		scrollInfo := fmt.Sprintf("  [%d-%d of %d predictors]", start+1, end, len(m.models))
		lines = append(lines, helpStyle.Render(scrollInfo))
	}

	return strings.Join(lines, "\n")
}

// formatAccuracy pads before styling so the table columns line up.
func formatAccuracy(a float64) string {
	text := fmt.Sprintf("%8.3f", a)
	if a >= 0.5 {
		return goodStyle.Render(text)
	}
	return badStyle.Render(text)
}

func (m Model) renderCalibration() string {
	c := m.calibration.Calibration
	return fmt.Sprintf("%s\n  %s %s   %s %s   %s %s   %s %s",
		sectionHeaderStyle.Render("  Calibration"),
		labelStyle.Render("error"), valueStyle.Render(fmt.Sprintf("%.3f", c.Error)),
		labelStyle.Render("over"), valueStyle.Render(fmt.Sprintf("%.0f%%", c.OverconfidenceRate*100)),
		labelStyle.Render("under"), valueStyle.Render(fmt.Sprintf("%.0f%%", c.UnderconfidenceRate*100)),
		labelStyle.Render("sharpness"), valueStyle.Render(fmt.Sprintf("%.3f", c.Sharpness)),
	)
}

func (m Model) renderTests() string {
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render("  Active Tests"))

	for _, tv := range m.tests {
		line := fmt.Sprintf("  %-24s", truncate(tv.Test.ID, 24))

		if a := tv.Analysis; a != nil {
			var parts []string
			for _, v := range a.Variants {
				id := v.VariantID
				if v.IsControl {
					id += "*"
				}
				parts = append(parts, fmt.Sprintf("%s %.1f%% (n=%d)", id, v.ConversionRate*100, v.SampleSize))
			}
			line += " " + valueStyle.Render(strings.Join(parts, "  "))

			if a.Winner != "" {
				line += "  " + goodStyle.Render("winner: "+a.Winner)
			}
		} else {
			line += " " + helpStyle.Render("analysis unavailable")
		}

		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	if m.status == nil {
		return ""
	}

	goroutines := 0
	if m.status.Resources != nil {
		goroutines = m.status.Resources.Process.Goroutines
	}
	updated := m.lastUpdated.Format("15:04:05")

	return helpStyle.Render(fmt.Sprintf(
		"  %s │ Pending: %s │ Tests: %d │ Goroutines: %s │ Updated: %s",
		m.status.Version,
		formatNumber(m.status.Pending),
		m.status.ActiveTests,
		formatNumber(goroutines),
		updated,
	))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func formatNumber(n int) string {
	if n >= 1000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d", n)
}
