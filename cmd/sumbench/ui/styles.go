// Package ui provides the terminal surfaces of the benchmark CLI: the
// live run dashboard and the static tables printed by list and report.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorAccent  = lipgloss.Color("#8BC34A")
	ColorError   = lipgloss.Color("#e53935")
	ColorWarning = lipgloss.Color("#FFC107")
	ColorInfo    = lipgloss.Color("#2196F3")
	ColorMuted   = lipgloss.Color("#6c7a89")
)

// Styles holds the styled components shared by the dashboard and tables.
type Styles struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
}

// DefaultStyles returns the standard style set.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
		Bold:    lipgloss.NewStyle().Bold(true),
		Body:    lipgloss.NewStyle(),
		Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
		Success: lipgloss.NewStyle().Foreground(ColorAccent).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(ColorInfo),
	}
}

// RenderTable renders static rows under a bold header with a dash
// divider. Column widths are measured from the content.
func RenderTable(s Styles, headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return s.Muted.Render("(none)") + "\n"
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				if w := lipgloss.Width(cell); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}
	// Cell styles carry Padding(0, 1), which lipgloss counts into Width.
	for i := range widths {
		widths[i] += 2
	}

	headerStyle := s.Bold.Padding(0, 1)
	cellStyle := s.Body.Padding(0, 1)

	var sb strings.Builder
	for i, h := range headers {
		sb.WriteString(headerStyle.Width(widths[i]).Render(h))
	}
	sb.WriteString("\n")

	total := 0
	for _, w := range widths {
		total += w
	}
	sb.WriteString(s.Muted.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				sb.WriteString(cellStyle.Width(widths[i]).Render(cell))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
