package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sumbench/internal/types"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	leaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true).Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7a89"))
)

// Leaderboard renders ranked scores as a terminal table. The top row is
// highlighted; missing categories render as "-".
func Leaderboard(scores []*types.NormalizedScores) string {
	ranked := Ranked(scores)
	if len(ranked) == 0 {
		return mutedStyle.Render("no scores to show") + "\n"
	}

	headers := []string{"Rank", "Model", "Overall", "Judge", "Contrastive", "Retrieval", "Iterative"}
	rows := make([][]string, 0, len(ranked))
	for i, s := range ranked {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			s.ModelID,
			num(s.Overall),
			combined(s.Judge != nil, func() float64 { return s.Judge.Combined }),
			combined(s.Contrastive != nil, func() float64 { return s.Contrastive.Combined }),
			combined(s.Retrieval != nil, func() float64 { return s.Retrieval.Combined }),
			combined(s.Iterative != nil, func() float64 { return s.Iterative.Combined }),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	// Padding(0, 1) widens each cell by two, so widths must account for it.
	for i := range widths {
		widths[i] += 2
	}

	var sb strings.Builder
	for i, h := range headers {
		sb.WriteString(headerStyle.Width(widths[i]).Render(h))
	}
	sb.WriteString("\n")

	total := 0
	for _, w := range widths {
		total += w
	}
	sb.WriteString(mutedStyle.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")

	for ri, row := range rows {
		style := cellStyle
		if ri == 0 {
			style = leaderStyle
		}
		for i, cell := range row {
			sb.WriteString(style.Width(widths[i]).Render(cell))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
