package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sumbench/internal/pipeline"
	"sumbench/internal/types"
)

// ProgressMsg delivers one orchestrator progress event to the dashboard.
type ProgressMsg pipeline.ProgressEvent

// DoneMsg reports the run finishing. Err carries the failure or pause
// cause; nil means the run completed.
type DoneMsg struct {
	Err error
}

type phaseState struct {
	completed int
	total     int
	message   string
}

// Dashboard is the live run view: one line per phase with the active
// phase carrying a progress bar. Quitting the view cancels the run,
// which pauses it.
type Dashboard struct {
	runID    string
	name     string
	states   map[types.Phase]*phaseState
	current  types.Phase
	bar      progress.Model
	styles   Styles
	width    int
	err      error
	finished bool
}

// NewDashboard builds the dashboard for one run.
func NewDashboard(runID, name string) *Dashboard {
	return &Dashboard{
		runID:  runID,
		name:   name,
		states: make(map[types.Phase]*phaseState),
		bar:    progress.New(progress.WithDefaultGradient()),
		styles: DefaultStyles(),
		width:  80,
	}
}

func (d *Dashboard) Init() tea.Cmd {
	return nil
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		w := msg.Width - 10
		if w < 10 {
			w = 10
		}
		d.bar.Width = w
		return d, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return d, tea.Quit
		}
		return d, nil

	case ProgressMsg:
		st := d.states[msg.Phase]
		if st == nil {
			st = &phaseState{}
			d.states[msg.Phase] = st
		}
		st.completed = msg.Completed
		st.total = msg.Total
		st.message = msg.Message
		d.current = msg.Phase
		return d, nil

	case DoneMsg:
		d.finished = true
		d.err = msg.Err
		return d, tea.Quit
	}
	return d, nil
}

func (d *Dashboard) View() string {
	var sb strings.Builder

	title := d.styles.Title.Render(fmt.Sprintf(" %s ", d.name))
	id := d.styles.Muted.Render(d.runID)
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", id))
	sb.WriteString("\n\n")

	for _, phase := range types.PhaseOrder() {
		st := d.states[phase]
		icon, style := d.phaseLine(phase, st)
		line := fmt.Sprintf(" %s %-24s", icon, phase)
		if st != nil && st.total > 0 {
			line += fmt.Sprintf(" %d/%d", st.completed, st.total)
		}
		sb.WriteString(style.Render(line))
		sb.WriteString("\n")

		if phase == d.current && !d.finished && st != nil && st.total > 0 {
			sb.WriteString("   " + d.bar.ViewAs(float64(st.completed)/float64(st.total)) + "\n")
			if st.message != "" {
				sb.WriteString("   " + d.styles.Muted.Render(truncate(st.message, d.width-4)) + "\n")
			}
		}
	}

	sb.WriteString("\n")
	switch {
	case d.finished && d.err == nil:
		sb.WriteString(d.styles.Success.Render(" Run complete. Press q to exit. "))
	case d.finished:
		sb.WriteString(d.styles.Error.Render(fmt.Sprintf(" Run stopped: %v ", d.err)))
	default:
		sb.WriteString(d.styles.Muted.Render(" q pauses the run and exits "))
	}
	sb.WriteString("\n")

	return sb.String()
}

func (d *Dashboard) phaseLine(phase types.Phase, st *phaseState) (string, lipgloss.Style) {
	switch {
	case st == nil && d.current != "" && phase.Index() < d.current.Index():
		// Completed in an earlier session; this run never reported it.
		return "✓", d.styles.Muted
	case st == nil:
		return "○", d.styles.Muted
	case phase == d.current && !d.finished:
		return "▶", d.styles.Info
	case st.total == 0 || st.completed >= st.total:
		return "✓", d.styles.Success
	default:
		return "▶", d.styles.Info
	}
}

func truncate(s string, max int) string {
	if max < 4 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
