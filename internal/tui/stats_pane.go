package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hasangilak/taskengine/internal/engine"
	"github.com/hasangilak/taskengine/internal/scheduler"
)

// statsMsg carries a fresh snapshot polled from the engine.
type statsMsg struct {
	stats   engine.Stats
	workers []scheduler.WorkerInfo
}

// StatsPaneModel shows queue and worker counts.
type StatsPaneModel struct {
	stats   engine.Stats
	workers []scheduler.WorkerInfo
	stopped bool
	width   int
	height  int
	focused bool
}

// NewStatsPaneModel creates a new stats pane model.
func NewStatsPaneModel() StatsPaneModel {
	return StatsPaneModel{}
}

// Update handles messages for the stats pane.
func (m StatsPaneModel) Update(msg tea.Msg) (StatsPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case statsMsg:
		m.stats = msg.stats
		m.workers = msg.workers
	case busClosedMsg:
		m.stopped = true
	}
	return m, nil
}

// View renders the stats pane.
func (m StatsPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	s := m.stats

	title := StyleTitle.Render("Engine")
	if m.stopped {
		title += StyleStatusFailed.Render(" stopped")
	}
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	total := s.Pending + s.Scheduled + s.Running + s.Completed + s.Failed
	fmt.Fprintf(&b, "Total:     %d\n", total)
	fmt.Fprintf(&b, "Completed: %s\n", StyleStatusComplete.Render(fmt.Sprint(s.Completed)))
	fmt.Fprintf(&b, "Running:   %s\n", StyleStatusRunning.Render(fmt.Sprint(s.Running)))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprint(s.Failed)))
	fmt.Fprintf(&b, "Pending:   %s\n", StyleStatusPending.Render(fmt.Sprint(s.Pending)))
	fmt.Fprintf(&b, "Scheduled: %s\n", StyleStatusRetry.Render(fmt.Sprint(s.Scheduled)))
	fmt.Fprintf(&b, "Queue:     %d/%d\n", s.QueueLength, s.QueueCapacity)
	fmt.Fprintf(&b, "Avg time:  %s\n", s.AverageProcessingTime.Round(time.Millisecond))
	if s.EventsDropped > 0 {
		fmt.Fprintf(&b, "Dropped:   %s\n", StyleStatusFailed.Render(fmt.Sprint(s.EventsDropped)))
	}
	b.WriteString("\n")

	// Progress bar
	if total > 0 {
		barWidth := min(m.width-12, 40)
		completedWidth := (s.Completed * barWidth) / total
		failedWidth := (s.Failed * barWidth) / total
		runningWidth := (s.Running * barWidth) / total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		fmt.Fprintf(&b, "[%s]  %d/%d\n\n", bar, s.Completed+s.Failed, total)
	}

	fmt.Fprintf(&b, "Workers %d/%d busy\n", s.ActiveWorkers, s.TotalWorkers)
	for _, w := range m.workers {
		state := StyleStatusPending.Render("idle")
		if w.Busy {
			state = StyleStatusRunning.Render(shortID(w.CurrentTask))
		}
		fmt.Fprintf(&b, "  #%-3d %s  ok:%d err:%d\n", w.ID, state, w.Completed, w.Errored)
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *StatsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *StatsPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
