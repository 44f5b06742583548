// Package tui renders a live terminal dashboard of a running engine.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hasangilak/taskengine/internal/engine"
	"github.com/hasangilak/taskengine/internal/events"
	"github.com/hasangilak/taskengine/internal/scheduler"
)

const statsInterval = 250 * time.Millisecond

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneStats
	paneCount
)

// StatsSource is polled for counts the event stream does not carry.
type StatsSource interface {
	GetStats() engine.Stats
	GetWorkerStats() []scheduler.WorkerInfo
}

// busClosedMsg is delivered once the event bus has been closed.
type busClosedMsg struct{}

// statsTickMsg triggers the next stats poll.
type statsTickMsg struct{}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane    TaskPaneModel
	statsPane   StatsPaneModel
	focusedPane PaneID
	eventSub    <-chan events.Event
	source      StatsSource
	width       int
	height      int
	quitting    bool
}

// New creates a new TUI model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(eventBus *events.EventBus, source StatsSource) Model {
	m := Model{
		taskPane:    NewTaskPaneModel(),
		statsPane:   NewStatsPaneModel(),
		focusedPane: PaneTasks,
		eventSub:    eventBus.SubscribeAll(256),
		source:      source,
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.eventSub), pollStats(m.source))
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return busClosedMsg{}
		}
		return event
	}
}

// pollStats returns a command that snapshots the engine counters.
func pollStats(source StatsSource) tea.Cmd {
	if source == nil {
		return nil
	}
	return func() tea.Msg {
		return statsMsg{stats: source.GetStats(), workers: source.GetWorkerStats()}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneStats
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case tickMsg:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)

	case statsMsg:
		m.statsPane, _ = m.statsPane.Update(msg)
		if !m.statsPane.stopped {
			cmds = append(cmds, tea.Tick(statsInterval, func(time.Time) tea.Msg { return statsTickMsg{} }))
		}

	case statsTickMsg:
		cmds = append(cmds, pollStats(m.source))

	case busClosedMsg:
		// Final snapshot; the engine is stopped so the counts no longer change
		m.statsPane, _ = m.statsPane.Update(msg)
		cmds = append(cmds, pollStats(m.source))

	case events.Event:
		// Forward events to the task pane, then wait for the next one
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.statsPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, mainContent, HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 65) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // reserve 1 line for help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.statsPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.statsPane.SetFocused(m.focusedPane == PaneStats)
}
