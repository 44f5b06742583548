package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hasangilak/taskengine/internal/events"
	"github.com/hasangilak/taskengine/internal/scheduler"
)

const (
	listWidth      = 30
	maxOutputLines = 500
)

// TaskState is the dashboard's view of one task, built from events.
type TaskState struct {
	ID        string
	Type      string
	Status    scheduler.TaskStatus
	WorkerID  int
	Attempt   int
	Output    []string
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel represents the task list and log viewport pane.
type TaskPaneModel struct {
	tasks       map[string]*TaskState // taskID -> state
	taskOrder   []string              // insertion order for display
	selectedIdx int                   // which task is selected in list
	follow      bool                  // select each newly started task
	viewport    viewport.Model        // scrollable task log
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		follow:   true,
		viewport: viewport.New(0, 0),
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.follow = false
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.follow = false
				m.updateViewportContent()
			}
		case KeyFollow:
			m.follow = !m.follow
		default:
			// Delegate other keys to viewport for scrolling
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskAddedEvent:
		state := m.track(msg.ID, msg.Type)
		state.Status = scheduler.TaskPending
		if msg.ScheduledAt.After(msg.Timestamp) {
			state.Status = scheduler.TaskScheduled
		}
		state.log("added (priority %d)", msg.Priority)

	case events.TaskStartedEvent:
		state := m.track(msg.ID, msg.Type)
		state.Status = scheduler.TaskRunning
		state.WorkerID = msg.WorkerID
		state.Attempt = msg.Attempt
		state.StartTime = msg.Timestamp
		state.log("attempt %d started on worker %d", msg.Attempt, msg.WorkerID)
		if m.follow {
			m.selectTask(msg.ID)
		}
		return m.refresh(msg.ID)

	case events.TaskProgressEvent:
		if state, ok := m.tasks[msg.ID]; ok {
			state.log("%v", msg.Progress)
			return m.refresh(msg.ID)
		}

	case events.TaskRetryEvent:
		if state, ok := m.tasks[msg.ID]; ok {
			state.Status = scheduler.TaskScheduled
			state.log("[%s] %s, retry %d/%d at %s", msg.Kind, msg.Err, msg.Retries, msg.MaxRetries, msg.NextAttemptAt.Format(time.TimeOnly))
			return m.refresh(msg.ID)
		}

	case events.TaskCompletedEvent:
		if state, ok := m.tasks[msg.Result.TaskID]; ok {
			state.Status = scheduler.TaskCompleted
			state.Duration = msg.Result.Duration
			state.log("[completed in %v] %v", msg.Result.Duration, msg.Result.Result)
			return m.refresh(msg.Result.TaskID)
		}

	case events.TaskFailedEvent:
		if state, ok := m.tasks[msg.Result.TaskID]; ok {
			state.Status = scheduler.TaskFailed
			state.Duration = msg.Result.Duration
			state.log("[failed: %s] %s", msg.Result.ErrorKind, msg.Result.Error)
			return m.refresh(msg.Result.TaskID)
		}

	case events.TaskCancelledEvent:
		if state, ok := m.tasks[msg.ID]; ok {
			state.Status = scheduler.TaskCancelled
			state.log("[cancelled: %s]", msg.Reason)
			return m.refresh(msg.ID)
		}

	case tickMsg:
		// Only update if this tick matches the current tag (debouncing)
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// track returns the state for a task, creating it on first sight.
func (m *TaskPaneModel) track(id, typ string) *TaskState {
	if state, ok := m.tasks[id]; ok {
		return state
	}
	state := &TaskState{ID: id, Type: typ, Status: scheduler.TaskPending}
	m.tasks[id] = state
	m.taskOrder = append(m.taskOrder, id)
	if len(m.taskOrder) == 1 {
		m.selectedIdx = 0
		m.updateViewportContent()
	}
	return state
}

func (s *TaskState) log(format string, args ...any) {
	s.Output = append(s.Output, fmt.Sprintf(format, args...))
	if len(s.Output) > maxOutputLines {
		s.Output = s.Output[len(s.Output)-maxOutputLines:]
	}
}

// refresh schedules a debounced viewport update when taskID is selected.
func (m TaskPaneModel) refresh(taskID string) (TaskPaneModel, tea.Cmd) {
	if m.getSelectedTaskID() != taskID {
		return m, nil
	}
	m.updateTag++
	tag := m.updateTag
	return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{tag: tag}
	})
}

func (m *TaskPaneModel) selectTask(id string) {
	for i, taskID := range m.taskOrder {
		if taskID == id {
			m.selectedIdx = i
			m.updateViewportContent()
			return
		}
	}
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - listWidth - 4 // account for borders and padding

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// renderTaskList renders the task list column, scrolled to keep the selection visible.
func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	if m.follow {
		title += StyleHelp.Render(" (following)")
	}
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	} else {
		rows := max(m.height-6, 1)
		first := max(0, m.selectedIdx-rows+1)
		last := min(len(m.taskOrder), first+rows)

		for i := first; i < last; i++ {
			task := m.tasks[m.taskOrder[i]]
			label := fmt.Sprintf("%s %s", task.Type, shortID(task.ID))
			if len(label) > width-4 {
				label = label[:width-7] + "..."
			}

			line := fmt.Sprintf("%s %s", StatusIcon(task.Status), label)
			if i == m.selectedIdx {
				line = StyleSelected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// shortID trims generated UUIDs to their first block.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i == 8 && len(id) == 36 {
		return id[:8]
	}
	return id
}

// getSelectedTaskID returns the task ID of the currently selected task.
func (m TaskPaneModel) getSelectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// Selected returns the state of the selected task.
func (m TaskPaneModel) Selected() (TaskState, bool) {
	state, ok := m.tasks[m.getSelectedTaskID()]
	if !ok {
		return TaskState{}, false
	}
	return *state, true
}

// updateViewportContent updates the viewport with the selected task's log.
func (m *TaskPaneModel) updateViewportContent() {
	taskID := m.getSelectedTaskID()
	state, exists := m.tasks[taskID]
	if !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	header := fmt.Sprintf("%s  %s  %s\n", StatusIcon(state.Status), state.Type, state.ID)
	m.viewport.SetContent(header + strings.Join(state.Output, "\n"))
	// Auto-scroll to bottom
	m.viewport.GotoBottom()
}

// resizeViewport resizes the viewport based on pane dimensions.
func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5) // account for borders
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
