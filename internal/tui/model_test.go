package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hasangilak/taskengine/internal/engine"
	"github.com/hasangilak/taskengine/internal/events"
	"github.com/hasangilak/taskengine/internal/scheduler"
)

type fakeSource struct {
	stats   engine.Stats
	workers []scheduler.WorkerInfo
}

func (f fakeSource) GetStats() engine.Stats                 { return f.stats }
func (f fakeSource) GetWorkerStats() []scheduler.WorkerInfo { return f.workers }

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func sized(t *testing.T, m Model) Model {
	return update(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})
}

func TestTaskLifecycleEvents(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	m := sized(t, New(bus, nil))

	now := time.Now()
	m = update(t, m, events.TaskAddedEvent{ID: "job-1", Type: "resize", Timestamp: now})
	m = update(t, m, events.TaskAddedEvent{ID: "job-2", Type: "email", ScheduledAt: now.Add(time.Hour), Timestamp: now})

	if got := m.taskPane.tasks["job-2"].Status; got != scheduler.TaskScheduled {
		t.Errorf("expected delayed task to be scheduled, got %s", got)
	}

	m = update(t, m, events.TaskStartedEvent{ID: "job-1", Type: "resize", WorkerID: 2, Attempt: 1, Timestamp: now})
	m = update(t, m, events.TaskProgressEvent{ID: "job-1", WorkerID: 2, Progress: "50%", Timestamp: now})
	m = update(t, m, events.TaskCompletedEvent{Result: scheduler.TaskResult{TaskID: "job-1", Success: true, Duration: time.Second}, Timestamp: now})

	state, ok := m.taskPane.Selected()
	if !ok {
		t.Fatal("expected a selected task")
	}
	if state.ID != "job-1" {
		t.Errorf("expected follow mode to select the started task, got %s", state.ID)
	}
	if state.Status != scheduler.TaskCompleted || state.WorkerID != 2 {
		t.Errorf("unexpected state: %+v", state)
	}
	if len(state.Output) != 4 || state.Output[2] != "50%" {
		t.Errorf("unexpected log: %q", state.Output)
	}

	m = update(t, m, events.TaskRetryEvent{ID: "job-2", Kind: scheduler.KindTimeout, Err: "slow", Retries: 1, MaxRetries: 3, NextAttemptAt: now})
	m = update(t, m, events.TaskFailedEvent{Result: scheduler.TaskResult{TaskID: "job-2", Error: "slow", ErrorKind: scheduler.KindTimeout}, Timestamp: now})
	if got := m.taskPane.tasks["job-2"].Status; got != scheduler.TaskFailed {
		t.Errorf("expected failed status, got %s", got)
	}

	// Events for unknown tasks are ignored
	m = update(t, m, events.TaskCancelledEvent{ID: "ghost", Timestamp: now})
	if _, ok := m.taskPane.tasks["ghost"]; ok {
		t.Error("expected unknown task to be ignored")
	}

	view := m.View()
	for _, want := range []string{"Tasks", "resize job-1", "email job-2", "Engine"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestKeyNavigation(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	m := sized(t, New(bus, nil))

	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		m = update(t, m, events.TaskAddedEvent{ID: id, Type: "echo", Timestamp: now})
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if state, _ := m.taskPane.Selected(); state.ID != "c" {
		t.Errorf("expected c selected, got %s", state.ID)
	}
	if m.taskPane.follow {
		t.Error("manual selection should stop following")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	if state, _ := m.taskPane.Selected(); state.ID != "b" {
		t.Errorf("expected b selected, got %s", state.ID)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPane != PaneStats {
		t.Errorf("expected stats pane focused, got %d", m.focusedPane)
	}

	// Keys do not reach an unfocused task pane
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	if state, _ := m.taskPane.Selected(); state.ID != "b" {
		t.Errorf("expected selection unchanged, got %s", state.ID)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.focusedPane != PaneTasks {
		t.Errorf("expected task pane focused, got %d", m.focusedPane)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if next.(Model).View() != "Goodbye!\n" {
		t.Error("expected goodbye view")
	}
}

func TestStatsPolling(t *testing.T) {
	bus := events.NewEventBus()
	source := fakeSource{
		stats: engine.Stats{Completed: 3, Failed: 1, Running: 1, TotalWorkers: 2, ActiveWorkers: 1, QueueCapacity: 10},
		workers: []scheduler.WorkerInfo{
			{ID: 1, Busy: true, CurrentTask: "job-9"},
			{ID: 2},
		},
	}
	m := sized(t, New(bus, source))

	msg := pollStats(source)()
	m = update(t, m, msg)

	view := m.statsPane.View()
	for _, want := range []string{"Completed: ", "Workers 1/2 busy", "job-9", "idle", "4/5"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected stats view to contain %q\n%s", want, view)
		}
	}

	bus.Close()
	closed := waitForEvent(m.eventSub)()
	if _, ok := closed.(busClosedMsg); !ok {
		t.Fatalf("expected busClosedMsg, got %T", closed)
	}
	m = update(t, m, closed)
	if !m.statsPane.stopped {
		t.Error("expected stats pane to show stopped")
	}
}

func TestShortID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0b8f5a8e-1d3c-4c47-9a53-3c1f0f7e2b11", "0b8f5a8e"},
		{"build-frontend", "build-frontend"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := shortID(tt.in); got != tt.want {
			t.Errorf("shortID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
