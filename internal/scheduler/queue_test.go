package scheduler

import (
	"testing"
	"time"
)

func ids(tasks []*Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestTaskQueueOrder checks the total order used for dispatch.
func TestTaskQueueOrder(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		tasks []*Task
		want  []string
	}{
		{
			name: "higher priority first",
			tasks: []*Task{
				{ID: "lo", Priority: 1, CreatedAt: now},
				{ID: "hi", Priority: 5, CreatedAt: now.Add(time.Second)},
			},
			want: []string{"hi", "lo"},
		},
		{
			name: "equal priority keeps creation order",
			tasks: []*Task{
				{ID: "second", CreatedAt: now.Add(time.Second)},
				{ID: "first", CreatedAt: now},
				{ID: "third", CreatedAt: now.Add(2 * time.Second)},
			},
			want: []string{"first", "second", "third"},
		},
		{
			name: "due before unscheduled before future",
			tasks: []*Task{
				{ID: "future", CreatedAt: now.Add(-3 * time.Second), ScheduledAt: now.Add(time.Minute)},
				{ID: "unscheduled", CreatedAt: now.Add(-2 * time.Second)},
				{ID: "due", CreatedAt: now.Add(-1 * time.Second), ScheduledAt: now.Add(-time.Second)},
			},
			want: []string{"due", "unscheduled", "future"},
		},
		{
			name: "earlier schedule first among scheduled",
			tasks: []*Task{
				{ID: "later", CreatedAt: now, ScheduledAt: now.Add(2 * time.Minute)},
				{ID: "sooner", CreatedAt: now, ScheduledAt: now.Add(time.Minute)},
			},
			want: []string{"sooner", "later"},
		},
		{
			name: "priority beats schedule",
			tasks: []*Task{
				{ID: "due-low", Priority: 0, CreatedAt: now, ScheduledAt: now.Add(-time.Hour)},
				{ID: "future-high", Priority: 9, CreatedAt: now, ScheduledAt: now.Add(time.Hour)},
			},
			want: []string{"future-high", "due-low"},
		},
		{
			name: "identical keys keep insertion order",
			tasks: []*Task{
				{ID: "a", CreatedAt: now},
				{ID: "b", CreatedAt: now},
				{ID: "c", CreatedAt: now},
			},
			want: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewTaskQueue()
			for _, task := range tt.tasks {
				q.Push(task, now)
			}

			if got := ids(q.Snapshot()); !equalIDs(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestTaskQueueNext verifies skipping without removal.
func TestTaskQueueNext(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	q := NewTaskQueue()
	q.Push(&Task{ID: "future", Priority: 9, CreatedAt: now, ScheduledAt: now.Add(time.Minute)}, now)
	q.Push(&Task{ID: "blocked", Priority: 5, CreatedAt: now, Dependencies: []string{"x"}}, now)
	q.Push(&Task{ID: "ready", Priority: 1, CreatedAt: now}, now)

	depsDone := func(task *Task) bool { return len(task.Dependencies) == 0 }

	got := q.Next(now, depsDone)
	if got == nil || got.ID != "ready" {
		t.Fatalf("Next() = %v, want ready", got)
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d after Next, want 2", q.Len())
	}

	if got := q.Next(now, depsDone); got != nil {
		t.Errorf("Next() = %q, want nil while everything is skipped", got.ID)
	}
	if !equalIDs(ids(q.Snapshot()), []string{"future", "blocked"}) {
		t.Errorf("skipped tasks moved: %v", ids(q.Snapshot()))
	}

	// Time passes: the scheduled task becomes due and outranks the blocked one
	later := now.Add(2 * time.Minute)
	if got := q.Next(later, depsDone); got == nil || got.ID != "future" {
		t.Fatalf("Next(later) = %v, want future", got)
	}

	// Dependency satisfied
	if got := q.Next(later, nil); got == nil || got.ID != "blocked" {
		t.Fatalf("Next(later, nil) = %v, want blocked", got)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestTaskQueueRemoveAndDrain(t *testing.T) {
	now := time.Now()
	q := NewTaskQueue()
	q.Push(&Task{ID: "a", CreatedAt: now}, now)
	q.Push(&Task{ID: "b", CreatedAt: now}, now)
	q.Push(&Task{ID: "c", CreatedAt: now}, now)

	if _, ok := q.Remove("b"); !ok {
		t.Fatal("Remove(b) reported missing")
	}
	if _, ok := q.Remove("b"); ok {
		t.Error("second Remove(b) reported success")
	}
	if _, ok := q.Get("a"); !ok {
		t.Error("Get(a) missing")
	}

	drained := q.Drain()
	if !equalIDs(ids(drained), []string{"a", "c"}) {
		t.Errorf("Drain() = %v, want [a c]", ids(drained))
	}
	if q.Len() != 0 {
		t.Errorf("Len() after Drain = %d", q.Len())
	}
}

func TestNewTaskOptions(t *testing.T) {
	now := time.Now()

	task := NewTask("id-1", "echo", "payload", ApplyTaskOptions(
		WithPriority(3),
		WithDelay(time.Second),
		WithScheduledAt(now.Add(time.Hour)),
		WithDependencies("b", "a", "b"),
		WithTags("x"),
	), 4, now)

	if task.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want default 4", task.MaxRetries)
	}
	if !task.ScheduledAt.Equal(now.Add(time.Second)) {
		t.Errorf("ScheduledAt = %v, delay should win", task.ScheduledAt)
	}
	if !equalIDs(task.Dependencies, []string{"a", "b"}) {
		t.Errorf("Dependencies = %v, want deduplicated [a b]", task.Dependencies)
	}
	if !task.HasTag("x") || task.HasTag("y") {
		t.Errorf("Tags = %v", task.Tags)
	}

	noRetry := NewTask("id-2", "echo", nil, ApplyTaskOptions(WithMaxRetries(0)), 4, now)
	if noRetry.MaxRetries != 0 {
		t.Errorf("explicit MaxRetries(0) = %d, want 0", noRetry.MaxRetries)
	}
	if !noRetry.ScheduledAt.IsZero() {
		t.Errorf("ScheduledAt = %v, want zero", noRetry.ScheduledAt)
	}
}
