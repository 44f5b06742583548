package scheduler

import (
	"context"
	"slices"
	"time"
)

// TaskStatus represents where a task currently lives.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"   // Queued, ready or waiting on dependencies
	TaskScheduled TaskStatus = "scheduled" // Queued with a future ScheduledAt
	TaskRunning   TaskStatus = "running"   // Dispatched to a worker
	TaskCompleted TaskStatus = "completed" // Terminal, succeeded
	TaskFailed    TaskStatus = "failed"    // Terminal, retries exhausted
	TaskCancelled TaskStatus = "cancelled" // Removed by the caller; never has a result
)

// IsTerminal reports whether the status has a stored TaskResult.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task represents a unit of work submitted to the engine.
type Task struct {
	ID           string
	Type         string // Key into the processor registry
	Payload      any    // Opaque to the engine; treat as immutable once submitted
	Priority     int    // Higher dispatches first
	Retries      int    // Retries consumed so far
	MaxRetries   int
	Timeout      time.Duration // Zero means processor or engine default
	CreatedAt    time.Time
	ScheduledAt  time.Time // Zero means ready immediately
	StartedAt    time.Time
	CompletedAt  time.Time
	Dependencies []string // Task IDs that must have succeeded first
	Tags         []string
	LastError    string

	seq uint64 // insertion order, final tiebreak in the queue
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// IsDue reports whether the task's scheduled time has been reached.
func (t *Task) IsDue(now time.Time) bool {
	return t.ScheduledAt.IsZero() || !t.ScheduledAt.After(now)
}

// Clone returns a copy that shares no slices with the original.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	cp := *t
	if t.Dependencies != nil {
		cp.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.Tags != nil {
		cp.Tags = append([]string(nil), t.Tags...)
	}
	return &cp
}

// TaskResult is the terminal record of a finished task. Never mutated after it is stored.
type TaskResult struct {
	TaskID      string
	Type        string
	Success     bool
	Result      any
	Error       string
	ErrorKind   ErrorKind
	Duration    time.Duration
	WorkerID    int
	Retries     int
	CompletedAt time.Time
	Tags        []string
}

// WorkerInfo is the bookkeeping entry for one pool slot.
type WorkerInfo struct {
	ID           int
	Busy         bool
	CurrentTask  string
	Completed    int
	Errored      int
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// TaskInfo is a read-only view of a task returned by engine queries.
type TaskInfo struct {
	Status TaskStatus
	Task   *Task       // Nil for tasks known only through their result
	Result *TaskResult // Set for terminal statuses
}

// Execution is what a handler receives when a worker runs a task.
type Execution struct {
	TaskID   string
	Type     string
	Payload  any
	Attempt  int // 1-based
	WorkerID int

	progress func(any)
}

// NewExecution builds an Execution whose Progress calls report.
func NewExecution(taskID, typ string, payload any, attempt, workerID int, report func(any)) Execution {
	return Execution{
		TaskID:   taskID,
		Type:     typ,
		Payload:  payload,
		Attempt:  attempt,
		WorkerID: workerID,
		progress: report,
	}
}

// Progress publishes an intermediate progress value for the running task.
func (e Execution) Progress(v any) {
	if e.progress != nil {
		e.progress(v)
	}
}

// Handler runs one task. It should return promptly once ctx is done.
type Handler func(ctx context.Context, exec Execution) (any, error)
