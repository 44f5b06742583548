package worker

import (
	"time"

	"github.com/hasangilak/taskengine/internal/scheduler"
)

// Message is an instruction sent to a worker's inbox.
type Message interface {
	isMessage()
}

// Execute asks a free worker to run one attempt of a task.
type Execute struct {
	TaskID  string
	Type    string
	Payload any
	Timeout time.Duration // Zero means no deadline
	Attempt int
}

// Cancel asks a worker to abandon the task it is running. Best effort.
type Cancel struct {
	TaskID string
}

func (Execute) isMessage() {}
func (Cancel) isMessage()  {}

// Report is something a worker tells the engine.
type Report interface {
	Worker() int
}

// Completed reports a successful attempt.
type Completed struct {
	WorkerID int
	TaskID   string
	Result   any
	Duration time.Duration
}

// Failed reports a failed attempt: handler error, timeout or missing processor.
type Failed struct {
	WorkerID int
	TaskID   string
	Err      error
	Kind     scheduler.ErrorKind
	Duration time.Duration
}

// Progress relays an intermediate value from a running handler.
type Progress struct {
	WorkerID int
	TaskID   string
	Progress any
}

// Exited reports that a worker goroutine died outside of a pool shutdown.
// TaskID is the task it was running, if any.
type Exited struct {
	WorkerID int
	TaskID   string
	Err      error
}

func (r Completed) Worker() int { return r.WorkerID }
func (r Failed) Worker() int    { return r.WorkerID }
func (r Progress) Worker() int  { return r.WorkerID }
func (r Exited) Worker() int    { return r.WorkerID }
