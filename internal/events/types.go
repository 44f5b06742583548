package events

import (
	"time"

	"github.com/hasangilak/taskengine/internal/scheduler"
)

// Event is the base interface for all engine events.
type Event interface {
	EventType() string
	Topic() string
	TaskID() string
}

// Topic constants
const (
	TopicTask      = "task"
	TopicWorker    = "worker"
	TopicProcessor = "processor"
)

// Event type constants
const (
	EventTypeTaskAdded             = "task:added"
	EventTypeTaskStarted           = "task:started"
	EventTypeTaskCompleted         = "task:completed"
	EventTypeTaskFailed            = "task:failed"
	EventTypeTaskRetry             = "task:retry"
	EventTypeTaskCancelled         = "task:cancelled"
	EventTypeTaskProgress          = "task:progress"
	EventTypeWorkerError           = "worker:error"
	EventTypeWorkerExit            = "worker:exit"
	EventTypeWorkerRestarted       = "worker:restarted"
	EventTypeProcessorRegistered   = "processor:registered"
	EventTypeProcessorUnregistered = "processor:unregistered"
	EventTypeProcessorStarted      = "processor:started"
	EventTypeProcessorStopped      = "processor:stopped"
)

// TaskAddedEvent is published when a task is accepted into the queue.
type TaskAddedEvent struct {
	ID          string
	Type        string
	Priority    int
	ScheduledAt time.Time
	Timestamp   time.Time
}

func (e TaskAddedEvent) EventType() string { return EventTypeTaskAdded }
func (e TaskAddedEvent) Topic() string     { return TopicTask }
func (e TaskAddedEvent) TaskID() string    { return e.ID }

// TaskStartedEvent is published when a task is dispatched to a worker.
type TaskStartedEvent struct {
	ID        string
	Type      string
	WorkerID  int
	Attempt   int
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) Topic() string     { return TopicTask }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent carries the stored result of a successful task.
type TaskCompletedEvent struct {
	Result    scheduler.TaskResult
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Topic() string     { return TopicTask }
func (e TaskCompletedEvent) TaskID() string    { return e.Result.TaskID }

// TaskFailedEvent carries the stored result of a task that failed terminally.
type TaskFailedEvent struct {
	Result    scheduler.TaskResult
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) Topic() string     { return TopicTask }
func (e TaskFailedEvent) TaskID() string    { return e.Result.TaskID }

// TaskRetryEvent is published when a failed attempt is re-queued.
type TaskRetryEvent struct {
	ID            string
	Type          string
	Retries       int
	MaxRetries    int
	Err           string
	Kind          scheduler.ErrorKind
	NextAttemptAt time.Time
	Timestamp     time.Time
}

func (e TaskRetryEvent) EventType() string { return EventTypeTaskRetry }
func (e TaskRetryEvent) Topic() string     { return TopicTask }
func (e TaskRetryEvent) TaskID() string    { return e.ID }

// TaskCancelledEvent is published when a queued or running task is dropped.
type TaskCancelledEvent struct {
	ID         string
	Type       string
	WasRunning bool
	Reason     string // "cancelled" or "shutdown"
	Timestamp  time.Time
}

func (e TaskCancelledEvent) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) Topic() string     { return TopicTask }
func (e TaskCancelledEvent) TaskID() string    { return e.ID }

// TaskProgressEvent relays a handler's intermediate progress value.
type TaskProgressEvent struct {
	ID        string
	WorkerID  int
	Progress  any
	Timestamp time.Time
}

func (e TaskProgressEvent) EventType() string { return EventTypeTaskProgress }
func (e TaskProgressEvent) Topic() string     { return TopicTask }
func (e TaskProgressEvent) TaskID() string    { return e.ID }

// WorkerErrorEvent is published when a worker dies with an error.
type WorkerErrorEvent struct {
	WorkerID  int
	Task      string // Task the worker was running, if any
	Err       string
	Timestamp time.Time
}

func (e WorkerErrorEvent) EventType() string { return EventTypeWorkerError }
func (e WorkerErrorEvent) Topic() string     { return TopicWorker }
func (e WorkerErrorEvent) TaskID() string    { return e.Task }

// WorkerExitEvent is published whenever a worker goroutine terminates unexpectedly.
type WorkerExitEvent struct {
	WorkerID  int
	Task      string
	Timestamp time.Time
}

func (e WorkerExitEvent) EventType() string { return EventTypeWorkerExit }
func (e WorkerExitEvent) Topic() string     { return TopicWorker }
func (e WorkerExitEvent) TaskID() string    { return e.Task }

// WorkerRestartedEvent is published when a replacement worker is spawned.
type WorkerRestartedEvent struct {
	WorkerID  int // The new worker
	Replaces  int // The worker that died
	Timestamp time.Time
}

func (e WorkerRestartedEvent) EventType() string { return EventTypeWorkerRestarted }
func (e WorkerRestartedEvent) Topic() string     { return TopicWorker }
func (e WorkerRestartedEvent) TaskID() string    { return "" }

// ProcessorRegisteredEvent is published when a handler is registered for a type.
type ProcessorRegisteredEvent struct {
	Type        string
	Concurrency int
	Timestamp   time.Time
}

func (e ProcessorRegisteredEvent) EventType() string { return EventTypeProcessorRegistered }
func (e ProcessorRegisteredEvent) Topic() string     { return TopicProcessor }
func (e ProcessorRegisteredEvent) TaskID() string    { return "" }

// ProcessorUnregisteredEvent is published when a type's handler is removed.
type ProcessorUnregisteredEvent struct {
	Type      string
	Timestamp time.Time
}

func (e ProcessorUnregisteredEvent) EventType() string { return EventTypeProcessorUnregistered }
func (e ProcessorUnregisteredEvent) Topic() string     { return TopicProcessor }
func (e ProcessorUnregisteredEvent) TaskID() string    { return "" }

// ProcessorStartedEvent is published when the engine starts its worker pool.
type ProcessorStartedEvent struct {
	Workers            int
	MaxConcurrentTasks int
	Timestamp          time.Time
}

func (e ProcessorStartedEvent) EventType() string { return EventTypeProcessorStarted }
func (e ProcessorStartedEvent) Topic() string     { return TopicProcessor }
func (e ProcessorStartedEvent) TaskID() string    { return "" }

// ProcessorStoppedEvent is published once the engine has shut down.
type ProcessorStoppedEvent struct {
	Cancelled int // Tasks dropped by the shutdown
	Timestamp time.Time
}

func (e ProcessorStoppedEvent) EventType() string { return EventTypeProcessorStopped }
func (e ProcessorStoppedEvent) Topic() string     { return TopicProcessor }
func (e ProcessorStoppedEvent) TaskID() string    { return "" }
