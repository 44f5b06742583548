package scheduler

import (
	"errors"
	"fmt"
)

// Validation sentinels. Returned wrapped in a *ValidationError; match with errors.Is.
var (
	ErrQueueFull        = errors.New("task queue is full")
	ErrUnknownType      = errors.New("no processor registered for task type")
	ErrDuplicateTask    = errors.New("task id already exists")
	ErrDependencyCycle  = errors.New("task dependencies form a cycle")
	ErrInvalidProcessor = errors.New("invalid processor")
	ErrEngineStopped    = errors.New("engine is stopped")
)

// ErrDependencyFailed is recorded on dependents failed by a cascading failure.
var ErrDependencyFailed = errors.New("dependency failed")

// ValidationError is returned synchronously when a request is rejected.
type ValidationError struct {
	Op     string // "add_task", "register_processor", ...
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a *ValidationError.
func Invalid(op string, err error, format string, args ...any) *ValidationError {
	return &ValidationError{Op: op, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// ErrorKind classifies execution-time failures.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindHandler    ErrorKind = "handler"    // Handler returned an error
	KindTimeout    ErrorKind = "timeout"    // Execution budget elapsed
	KindCrash      ErrorKind = "crash"      // Worker died mid-task
	KindBreaker    ErrorKind = "breaker"    // Circuit breaker rejected the call
	KindDependency ErrorKind = "dependency" // A dependency failed terminally
)

// ExecutionError describes a failed attempt. It is never returned to callers of
// AddTask; it surfaces through TaskResult and events.
type ExecutionError struct {
	TaskID  string
	Attempt int
	Kind    ErrorKind
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s attempt %d (%s): %v", e.TaskID, e.Attempt, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
