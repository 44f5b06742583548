package scheduler

import (
	"slices"
	"time"
)

// TaskOptions holds per-submission settings. Build it with TaskOption values.
type TaskOptions struct {
	ID           string
	Priority     int
	Delay        time.Duration
	Timeout      time.Duration
	MaxRetries   *int
	ScheduledAt  time.Time
	Dependencies []string
	Tags         []string
}

// TaskOption configures a task at submission.
type TaskOption func(*TaskOptions)

// ApplyTaskOptions folds opts into a TaskOptions value.
func ApplyTaskOptions(opts ...TaskOption) TaskOptions {
	var o TaskOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithID sets a caller-chosen task ID instead of a generated one.
func WithID(id string) TaskOption {
	return func(o *TaskOptions) { o.ID = id }
}

// WithPriority sets the dispatch priority; higher runs first.
func WithPriority(p int) TaskOption {
	return func(o *TaskOptions) { o.Priority = p }
}

// WithDelay defers the first dispatch by d from submission. Takes precedence over
// WithScheduledAt.
func WithDelay(d time.Duration) TaskOption {
	return func(o *TaskOptions) { o.Delay = d }
}

// WithScheduledAt defers the first dispatch until t.
func WithScheduledAt(t time.Time) TaskOption {
	return func(o *TaskOptions) { o.ScheduledAt = t }
}

// WithTimeout sets the execution budget of each attempt.
func WithTimeout(d time.Duration) TaskOption {
	return func(o *TaskOptions) { o.Timeout = d }
}

// WithMaxRetries sets how many times a failed task is re-queued.
func WithMaxRetries(n int) TaskOption {
	return func(o *TaskOptions) { o.MaxRetries = &n }
}

// WithDependencies lists tasks that must succeed before this one is eligible.
func WithDependencies(ids ...string) TaskOption {
	return func(o *TaskOptions) { o.Dependencies = append(o.Dependencies, ids...) }
}

// WithTags attaches query tags.
func WithTags(tags ...string) TaskOption {
	return func(o *TaskOptions) { o.Tags = append(o.Tags, tags...) }
}

// NewTask builds a Task from options. defaultRetries applies when no
// WithMaxRetries option was given.
func NewTask(id, typ string, payload any, o TaskOptions, defaultRetries int, now time.Time) *Task {
	maxRetries := defaultRetries
	if o.MaxRetries != nil {
		maxRetries = max(*o.MaxRetries, 0)
	}

	scheduledAt := o.ScheduledAt
	if o.Delay > 0 {
		scheduledAt = now.Add(o.Delay)
	}

	return &Task{
		ID:           id,
		Type:         typ,
		Payload:      payload,
		Priority:     o.Priority,
		MaxRetries:   maxRetries,
		Timeout:      o.Timeout,
		CreatedAt:    now,
		ScheduledAt:  scheduledAt,
		Dependencies: slices.Compact(slices.Sorted(slices.Values(o.Dependencies))),
		Tags:         slices.Clone(o.Tags),
	}
}
