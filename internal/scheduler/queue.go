package scheduler

import (
	"cmp"
	"slices"
	"time"
)

// TaskQueue holds tasks that have not been dispatched yet, kept in dispatch order.
// It is not safe for concurrent use; the engine loop owns it.
type TaskQueue struct {
	tasks   []*Task
	nextSeq uint64
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{}
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

// Push inserts a task and re-sorts the queue relative to now.
func (q *TaskQueue) Push(task *Task, now time.Time) {
	q.nextSeq++
	task.seq = q.nextSeq
	q.tasks = append(q.tasks, task)
	q.sort(now)
}

// sort orders by priority (desc), then readiness time (asc), then creation time.
// A task without ScheduledAt counts as ready at now: it follows tasks already due
// and precedes tasks scheduled for the future.
func (q *TaskQueue) sort(now time.Time) {
	readyAt := func(t *Task) time.Time {
		if t.ScheduledAt.IsZero() {
			return now
		}
		return t.ScheduledAt
	}

	slices.SortStableFunc(q.tasks, func(a, b *Task) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := readyAt(a).Compare(readyAt(b)); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

// Next removes and returns the first task that is due and passes eligible.
// Skipped tasks stay in place. Returns nil when nothing qualifies.
func (q *TaskQueue) Next(now time.Time, eligible func(*Task) bool) *Task {
	for i, task := range q.tasks {
		if !task.IsDue(now) {
			continue
		}
		if eligible != nil && !eligible(task) {
			continue
		}
		q.tasks = slices.Delete(q.tasks, i, i+1)
		return task
	}
	return nil
}

// Get returns the queued task with the given ID.
func (q *TaskQueue) Get(id string) (*Task, bool) {
	for _, task := range q.tasks {
		if task.ID == id {
			return task, true
		}
	}
	return nil, false
}

// Remove deletes the task with the given ID and returns it.
func (q *TaskQueue) Remove(id string) (*Task, bool) {
	for i, task := range q.tasks {
		if task.ID == id {
			q.tasks = slices.Delete(q.tasks, i, i+1)
			return task, true
		}
	}
	return nil, false
}

// Snapshot returns the queued tasks in dispatch order. The slice is a copy; the
// tasks are not.
func (q *TaskQueue) Snapshot() []*Task {
	return slices.Clone(q.tasks)
}

// Drain empties the queue and returns everything that was in it, in order.
func (q *TaskQueue) Drain() []*Task {
	drained := q.tasks
	q.tasks = nil
	return drained
}
