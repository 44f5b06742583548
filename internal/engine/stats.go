package engine

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/hasangilak/taskengine/internal/scheduler"
)

// Stats is a point-in-time summary of the engine.
type Stats struct {
	Pending               int // Queued and due, possibly waiting on dependencies
	Scheduled             int // Queued with a future ScheduledAt
	Running               int
	Completed             int
	Failed                int
	AverageProcessingTime time.Duration // Mean duration of successful tasks
	ActiveWorkers         int
	TotalWorkers          int
	QueueLength           int
	QueueCapacity         int
	EventsDropped         uint64
}

// GetTask returns a snapshot of a queued, running or finished task.
func (e *Engine) GetTask(id string) (scheduler.TaskInfo, bool) {
	var (
		info  scheduler.TaskInfo
		found bool
	)
	e.do(func() {
		now := time.Now()
		if task, ok := e.queue.Get(id); ok {
			info, found = scheduler.TaskInfo{Status: queuedStatus(task, now), Task: task.Clone()}, true
			return
		}
		if rt, ok := e.running[id]; ok {
			info, found = scheduler.TaskInfo{Status: scheduler.TaskRunning, Task: rt.task.Clone()}, true
			return
		}
		if res, ok := e.results[id]; ok {
			info, found = resultInfo(res), true
		}
	})
	return info, found
}

// GetTasksByStatus lists tasks in one status. Queued tasks come in dispatch
// order, running tasks by start time, finished tasks by completion time.
// TaskCancelled always yields nothing: cancelled tasks are not retained.
func (e *Engine) GetTasksByStatus(status scheduler.TaskStatus) []scheduler.TaskInfo {
	var out []scheduler.TaskInfo
	e.do(func() {
		now := time.Now()
		switch status {
		case scheduler.TaskPending, scheduler.TaskScheduled:
			for _, task := range e.queue.Snapshot() {
				if queuedStatus(task, now) == status {
					out = append(out, scheduler.TaskInfo{Status: status, Task: task.Clone()})
				}
			}
		case scheduler.TaskRunning:
			out = e.runningInfos()
		case scheduler.TaskCompleted, scheduler.TaskFailed:
			for _, res := range e.sortedResults() {
				if resultInfo(res).Status == status {
					out = append(out, resultInfo(res))
				}
			}
		}
	})
	return out
}

// GetTasksByTag lists every known task carrying tag: queued, then running,
// then finished.
func (e *Engine) GetTasksByTag(tag string) []scheduler.TaskInfo {
	var out []scheduler.TaskInfo
	e.do(func() {
		now := time.Now()
		for _, task := range e.queue.Snapshot() {
			if task.HasTag(tag) {
				out = append(out, scheduler.TaskInfo{Status: queuedStatus(task, now), Task: task.Clone()})
			}
		}
		for _, info := range e.runningInfos() {
			if info.Task.HasTag(tag) {
				out = append(out, info)
			}
		}
		for _, res := range e.sortedResults() {
			if slices.Contains(res.Tags, tag) {
				out = append(out, resultInfo(res))
			}
		}
	})
	return out
}

// GetStats returns queue, result and worker counts.
func (e *Engine) GetStats() Stats {
	var s Stats
	e.do(func() {
		now := time.Now()
		for _, task := range e.queue.Snapshot() {
			if queuedStatus(task, now) == scheduler.TaskScheduled {
				s.Scheduled++
			} else {
				s.Pending++
			}
		}
		s.Running = len(e.running)

		var total time.Duration
		for _, res := range e.results {
			if res.Success {
				s.Completed++
				total += res.Duration
			} else {
				s.Failed++
			}
		}
		if s.Completed > 0 {
			s.AverageProcessingTime = total / time.Duration(s.Completed)
		}

		for _, info := range e.workers {
			if info.Busy {
				s.ActiveWorkers++
			}
		}
		s.TotalWorkers = len(e.workers)
		s.QueueLength = e.queue.Len()
		s.QueueCapacity = e.cfg.QueueMaxSize
		s.EventsDropped = e.bus.Dropped()
	})
	return s
}

// GetWorkerStats returns a copy of every worker's bookkeeping, ordered by ID.
func (e *Engine) GetWorkerStats() []scheduler.WorkerInfo {
	var out []scheduler.WorkerInfo
	e.do(func() {
		for _, id := range slices.Sorted(maps.Keys(e.workers)) {
			out = append(out, *e.workers[id])
		}
	})
	return out
}

func queuedStatus(task *scheduler.Task, now time.Time) scheduler.TaskStatus {
	if task.IsDue(now) {
		return scheduler.TaskPending
	}
	return scheduler.TaskScheduled
}

func resultInfo(res *scheduler.TaskResult) scheduler.TaskInfo {
	status := scheduler.TaskFailed
	if res.Success {
		status = scheduler.TaskCompleted
	}
	cp := *res
	return scheduler.TaskInfo{Status: status, Result: &cp}
}

func (e *Engine) runningInfos() []scheduler.TaskInfo {
	infos := make([]scheduler.TaskInfo, 0, len(e.running))
	for _, rt := range e.running {
		infos = append(infos, scheduler.TaskInfo{Status: scheduler.TaskRunning, Task: rt.task.Clone()})
	}
	slices.SortFunc(infos, func(a, b scheduler.TaskInfo) int {
		if c := a.Task.StartedAt.Compare(b.Task.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Task.ID, b.Task.ID)
	})
	return infos
}

func (e *Engine) sortedResults() []*scheduler.TaskResult {
	results := slices.Collect(maps.Values(e.results))
	slices.SortFunc(results, func(a, b *scheduler.TaskResult) int {
		if c := a.CompletedAt.Compare(b.CompletedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.TaskID, b.TaskID)
	})
	return results
}
