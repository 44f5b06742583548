package engine

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hasangilak/taskengine/internal/events"
	"github.com/hasangilak/taskengine/internal/scheduler"
	"github.com/hasangilak/taskengine/internal/worker"
)

// evaluate dispatches eligible tasks while the concurrency ceiling and the
// pool allow it.
func (e *Engine) evaluate() {
	if !e.started || e.stopped {
		return
	}

	now := time.Now()
	for len(e.running) < e.cfg.MaxConcurrentTasks {
		info := e.freeWorker()
		if info == nil {
			return
		}
		task := e.queue.Next(now, e.eligible)
		if task == nil {
			return
		}
		e.dispatch(task, info, now)
	}
}

// freeWorker returns the idle worker with the lowest ID.
func (e *Engine) freeWorker() *scheduler.WorkerInfo {
	for _, id := range slices.Sorted(maps.Keys(e.workers)) {
		if info := e.workers[id]; !info.Busy {
			return info
		}
	}
	return nil
}

// eligible reports whether every dependency has succeeded and the task's type
// is under its concurrency limit.
func (e *Engine) eligible(task *scheduler.Task) bool {
	for _, depID := range task.Dependencies {
		res := e.results[depID]
		if res == nil || !res.Success {
			return false
		}
	}

	if proc, ok := e.registry.Lookup(task.Type); ok && proc.Concurrency > 0 {
		if e.typeRunning[task.Type] >= proc.Concurrency {
			return false
		}
	}
	return true
}

// dispatch records the assignment, then sends the attempt to the worker.
func (e *Engine) dispatch(task *scheduler.Task, info *scheduler.WorkerInfo, now time.Time) {
	info.Busy = true
	info.CurrentTask = task.ID
	info.LastActiveAt = now

	task.StartedAt = now
	rt := &runningTask{task: task, workerID: info.ID}
	e.running[task.ID] = rt
	e.typeRunning[task.Type]++

	attempt := task.Retries + 1
	e.logger.Debugw("task dispatched", "task_id", task.ID, "task_type", task.Type, "worker_id", info.ID, "attempt", attempt)
	e.bus.Publish(events.TaskStartedEvent{
		ID:        task.ID,
		Type:      task.Type,
		WorkerID:  info.ID,
		Attempt:   attempt,
		Timestamp: now,
	})

	err := e.pool.Send(info.ID, worker.Execute{
		TaskID:  task.ID,
		Type:    task.Type,
		Payload: task.Payload,
		Timeout: e.timeoutFor(task),
		Attempt: attempt,
	})
	if err == nil {
		return
	}

	e.logger.Warnw("dispatch failed", "task_id", task.ID, "worker_id", info.ID, "error", err)
	e.finishAttempt(task.ID, now)
	if errors.Is(err, worker.ErrWorkerGone) {
		// Its Exited report arrives later and triggers the respawn
		delete(e.workers, info.ID)
	}
	e.retryOrFail(task, info.ID, &scheduler.ExecutionError{
		TaskID:  task.ID,
		Attempt: attempt,
		Kind:    scheduler.KindCrash,
		Err:     fmt.Errorf("dispatch to worker %d: %w", info.ID, err),
	}, 0, now)
}

// timeoutFor resolves the attempt budget: task, then processor, then engine default.
func (e *Engine) timeoutFor(task *scheduler.Task) time.Duration {
	if task.Timeout > 0 {
		return task.Timeout
	}
	if proc, ok := e.registry.Lookup(task.Type); ok && proc.Timeout > 0 {
		return proc.Timeout
	}
	return e.cfg.DefaultTimeout
}
