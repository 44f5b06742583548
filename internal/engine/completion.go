package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/hasangilak/taskengine/internal/events"
	"github.com/hasangilak/taskengine/internal/scheduler"
	"github.com/hasangilak/taskengine/internal/worker"
)

// handleReport applies one worker report. Reports about attempts the engine no
// longer tracks (cancelled, or superseded) are dropped.
func (e *Engine) handleReport(r worker.Report) {
	now := time.Now()

	switch r := r.(type) {
	case worker.Completed:
		rt := e.owned(r.TaskID, r.WorkerID)
		if rt == nil {
			return
		}
		e.finishAttempt(r.TaskID, now)
		if info := e.workers[r.WorkerID]; info != nil {
			info.Completed++
		}
		e.succeed(rt, r, now)

	case worker.Failed:
		rt := e.owned(r.TaskID, r.WorkerID)
		if rt == nil {
			return
		}
		e.finishAttempt(r.TaskID, now)
		if info := e.workers[r.WorkerID]; info != nil {
			info.Errored++
		}
		kind := r.Kind
		if isBreakerRejection(r.Err) {
			kind = scheduler.KindBreaker
		}
		e.retryOrFail(rt.task, r.WorkerID, &scheduler.ExecutionError{
			TaskID:  r.TaskID,
			Attempt: rt.task.Retries + 1,
			Kind:    kind,
			Err:     r.Err,
		}, r.Duration, now)

	case worker.Progress:
		if e.owned(r.TaskID, r.WorkerID) == nil {
			return
		}
		e.bus.Publish(events.TaskProgressEvent{ID: r.TaskID, WorkerID: r.WorkerID, Progress: r.Progress, Timestamp: now})

	case worker.Exited:
		e.workerExited(r, now)
	}
}

// owned returns the running attempt if workerID is the one executing taskID.
func (e *Engine) owned(taskID string, workerID int) *runningTask {
	rt := e.running[taskID]
	if rt == nil || rt.workerID != workerID {
		return nil
	}
	if info := e.workers[workerID]; info == nil || info.CurrentTask != taskID {
		return nil
	}
	return rt
}

// finishAttempt takes a task out of the running set and frees its worker.
func (e *Engine) finishAttempt(taskID string, now time.Time) {
	rt := e.running[taskID]
	if rt == nil {
		return
	}
	delete(e.running, taskID)
	e.typeRunning[rt.task.Type]--
	e.releaseWorker(rt, now)
}

func (e *Engine) succeed(rt *runningTask, r worker.Completed, now time.Time) {
	task := rt.task
	task.CompletedAt = now

	res := &scheduler.TaskResult{
		TaskID:      task.ID,
		Type:        task.Type,
		Success:     true,
		Result:      r.Result,
		Duration:    r.Duration,
		WorkerID:    r.WorkerID,
		Retries:     task.Retries,
		CompletedAt: now,
		Tags:        task.Tags,
	}
	e.results[task.ID] = res

	dependents := e.graph.Dependents(task.ID)
	e.forget(task.ID)

	e.logger.Debugw("task completed",
		"task_id", task.ID,
		"duration", r.Duration,
		"retries", task.Retries,
		"unblocked", len(dependents))
	e.bus.Publish(events.TaskCompletedEvent{Result: *res, Timestamp: now})
}

// retryOrFail re-queues a failed attempt while retries remain, otherwise
// writes the terminal failure.
func (e *Engine) retryOrFail(task *scheduler.Task, workerID int, execErr *scheduler.ExecutionError, duration time.Duration, now time.Time) {
	task.LastError = execErr.Err.Error()
	task.StartedAt = time.Time{}

	if task.Retries < task.MaxRetries {
		task.Retries++
		delay := e.nextRetryDelay(task.ID)
		task.ScheduledAt = now.Add(delay)
		// Retries bypass the capacity check
		e.queue.Push(task, now)

		e.logger.Infow("task failed, retrying",
			"task_id", task.ID,
			"retry", task.Retries,
			"max_retries", task.MaxRetries,
			"delay", delay,
			"kind", execErr.Kind,
			"error", execErr.Err)
		e.bus.Publish(events.TaskRetryEvent{
			ID:            task.ID,
			Type:          task.Type,
			Retries:       task.Retries,
			MaxRetries:    task.MaxRetries,
			Err:           task.LastError,
			Kind:          execErr.Kind,
			NextAttemptAt: task.ScheduledAt,
			Timestamp:     now,
		})
		return
	}

	e.logger.Warnw("task failed",
		"task_id", task.ID,
		"retries", task.Retries,
		"kind", execErr.Kind,
		"error", execErr.Err)
	e.fail(task, workerID, execErr.Kind, task.LastError, duration, now)

	if e.cfg.CascadeFailures {
		e.cascade(task.ID, now)
	}
}

// fail stores a terminal failure record.
func (e *Engine) fail(task *scheduler.Task, workerID int, kind scheduler.ErrorKind, msg string, duration time.Duration, now time.Time) {
	task.CompletedAt = now

	res := &scheduler.TaskResult{
		TaskID:      task.ID,
		Type:        task.Type,
		Success:     false,
		Error:       msg,
		ErrorKind:   kind,
		Duration:    duration,
		WorkerID:    workerID,
		Retries:     task.Retries,
		CompletedAt: now,
		Tags:        task.Tags,
	}
	e.results[task.ID] = res
	e.forget(task.ID)

	e.bus.Publish(events.TaskFailedEvent{Result: *res, Timestamp: now})
}

// cascade fails every queued task that transitively depends on failedID.
func (e *Engine) cascade(failedID string, now time.Time) {
	pending := []string{failedID}
	for len(pending) > 0 {
		id := pending[0]
		pending = pending[1:]

		for _, depID := range e.graph.Dependents(id) {
			task, queued := e.queue.Remove(depID)
			if !queued {
				continue
			}
			err := fmt.Errorf("%w: %s", scheduler.ErrDependencyFailed, id)
			task.LastError = err.Error()
			e.logger.Infow("dependent failed", "task_id", depID, "dependency", id)
			e.fail(task, 0, scheduler.KindDependency, task.LastError, 0, now)
			pending = append(pending, depID)
		}
	}
}

// workerExited handles a dead worker: its task counts as a failed attempt and
// a replacement is spawned while the engine runs.
func (e *Engine) workerExited(r worker.Exited, now time.Time) {
	info := e.workers[r.WorkerID]
	delete(e.workers, r.WorkerID)

	cause := r.Err
	if cause == nil {
		cause = errors.New("worker exited")
	}

	e.logger.Warnw("worker exited", "worker_id", r.WorkerID, "task_id", r.TaskID, "error", cause)
	e.bus.Publish(events.WorkerExitEvent{WorkerID: r.WorkerID, Task: r.TaskID, Timestamp: now})
	if r.Err != nil {
		e.bus.Publish(events.WorkerErrorEvent{WorkerID: r.WorkerID, Task: r.TaskID, Err: r.Err.Error(), Timestamp: now})
	}

	if info != nil && info.CurrentTask != "" {
		if rt := e.running[info.CurrentTask]; rt != nil && rt.workerID == r.WorkerID {
			delete(e.running, info.CurrentTask)
			e.typeRunning[rt.task.Type]--
			e.retryOrFail(rt.task, r.WorkerID, &scheduler.ExecutionError{
				TaskID:  rt.task.ID,
				Attempt: rt.task.Retries + 1,
				Kind:    scheduler.KindCrash,
				Err:     cause,
			}, now.Sub(rt.task.StartedAt), now)
		}
	}

	if !e.started || e.stopped {
		return
	}
	id, err := e.pool.Spawn()
	if err != nil {
		e.logger.Errorw("respawning worker failed", "replaces", r.WorkerID, "error", err)
		return
	}
	e.workers[id] = &scheduler.WorkerInfo{ID: id, CreatedAt: now, LastActiveAt: now}
	e.bus.Publish(events.WorkerRestartedEvent{WorkerID: id, Replaces: r.WorkerID, Timestamp: now})
}

// nextRetryDelay advances the task's backoff policy.
func (e *Engine) nextRetryDelay(taskID string) time.Duration {
	policy, ok := e.retry[taskID]
	if !ok {
		policy = newRetryPolicy(e.cfg.Retry)
		e.retry[taskID] = policy
	}

	delay := policy.NextBackOff()
	if delay < 0 {
		// backoff.Stop
		return e.cfg.Retry.MaxDelay
	}
	return delay
}
