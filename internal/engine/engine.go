// Package engine runs submitted tasks on a bounded worker pool.
//
// One control goroutine owns the queue, the running set, the result store and
// the worker table. Public methods hand it a closure and wait for it to run;
// worker reports and the periodic tick arrive on the same goroutine. After Stop
// the goroutine exits and methods run against the final state instead.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hasangilak/taskengine/internal/config"
	"github.com/hasangilak/taskengine/internal/events"
	"github.com/hasangilak/taskengine/internal/scheduler"
	"github.com/hasangilak/taskengine/internal/worker"
)

// runningTask is a dispatched attempt.
type runningTask struct {
	task     *scheduler.Task
	workerID int
}

// Engine is the task execution engine.
type Engine struct {
	cfg      config.Config
	logger   *zap.SugaredLogger
	bus      *events.EventBus
	ownsBus  bool
	newID    func() string
	registry *scheduler.Registry
	breakers *BreakerRegistry // nil unless breakers are enabled
	pool     *worker.Pool

	// Owned by the control goroutine
	queue       *scheduler.TaskQueue
	graph       *scheduler.Graph
	running     map[string]*runningTask
	results     map[string]*scheduler.TaskResult
	workers     map[int]*scheduler.WorkerInfo
	retry       map[string]backoff.BackOff
	typeRunning map[string]int
	started     bool
	stopped     bool
	exit        bool
	ticker      *time.Ticker
	tick        <-chan time.Time

	cmds chan func()
	done chan struct{}
	mu   sync.Mutex // serializes calls once the control goroutine has exited
}

// New validates cfg and starts the control goroutine. Tasks can be added
// before Start; they wait in the queue until workers exist.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         *cfg,
		logger:      zap.S(),
		bus:         events.NewEventBus(),
		ownsBus:     true,
		newID:       uuid.NewString,
		registry:    scheduler.NewRegistry(),
		queue:       scheduler.NewTaskQueue(),
		graph:       scheduler.NewGraph(),
		running:     make(map[string]*runningTask),
		results:     make(map[string]*scheduler.TaskResult),
		workers:     make(map[int]*scheduler.WorkerInfo),
		retry:       make(map[string]backoff.BackOff),
		typeRunning: make(map[string]int),
		cmds:        make(chan func()),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("engine")

	if cfg.Breaker.Enabled {
		e.breakers = NewBreakerRegistry(cfg.Breaker, e.logger)
	}
	e.pool = worker.NewPool(e.registry, e.logger)

	go e.loop()
	return e, nil
}

// do runs fn on the control goroutine and waits for it to finish.
func (e *Engine) do(fn func()) {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case e.cmds <- cmd:
		<-finished
	case <-e.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		fn()
	}
}

func (e *Engine) loop() {
	defer close(e.done)

	reports := e.pool.Reports()
	for {
		select {
		case cmd := <-e.cmds:
			cmd()
		case r := <-reports:
			e.handleReport(r)
		case <-e.tick:
		}

		if e.exit {
			return
		}
		e.evaluate()
	}
}

// Start spawns the worker pool and begins dispatching. Calling Start on a
// running engine is a no-op; after Stop it returns ErrEngineStopped.
func (e *Engine) Start() error {
	var err error
	e.do(func() {
		if e.stopped {
			err = scheduler.Invalid("start", scheduler.ErrEngineStopped, "engine cannot be restarted")
			return
		}
		if e.started {
			return
		}

		ids, spawnErr := e.pool.Start(e.cfg.Workers)
		now := time.Now()
		for _, id := range ids {
			e.workers[id] = &scheduler.WorkerInfo{ID: id, CreatedAt: now, LastActiveAt: now}
		}
		if spawnErr != nil {
			err = fmt.Errorf("starting worker pool: %w", spawnErr)
			return
		}

		e.ticker = time.NewTicker(e.cfg.TickInterval)
		e.tick = e.ticker.C
		e.started = true

		e.logger.Infow("engine started",
			"workers", e.cfg.Workers,
			"max_concurrent_tasks", e.cfg.MaxConcurrentTasks,
			"queued", e.queue.Len())
		e.bus.Publish(events.ProcessorStartedEvent{
			Workers:            len(ids),
			MaxConcurrentTasks: e.cfg.MaxConcurrentTasks,
			Timestamp:          now,
		})
	})
	return err
}

// Stop cancels every queued and running task, stops the tick and the worker
// pool, and ends the control goroutine. No TaskResult is written for the
// cancelled tasks. Safe to call more than once.
func (e *Engine) Stop() error {
	var err error
	e.do(func() { err = e.shutdown() })
	return err
}

func (e *Engine) shutdown() error {
	if e.stopped {
		return nil
	}
	e.stopped = true
	e.exit = true
	now := time.Now()

	cancelled := 0
	for _, task := range e.queue.Drain() {
		e.forget(task.ID)
		e.publishCancelled(task, false, "shutdown", now)
		cancelled++
	}
	for id, rt := range e.running {
		e.releaseWorker(rt, now)
		delete(e.running, id)
		e.forget(id)
		e.publishCancelled(rt.task, true, "shutdown", now)
		cancelled++
	}

	if e.ticker != nil {
		e.ticker.Stop()
		e.tick = nil
	}

	var err error
	if stopErr := e.pool.Stop(e.cfg.StopTimeout); stopErr != nil {
		err = fmt.Errorf("stopping worker pool: %w", stopErr)
	}
	clear(e.workers)

	e.logger.Infow("engine stopped", "cancelled", cancelled, "completed", len(e.results))
	e.bus.Publish(events.ProcessorStoppedEvent{Cancelled: cancelled, Timestamp: now})
	if e.ownsBus {
		e.bus.Close()
	}
	return err
}

// RegisterProcessor binds handler to a task type, replacing any previous one.
func (e *Engine) RegisterProcessor(taskType string, handler scheduler.Handler, opts ...ProcessorOption) error {
	var o processorOptions
	for _, opt := range opts {
		opt(&o)
	}

	if handler != nil && e.breakers != nil {
		handler = e.breakers.Wrap(taskType, handler)
	}
	proc := scheduler.Processor{
		Type:        taskType,
		Handler:     handler,
		Concurrency: o.concurrency,
		Timeout:     o.timeout,
	}

	var err error
	e.do(func() {
		if e.stopped {
			err = scheduler.Invalid("register_processor", scheduler.ErrEngineStopped, "%q", taskType)
			return
		}
		if err = e.registry.Register(proc); err != nil {
			return
		}
		e.logger.Debugw("processor registered", "task_type", taskType, "concurrency", o.concurrency, "timeout", o.timeout)
		e.bus.Publish(events.ProcessorRegisteredEvent{Type: taskType, Concurrency: o.concurrency, Timestamp: time.Now()})
	})
	return err
}

// UnregisterProcessor removes a task type's handler. Tasks of that type still
// queued fail when dispatched. Reports whether a handler was registered.
func (e *Engine) UnregisterProcessor(taskType string) bool {
	var ok bool
	e.do(func() {
		if e.stopped {
			return
		}
		if ok = e.registry.Unregister(taskType); !ok {
			return
		}
		if e.breakers != nil {
			e.breakers.Remove(taskType)
		}
		e.logger.Debugw("processor unregistered", "task_type", taskType)
		e.bus.Publish(events.ProcessorUnregisteredEvent{Type: taskType, Timestamp: time.Now()})
	})
	return ok
}

// AddTask queues a task and returns its ID. Rejections are *ValidationError
// values wrapping ErrQueueFull, ErrUnknownType, ErrDuplicateTask,
// ErrDependencyCycle or ErrEngineStopped.
func (e *Engine) AddTask(taskType string, payload any, opts ...scheduler.TaskOption) (string, error) {
	o := scheduler.ApplyTaskOptions(opts...)

	var (
		id  string
		err error
	)
	e.do(func() {
		id, err = e.addTask(taskType, payload, o)
	})
	return id, err
}

func (e *Engine) addTask(taskType string, payload any, o scheduler.TaskOptions) (string, error) {
	const op = "add_task"

	if e.stopped {
		return "", scheduler.Invalid(op, scheduler.ErrEngineStopped, "")
	}
	if !e.registry.Has(taskType) {
		return "", scheduler.Invalid(op, scheduler.ErrUnknownType, "%q", taskType)
	}
	if e.queue.Len() >= e.cfg.QueueMaxSize {
		return "", scheduler.Invalid(op, scheduler.ErrQueueFull, "capacity %d reached", e.cfg.QueueMaxSize)
	}

	id := o.ID
	if id == "" {
		id = e.newID()
	}
	if e.graph.Has(id) || e.results[id] != nil {
		return "", scheduler.Invalid(op, scheduler.ErrDuplicateTask, "%q", id)
	}

	now := time.Now()
	task := scheduler.NewTask(id, taskType, payload, o, e.cfg.DefaultMaxRetries, now)
	if err := e.graph.Add(id, task.Dependencies); err != nil {
		return "", &scheduler.ValidationError{Op: op, Err: scheduler.ErrDependencyCycle, Detail: err.Error()}
	}
	e.queue.Push(task, now)

	e.logger.Debugw("task added",
		"task_id", id,
		"task_type", taskType,
		"priority", task.Priority,
		"dependencies", len(task.Dependencies))
	e.bus.Publish(events.TaskAddedEvent{
		ID:          id,
		Type:        taskType,
		Priority:    task.Priority,
		ScheduledAt: task.ScheduledAt,
		Timestamp:   now,
	})

	if e.cfg.CascadeFailures {
		for _, depID := range task.Dependencies {
			if res := e.results[depID]; res != nil && !res.Success {
				e.cascade(depID, now)
				break
			}
		}
	}
	return id, nil
}

// CancelTask drops a queued or running task. Returns false for finished or
// unknown tasks. A running handler is asked to stop but not waited for.
func (e *Engine) CancelTask(id string) bool {
	var ok bool
	e.do(func() {
		if e.stopped {
			return
		}
		now := time.Now()

		if task, queued := e.queue.Remove(id); queued {
			e.forget(id)
			e.publishCancelled(task, false, "cancelled", now)
			ok = true
			return
		}

		rt, running := e.running[id]
		if !running {
			return
		}
		if err := e.pool.Send(rt.workerID, worker.Cancel{TaskID: id}); err != nil {
			e.logger.Warnw("cancel not delivered", "task_id", id, "worker_id", rt.workerID, "error", err)
		}
		delete(e.running, id)
		e.typeRunning[rt.task.Type]--
		e.releaseWorker(rt, now)
		e.forget(id)
		e.publishCancelled(rt.task, true, "cancelled", now)
		ok = true
	})
	return ok
}

// Events returns the bus lifecycle events are published on.
func (e *Engine) Events() *events.EventBus {
	return e.bus
}

// forget drops graph and retry state for a task leaving the engine.
func (e *Engine) forget(id string) {
	e.graph.Remove(id)
	delete(e.retry, id)
}

func (e *Engine) releaseWorker(rt *runningTask, now time.Time) {
	if info := e.workers[rt.workerID]; info != nil && info.CurrentTask == rt.task.ID {
		info.Busy = false
		info.CurrentTask = ""
		info.LastActiveAt = now
	}
}

func (e *Engine) publishCancelled(task *scheduler.Task, wasRunning bool, reason string, now time.Time) {
	e.logger.Debugw("task cancelled", "task_id", task.ID, "was_running", wasRunning, "reason", reason)
	e.bus.Publish(events.TaskCancelledEvent{
		ID:         task.ID,
		Type:       task.Type,
		WasRunning: wasRunning,
		Reason:     reason,
		Timestamp:  now,
	})
}
