package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolStopped = errors.New("worker pool is stopped")
	ErrWorkerGone  = errors.New("worker does not exist")
	ErrInboxFull   = errors.New("worker inbox is full")
	ErrStopTimeout = errors.New("timed out waiting for workers to exit")
)

const (
	inboxSize  = 8
	reportSize = 256
)

// Pool owns a set of goroutine workers. Workers share nothing mutable with the
// caller: instructions go in through Send and everything comes back on Reports.
//
// A worker whose handler panics dies; the pool removes it and delivers Exited.
// Replacing it is the caller's decision (Spawn).
type Pool struct {
	lookup  Lookup
	logger  *zap.SugaredLogger
	reports chan Report

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[int]*worker
	nextID  int
	stopped bool

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// NewPool creates a pool that resolves handlers through lookup. No workers run
// until Start or Spawn.
func NewPool(lookup Lookup, logger *zap.SugaredLogger) *Pool {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		lookup:  lookup,
		logger:  logger.Named("worker"),
		reports: make(chan Report, reportSize),
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[int]*worker),
	}
}

// Start spawns n workers and returns their IDs in spawn order.
func (p *Pool) Start(n int) ([]int, error) {
	ids := make([]int, 0, n)
	for range n {
		id, err := p.Spawn()
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Spawn starts one worker and returns its ID. IDs are never reused.
func (p *Pool) Spawn() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return 0, ErrPoolStopped
	}

	p.nextID++
	w := &worker{
		id:      p.nextID,
		inbox:   make(chan Message, inboxSize),
		lookup:  p.lookup,
		deliver: p.deliver,
	}
	p.workers[w.id] = w

	p.wg.Add(1)
	go p.supervise(w)

	p.logger.Debugw("worker spawned", "worker_id", w.id)
	return w.id, nil
}

// supervise runs a worker and reports its death unless the pool is shutting down.
func (p *Pool) supervise(w *worker) {
	defer p.wg.Done()

	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("worker panicked: %v", rec)
			}
		}()
		return w.run(p.ctx)
	}()

	p.mu.Lock()
	delete(p.workers, w.id)
	p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}

	p.logger.Warnw("worker exited", "worker_id", w.id, "task_id", w.current, "error", err)
	p.deliver(p.ctx, Exited{WorkerID: w.id, TaskID: w.current, Err: err})
}

// deliver sends a report, giving up when ctx is done.
func (p *Pool) deliver(ctx context.Context, r Report) {
	select {
	case p.reports <- r:
	case <-ctx.Done():
	}
}

// Reports returns the channel every worker reports on. It is never closed.
func (p *Pool) Reports() <-chan Report {
	return p.reports
}

// Send puts a message in a worker's inbox without blocking.
func (p *Pool) Send(workerID int, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}
	w, ok := p.workers[workerID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrWorkerGone, workerID)
	}

	select {
	case w.inbox <- msg:
		return nil
	default:
		return fmt.Errorf("%w: worker %d", ErrInboxFull, workerID)
	}
}

// Size returns the number of live workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Stop cancels every worker and waits up to timeout for them to exit. Handlers
// that ignore their context are abandoned, not waited for. Safe to call more
// than once; later calls return the first result.
func (p *Pool) Stop(timeout time.Duration) error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.cancel()
		for _, w := range p.workers {
			close(w.inbox)
		}
		p.mu.Unlock()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Debugw("worker pool stopped")
		case <-time.After(timeout):
			p.stopErr = fmt.Errorf("%w after %s", ErrStopTimeout, timeout)
			p.logger.Warnw("worker pool stop timed out", "timeout", timeout, "remaining", p.Size())
		}
	})
	return p.stopErr
}
