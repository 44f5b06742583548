package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hasangilak/taskengine/internal/scheduler"
)

// Lookup resolves a task type to its processor at execution time.
type Lookup interface {
	Lookup(typ string) (scheduler.Processor, bool)
}

type outcome struct {
	result   any
	err      error
	panicked bool
}

// worker is one execution unit. Only its own goroutine touches current.
type worker struct {
	id      int
	inbox   chan Message
	lookup  Lookup
	deliver func(ctx context.Context, r Report)

	current string
}

// run serves the inbox until ctx is cancelled or the inbox is closed.
// A non-nil error means the worker crashed.
func (w *worker) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-w.inbox:
			if !ok {
				return nil
			}
			m, isExec := msg.(Execute)
			if !isExec {
				// Cancel for a task we are no longer running
				continue
			}
			w.current = m.TaskID
			if err := w.execute(ctx, m); err != nil {
				return err
			}
			w.current = ""
		}
	}
}

func (w *worker) execute(ctx context.Context, m Execute) error {
	start := time.Now()

	proc, ok := w.lookup.Lookup(m.Type)
	if !ok {
		w.deliver(ctx, Failed{
			WorkerID: w.id,
			TaskID:   m.TaskID,
			Err:      fmt.Errorf("%w: %q", scheduler.ErrUnknownType, m.Type),
			Kind:     scheduler.KindHandler,
		})
		return nil
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if m.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, m.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	exec := scheduler.NewExecution(m.TaskID, m.Type, m.Payload, m.Attempt, w.id, func(v any) {
		w.deliver(runCtx, Progress{WorkerID: w.id, TaskID: m.TaskID, Progress: v})
	})

	// Buffered so an abandoned handler can still finish and be collected
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("handler panicked: %v", rec), panicked: true}
			}
		}()
		result, err := proc.Handler(runCtx, exec)
		done <- outcome{result: result, err: err}
	}()

	for {
		select {
		case out := <-done:
			elapsed := time.Since(start)
			if out.panicked {
				return out.err
			}
			if out.err != nil {
				kind := scheduler.KindHandler
				if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
					kind = scheduler.KindTimeout
				}
				w.deliver(ctx, Failed{WorkerID: w.id, TaskID: m.TaskID, Err: out.err, Kind: kind, Duration: elapsed})
				return nil
			}
			w.deliver(ctx, Completed{WorkerID: w.id, TaskID: m.TaskID, Result: out.result, Duration: elapsed})
			return nil

		case <-runCtx.Done():
			if ctx.Err() != nil {
				// Pool shutdown
				return nil
			}
			if !errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				continue
			}
			w.deliver(ctx, Failed{
				WorkerID: w.id,
				TaskID:   m.TaskID,
				Err:      fmt.Errorf("task %s exceeded timeout of %s", m.TaskID, m.Timeout),
				Kind:     scheduler.KindTimeout,
				Duration: time.Since(start),
			})
			return nil

		case msg, ok := <-w.inbox:
			if !ok {
				return nil
			}
			switch msg := msg.(type) {
			case Cancel:
				if msg.TaskID == m.TaskID {
					return nil
				}
			case Execute:
				w.deliver(ctx, Failed{
					WorkerID: w.id,
					TaskID:   msg.TaskID,
					Err:      fmt.Errorf("worker %d is busy with task %s", w.id, m.TaskID),
					Kind:     scheduler.KindHandler,
				})
			}
		}
	}
}
