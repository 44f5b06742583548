package persistence

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hasangilak/taskengine/internal/events"
	"github.com/hasangilak/taskengine/internal/scheduler"
)

const (
	archiveBuffer = 1024
	saveTimeout   = 5 * time.Second
)

// Archiver copies terminal results from the event bus into a Store.
type Archiver struct {
	store  Store
	bus    *events.EventBus
	sub    <-chan events.Event
	logger *zap.SugaredLogger

	saved  atomic.Uint64
	errors atomic.Uint64
}

// NewArchiver subscribes to task events right away, so results published
// before Run is called are still archived.
func NewArchiver(store Store, bus *events.EventBus, logger *zap.SugaredLogger) *Archiver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Archiver{
		store:  store,
		bus:    bus,
		sub:    bus.Subscribe(events.TopicTask, archiveBuffer),
		logger: logger.Named("archive"),
	}
}

// Run archives results until the bus is closed or ctx is done. On ctx
// cancellation results already buffered are still written.
func (a *Archiver) Run(ctx context.Context) error {
	defer a.bus.Unsubscribe(a.sub)

	for {
		select {
		case ev, ok := <-a.sub:
			if !ok {
				a.logger.Debugw("event bus closed", "saved", a.saved.Load(), "errors", a.errors.Load())
				return nil
			}
			a.handle(ctx, ev)
		case <-ctx.Done():
			a.drain(ctx)
			return nil
		}
	}
}

func (a *Archiver) drain(ctx context.Context) {
	for {
		select {
		case ev, ok := <-a.sub:
			if !ok {
				return
			}
			a.handle(ctx, ev)
		default:
			return
		}
	}
}

func (a *Archiver) handle(ctx context.Context, ev events.Event) {
	var res scheduler.TaskResult
	switch e := ev.(type) {
	case events.TaskCompletedEvent:
		res = e.Result
	case events.TaskFailedEvent:
		res = e.Result
	default:
		return
	}

	// Writes outlive ctx so a shutdown does not lose results
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := a.store.SaveResult(saveCtx, res); err != nil {
		a.errors.Add(1)
		a.logger.Errorw("archiving result failed", "task_id", res.TaskID, "error", err)
		return
	}
	a.saved.Add(1)
	a.logger.Debugw("result archived", "task_id", res.TaskID, "success", res.Success)
}

// Saved returns how many results were written.
func (a *Archiver) Saved() uint64 {
	return a.saved.Load()
}

// Errors returns how many writes failed.
func (a *Archiver) Errors() uint64 {
	return a.errors.Load()
}
