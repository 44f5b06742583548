package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/hasangilak/taskengine/internal/events"
)

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to zap.S().
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithEventBus publishes to an existing bus instead of one owned by the engine.
// A shared bus is not closed by Stop.
func WithEventBus(bus *events.EventBus) Option {
	return func(e *Engine) {
		e.bus = bus
		e.ownsBus = false
	}
}

// WithIDGenerator replaces the UUID task ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// ProcessorOption configures a processor at registration.
type ProcessorOption func(*processorOptions)

type processorOptions struct {
	concurrency int
	timeout     time.Duration
}

// WithConcurrency caps how many tasks of this type run at once.
func WithConcurrency(n int) ProcessorOption {
	return func(o *processorOptions) { o.concurrency = n }
}

// WithTimeout sets the execution budget for tasks of this type that set none.
func WithTimeout(d time.Duration) ProcessorOption {
	return func(o *processorOptions) { o.timeout = d }
}
