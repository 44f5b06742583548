package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hasangilak/taskengine/internal/config"
	"github.com/hasangilak/taskengine/internal/scheduler"
)

// newRetryPolicy returns the delay sequence for one task's retries.
// Multiplier <= 1 gives a fixed delay; anything above grows exponentially up to
// MaxDelay with Jitter as the randomization factor.
func newRetryPolicy(cfg config.RetryConfig) backoff.BackOff {
	if cfg.Multiplier <= 1 {
		return backoff.NewConstantBackOff(cfg.Delay)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.Delay
	policy.Multiplier = cfg.Multiplier
	policy.RandomizationFactor = cfg.Jitter
	if cfg.MaxDelay > 0 {
		policy.MaxInterval = cfg.MaxDelay
	}
	policy.MaxElapsedTime = 0 // The retry ceiling is MaxRetries, not wall time
	policy.Reset()
	return policy
}

// BreakerRegistry manages per-task-type circuit breakers.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	cfg      config.BreakerConfig
	logger   *zap.SugaredLogger
}

// NewBreakerRegistry creates an empty registry; breakers are built on first use.
func NewBreakerRegistry(cfg config.BreakerConfig, logger *zap.SugaredLogger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		cfg:      cfg,
		logger:   logger.Named("breaker"),
	}
}

// Get returns the circuit breaker for the given task type.
// Creates a new one if it doesn't exist.
func (r *BreakerRegistry) Get(taskType string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[taskType]; ok {
		return cb
	}

	threshold := r.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        taskType,
		MaxRequests: r.cfg.HalfOpenRequests,
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warnw("circuit breaker state change", "task_type", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation and abandoned timeouts say nothing about the handler's health
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[taskType] = cb
	return cb
}

// Remove forgets the breaker for a type so a re-registered handler starts closed.
func (r *BreakerRegistry) Remove(taskType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, taskType)
}

// Wrap routes every call of h through the breaker for taskType.
func (r *BreakerRegistry) Wrap(taskType string, h scheduler.Handler) scheduler.Handler {
	return func(ctx context.Context, exec scheduler.Execution) (any, error) {
		return r.Get(taskType).Execute(func() (interface{}, error) {
			return h(ctx, exec)
		})
	}
}

// isBreakerRejection reports whether err came from an open or saturated breaker.
func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
