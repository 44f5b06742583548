package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap/zaptest"

	"github.com/hasangilak/taskengine/internal/config"
	"github.com/hasangilak/taskengine/internal/scheduler"
)

func testBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		Enabled:          true,
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
		HalfOpenRequests: 1,
	}
}

// TestNewRetryPolicy_Constant verifies a multiplier of 1 gives a fixed delay.
func TestNewRetryPolicy_Constant(t *testing.T) {
	policy := newRetryPolicy(config.RetryConfig{Delay: 20 * time.Millisecond, Multiplier: 1})

	for i := range 5 {
		if got := policy.NextBackOff(); got != 20*time.Millisecond {
			t.Errorf("attempt %d: expected 20ms, got %v", i+1, got)
		}
	}
}

// TestNewRetryPolicy_Exponential verifies growth and the MaxDelay cap.
func TestNewRetryPolicy_Exponential(t *testing.T) {
	policy := newRetryPolicy(config.RetryConfig{
		Delay:      10 * time.Millisecond,
		Multiplier: 2,
		MaxDelay:   50 * time.Millisecond,
	})

	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
		50 * time.Millisecond,
	}
	for i, w := range want {
		if got := policy.NextBackOff(); got < w || got > w+time.Microsecond {
			t.Errorf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
}

// TestNewRetryPolicy_NeverStops verifies retries are bounded by count, not elapsed time.
func TestNewRetryPolicy_NeverStops(t *testing.T) {
	policy := newRetryPolicy(config.RetryConfig{
		Delay:      time.Millisecond,
		Multiplier: 3,
		MaxDelay:   time.Millisecond * 5,
	})

	for i := range 100 {
		if got := policy.NextBackOff(); got < 0 {
			t.Fatalf("attempt %d: policy stopped", i+1)
		}
	}
}

// TestBreakerRegistry_PerTaskType verifies breakers are per task type.
func TestBreakerRegistry_PerTaskType(t *testing.T) {
	registry := NewBreakerRegistry(testBreakerConfig(), zaptest.NewLogger(t).Sugar())

	a1 := registry.Get("email")
	a2 := registry.Get("email")
	b := registry.Get("resize")

	if a1 != a2 {
		t.Error("expected same breaker instance for 'email'")
	}
	if a1 == b {
		t.Error("expected different breakers for 'email' and 'resize'")
	}
	if a1.Name() != "email" {
		t.Errorf("expected breaker name 'email', got %q", a1.Name())
	}

	registry.Remove("email")
	if registry.Get("email") == a1 {
		t.Error("expected a fresh breaker after Remove")
	}
}

// TestBreakerRegistry_WrapTrips verifies consecutive handler failures open the breaker.
func TestBreakerRegistry_WrapTrips(t *testing.T) {
	registry := NewBreakerRegistry(testBreakerConfig(), zaptest.NewLogger(t).Sugar())

	calls := 0
	h := registry.Wrap("flaky", func(ctx context.Context, exec scheduler.Execution) (any, error) {
		calls++
		return nil, errors.New("backend unavailable")
	})

	ctx := context.Background()
	for i := range 3 {
		if _, err := h(ctx, scheduler.Execution{TaskID: "t"}); err == nil || isBreakerRejection(err) {
			t.Fatalf("call %d: expected handler error, got %v", i+1, err)
		}
	}

	_, err := h(ctx, scheduler.Execution{TaskID: "t"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if !isBreakerRejection(err) {
		t.Error("expected open-state error to count as a breaker rejection")
	}
	if calls != 3 {
		t.Errorf("expected handler to run 3 times, ran %d", calls)
	}
	if state := registry.Get("flaky").State(); state != gobreaker.StateOpen {
		t.Errorf("expected open state, got %v", state)
	}
}

// TestBreakerRegistry_CancellationIsNotFailure verifies cancelled or timed out
// attempts leave the breaker closed.
func TestBreakerRegistry_CancellationIsNotFailure(t *testing.T) {
	registry := NewBreakerRegistry(testBreakerConfig(), zaptest.NewLogger(t).Sugar())

	errs := []error{context.Canceled, context.DeadlineExceeded}
	h := registry.Wrap("slow", func(ctx context.Context, exec scheduler.Execution) (any, error) {
		return nil, errs[exec.Attempt%len(errs)]
	})

	for i := range 10 {
		_, err := h(context.Background(), scheduler.Execution{Attempt: i})
		if isBreakerRejection(err) {
			t.Fatalf("call %d: breaker rejected a cancelled attempt", i+1)
		}
	}
	if state := registry.Get("slow").State(); state != gobreaker.StateClosed {
		t.Errorf("expected closed state, got %v", state)
	}
}

// TestBreakerRegistry_SuccessResetsCount verifies a success clears the failure streak.
func TestBreakerRegistry_SuccessResetsCount(t *testing.T) {
	registry := NewBreakerRegistry(testBreakerConfig(), zaptest.NewLogger(t).Sugar())

	fail := true
	h := registry.Wrap("mixed", func(ctx context.Context, exec scheduler.Execution) (any, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})

	ctx := context.Background()
	for range 2 {
		_, _ = h(ctx, scheduler.Execution{})
	}
	fail = false
	if res, err := h(ctx, scheduler.Execution{}); err != nil || res != "ok" {
		t.Fatalf("expected success, got %v, %v", res, err)
	}
	fail = true
	for range 2 {
		_, _ = h(ctx, scheduler.Execution{})
	}
	if state := registry.Get("mixed").State(); state != gobreaker.StateClosed {
		t.Errorf("expected closed state after interrupted streak, got %v", state)
	}
}
