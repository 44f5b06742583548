// Package processor provides the task handlers shipped with taskengine.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hasangilak/taskengine/internal/engine"
	"github.com/hasangilak/taskengine/internal/scheduler"
)

// Built-in task types.
const (
	TypeEcho  = "echo"
	TypeSleep = "sleep"
	TypeFail  = "fail"
	TypeExec  = "exec"
)

// Registrar is the part of the engine processors are installed on.
type Registrar interface {
	RegisterProcessor(taskType string, handler scheduler.Handler, opts ...engine.ProcessorOption) error
}

// Register installs every built-in processor. Subprocesses started by exec
// tasks are tracked in pm.
func Register(r Registrar, pm *ProcessManager) error {
	handlers := []struct {
		typ     string
		handler scheduler.Handler
	}{
		{TypeEcho, Echo},
		{TypeSleep, Sleep},
		{TypeFail, Fail},
		{TypeExec, NewExec(pm).Handle},
	}

	for _, h := range handlers {
		if err := r.RegisterProcessor(h.typ, h.handler); err != nil {
			return fmt.Errorf("registering %s processor: %w", h.typ, err)
		}
	}
	return nil
}

// Echo returns its payload unchanged.
func Echo(ctx context.Context, exec scheduler.Execution) (any, error) {
	return exec.Payload, nil
}

// SleepPayload configures the sleep processor.
type SleepPayload struct {
	Duration time.Duration `json:"duration"`
	Steps    int           `json:"steps"` // Progress reports, evenly spaced; 0 means none
}

// Sleep waits for the requested duration, reporting percentage progress.
func Sleep(ctx context.Context, exec scheduler.Execution) (any, error) {
	var p SleepPayload
	if err := decode(exec.Payload, &p); err != nil {
		return nil, err
	}
	if p.Duration < 0 {
		return nil, fmt.Errorf("invalid payload: negative duration %s", p.Duration)
	}

	steps := max(p.Steps, 1)
	interval := p.Duration / time.Duration(steps)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for step := 1; step <= steps; step++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		if p.Steps > 0 {
			exec.Progress(step * 100 / steps)
		}
		timer.Reset(interval)
	}

	return map[string]any{"slept": p.Duration.String()}, nil
}

// FailPayload configures the fail processor.
type FailPayload struct {
	Message string `json:"message"`
	Times   int    `json:"times"` // Fail this many attempts, then succeed; 0 fails every attempt
}

// Fail returns an error, optionally only for the first attempts. Useful for
// exercising retry and cascade settings.
func Fail(ctx context.Context, exec scheduler.Execution) (any, error) {
	var p FailPayload
	if err := decode(exec.Payload, &p); err != nil {
		return nil, err
	}
	if p.Message == "" {
		p.Message = "task failed on purpose"
	}

	if p.Times > 0 && exec.Attempt > p.Times {
		return map[string]any{"attempt": exec.Attempt}, nil
	}
	return nil, errors.New(p.Message)
}
