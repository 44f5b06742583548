package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/hasangilak/taskengine/internal/scheduler"
)

var validate = validator.New()

// workloadTask is one entry of a workload file. Durations accept Go duration
// strings ("1.5s") or integer nanoseconds.
type workloadTask struct {
	ID           string        `json:"id"`
	Type         string        `json:"type" validate:"required"`
	Payload      any           `json:"payload"`
	Priority     int           `json:"priority"`
	Delay        time.Duration `json:"delay" validate:"gte=0"`
	Timeout      time.Duration `json:"timeout" validate:"gte=0"`
	MaxRetries   *int          `json:"max_retries" validate:"omitnil,gte=0"`
	Dependencies []string      `json:"dependencies"`
	Tags         []string      `json:"tags"`
}

func (t workloadTask) options() []scheduler.TaskOption {
	opts := []scheduler.TaskOption{scheduler.WithPriority(t.Priority)}
	if t.ID != "" {
		opts = append(opts, scheduler.WithID(t.ID))
	}
	if t.Delay > 0 {
		opts = append(opts, scheduler.WithDelay(t.Delay))
	}
	if t.Timeout > 0 {
		opts = append(opts, scheduler.WithTimeout(t.Timeout))
	}
	if t.MaxRetries != nil {
		opts = append(opts, scheduler.WithMaxRetries(*t.MaxRetries))
	}
	if len(t.Dependencies) > 0 {
		opts = append(opts, scheduler.WithDependencies(t.Dependencies...))
	}
	if len(t.Tags) > 0 {
		opts = append(opts, scheduler.WithTags(t.Tags...))
	}
	return opts
}

// loadWorkload reads a JSON array of tasks from path.
func loadWorkload(path string) ([]workloadTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workload: %w", err)
	}
	return parseWorkload(data)
}

func parseWorkload(data []byte) ([]workloadTask, error) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing workload: %w", err)
	}

	tasks := make([]workloadTask, len(raw))
	for i, entry := range raw {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			TagName:          "json",
			Result:           &tasks[i],
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(entry); err != nil {
			return nil, fmt.Errorf("workload task %d: %w", i, err)
		}
		if err := validate.Struct(tasks[i]); err != nil {
			return nil, fmt.Errorf("workload task %d: %w", i, err)
		}
	}
	return tasks, nil
}

// submitter accepts tasks; implemented by *engine.Engine.
type submitter interface {
	AddTask(taskType string, payload any, opts ...scheduler.TaskOption) (string, error)
}

// submit adds tasks in file order and returns their IDs. It stops at the first
// rejected task; the IDs accepted so far are still returned.
func submit(s submitter, tasks []workloadTask) ([]string, error) {
	ids := make([]string, 0, len(tasks))
	for i, t := range tasks {
		id, err := s.AddTask(t.Type, t.Payload, t.options()...)
		if err != nil {
			return ids, fmt.Errorf("submitting task %d (%s): %w", i, t.Type, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// taskSource looks up task state; implemented by *engine.Engine.
type taskSource interface {
	GetTask(id string) (scheduler.TaskInfo, bool)
}

// settled reports whether id will never run again: it finished, was
// cancelled, or depends (transitively) on a task that failed or was cancelled.
func settled(src taskSource, id string, seen map[string]bool) bool {
	if done, ok := seen[id]; ok {
		return done
	}
	seen[id] = false

	info, ok := src.GetTask(id)
	switch {
	case !ok, info.Status.IsTerminal():
		// Unknown IDs are cancelled tasks; they leave no record
		seen[id] = true
		return true
	case info.Task == nil:
		return false
	}

	// The whole workload is submitted up front, so a dependency the engine
	// does not know was cancelled and will never succeed
	for _, dep := range info.Task.Dependencies {
		depInfo, ok := src.GetTask(dep)
		if !ok || depInfo.Status == scheduler.TaskFailed || (depInfo.Status != scheduler.TaskCompleted && settled(src, dep, seen)) {
			seen[id] = true
			return true
		}
	}
	return false
}
