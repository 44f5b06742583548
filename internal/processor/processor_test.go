package processor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hasangilak/taskengine/internal/config"
	"github.com/hasangilak/taskengine/internal/engine"
	"github.com/hasangilak/taskengine/internal/scheduler"
)

// progressLog collects progress values reported by a handler.
type progressLog struct {
	mu     sync.Mutex
	values []any
}

func (p *progressLog) report(v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *progressLog) all() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.values...)
}

func execution(payload any, attempt int, progress *progressLog) scheduler.Execution {
	var report func(any)
	if progress != nil {
		report = progress.report
	}
	return scheduler.NewExecution("task-1", "test", payload, attempt, 1, report)
}

func TestEcho(t *testing.T) {
	payload := map[string]any{"msg": "hi"}
	got, err := Echo(context.Background(), execution(payload, 1, nil))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSleep(t *testing.T) {
	tests := []struct {
		name         string
		payload      any
		wantProgress []any
		wantErr      string
	}{
		{"string duration with steps", map[string]any{"duration": "20ms", "steps": 4}, []any{25, 50, 75, 100}, ""},
		{"numeric duration", map[string]any{"duration": float64(time.Millisecond)}, nil, ""},
		{"typed payload", SleepPayload{Duration: time.Millisecond, Steps: 2}, []any{50, 100}, ""},
		{"nil payload", nil, nil, ""},
		{"negative", map[string]any{"duration": "-1s"}, nil, "negative duration"},
		{"unknown field", map[string]any{"duration": "1ms", "bogus": true}, nil, "invalid payload"},
		{"bad duration", map[string]any{"duration": "soon"}, nil, "invalid payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			progress := &progressLog{}
			got, err := Sleep(context.Background(), execution(tt.payload, 1, progress))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, got, "slept")
			assert.Equal(t, tt.wantProgress, progress.all())
		})
	}
}

func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Sleep(ctx, execution(map[string]any{"duration": "10s"}, 1, nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFail(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		attempt int
		wantErr string
	}{
		{"default message", nil, 1, "task failed on purpose"},
		{"custom message", map[string]any{"message": "disk full"}, 3, "disk full"},
		{"within failing attempts", map[string]any{"times": 2}, 2, "task failed on purpose"},
		{"after failing attempts", map[string]any{"times": 2}, 3, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fail(context.Background(), execution(tt.payload, tt.attempt, nil))
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"attempt": tt.attempt}, got)
		})
	}
}

func TestExecHandle(t *testing.T) {
	pm := NewProcessManager()
	handler := NewExec(pm).Handle

	progress := &progressLog{}
	got, err := handler(context.Background(), execution(map[string]any{
		"command": "bash",
		"args":    []any{"-c", "echo one; echo two; echo warn >&2; printf three"},
		"env":     []any{"TASKENGINE_TEST=1"},
	}, 1, progress))
	require.NoError(t, err)

	res, ok := got.(ExecResult)
	require.True(t, ok, "expected ExecResult, got %T", got)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "one\ntwo\nthree", res.Stdout)
	assert.Equal(t, "warn\n", res.Stderr)
	assert.Equal(t, []any{"one", "two", "three"}, progress.all())
	assert.Equal(t, 0, pm.Count(), "finished process must be untracked")
}

func TestExecEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	got, err := NewExec(nil).Handle(context.Background(), execution(map[string]any{
		"command": "bash",
		"args":    []any{"-c", "pwd; printenv TASKENGINE_TEST"},
		"dir":     dir,
		"env":     []any{"TASKENGINE_TEST=hello"},
	}, 1, nil))
	require.NoError(t, err)

	res := got.(ExecResult)
	assert.Equal(t, dir+"\nhello\n", res.Stdout)
}

func TestExecStringArgs(t *testing.T) {
	got, err := NewExec(nil).Handle(context.Background(), execution(map[string]any{
		"command": "echo",
		"args":    "a b c",
	}, 1, nil))
	require.NoError(t, err)
	assert.Equal(t, "a b c\n", got.(ExecResult).Stdout)
}

func TestExecPayloadErrors(t *testing.T) {
	handler := NewExec(nil).Handle

	_, err := handler(context.Background(), execution(nil, 1, nil))
	assert.ErrorContains(t, err, "command is required")

	_, err = handler(context.Background(), execution(map[string]any{"command": "/definitely/not/here"}, 1, nil))
	assert.ErrorContains(t, err, "failed to start command")
}

func TestExecNonZeroExit(t *testing.T) {
	_, err := NewExec(nil).Handle(context.Background(), execution(map[string]any{
		"command": "bash",
		"args":    []any{"-c", "echo partial; echo oops >&2; exit 3"},
	}, 1, nil))
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.Contains(t, err.Error(), "oops")
}

func TestExecCancellationKillsProcessGroup(t *testing.T) {
	pm := NewProcessManager()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewExec(pm).Handle(ctx, execution(map[string]any{
		"command": "bash",
		// The child keeps stdout open; killing only bash would leave Wait blocked
		"args": []any{"-c", "sleep 30 & sleep 30"},
	}, 1, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, pm.Count())
}

// TestExecuteCommand_ConcurrentPipeReading_LargeOutput verifies no deadlock on
// output larger than the pipe buffer.
func TestExecuteCommand_ConcurrentPipeReading_LargeOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 20000 lines of stdout and stderr, well above a 64KB pipe buffer
	cmd := newCommand(ctx, "bash", "-c", "for i in $(seq 1 20000); do echo line-$i; echo err-$i >&2; done")

	lines := 0
	stdout, stderr, err := executeCommand(ctx, cmd, nil, func(string) { lines++ })
	require.NoError(t, err)
	assert.Equal(t, 20000, lines)
	assert.Equal(t, 20000, strings.Count(string(stdout), "\n"))
	assert.Equal(t, 20000, strings.Count(string(stderr), "\n"))
}

// TestProcessManager_TrackAndKillAll verifies ProcessManager tracks and terminates processes.
func TestProcessManager_TrackAndKillAll(t *testing.T) {
	pm := NewProcessManager()

	cmd := newCommand(context.Background(), "sleep", "300")
	require.NoError(t, cmd.Start())

	pm.Track(cmd)
	assert.Equal(t, 1, pm.Count())

	require.NoError(t, pm.KillAll())

	err := cmd.Wait()
	require.Error(t, err, "expected process to be killed")

	pm.Untrack(cmd)
	assert.Equal(t, 0, pm.Count())
}

func TestProcessManager_UnstartedCommand(t *testing.T) {
	pm := NewProcessManager()
	pm.Track(exec.Command("true"))
	assert.Equal(t, 0, pm.Count())
	assert.NoError(t, pm.KillAll())
}

func TestRegisterOnEngine(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	cfg.Retry.Delay = time.Millisecond

	e, err := engine.New(cfg, engine.WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Stop() })

	require.NoError(t, Register(e, NewProcessManager()))
	require.NoError(t, e.Start())

	ids := map[string]string{}
	for typ, payload := range map[string]any{
		TypeEcho:  "hello",
		TypeSleep: map[string]any{"duration": "5ms", "steps": 1},
		TypeFail:  map[string]any{"times": 1},
		TypeExec:  map[string]any{"command": "echo", "args": []any{"from", "exec"}},
	} {
		id, err := e.AddTask(typ, payload)
		require.NoError(t, err)
		ids[typ] = id
	}

	for typ, id := range ids {
		require.Eventually(t, func() bool {
			info, ok := e.GetTask(id)
			return ok && info.Status == scheduler.TaskCompleted
		}, 5*time.Second, 10*time.Millisecond, fmt.Sprintf("%s task did not complete", typ))
	}

	info, _ := e.GetTask(ids[TypeFail])
	assert.Equal(t, 1, info.Result.Retries)
	info, _ = e.GetTask(ids[TypeExec])
	assert.Equal(t, "from exec\n", info.Result.Result.(ExecResult).Stdout)
}
