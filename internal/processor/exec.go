package processor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hasangilak/taskengine/internal/scheduler"
)

// waitDelay bounds how long Wait blocks on pipes held open by grandchildren
// after the process group was killed.
const waitDelay = 2 * time.Second

// ExecPayload configures the exec processor.
type ExecPayload struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Dir     string   `json:"dir"`
	Env     []string `json:"env"` // KEY=VALUE pairs added to the inherited environment
}

// ExecResult is what a successful exec task returns.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Exec runs a payload's command as a subprocess in its own process group.
// Each stdout line is reported as progress.
type Exec struct {
	pm *ProcessManager
}

// NewExec creates the exec processor. A nil pm disables tracking.
func NewExec(pm *ProcessManager) *Exec {
	return &Exec{pm: pm}
}

// Handle is the scheduler.Handler for exec tasks.
func (e *Exec) Handle(ctx context.Context, task scheduler.Execution) (any, error) {
	var p ExecPayload
	if err := decode(task.Payload, &p); err != nil {
		return nil, err
	}
	if p.Command == "" {
		return nil, errors.New("invalid payload: command is required")
	}

	cmd := newCommand(ctx, p.Command, p.Args...)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}

	stdout, stderr, err := executeCommand(ctx, cmd, e.pm, func(line string) {
		task.Progress(line)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, err
	}

	return ExecResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   string(stdout),
		Stderr:   string(stderr),
	}, nil
}

// newCommand creates an exec.Cmd with process group isolation.
// The Setpgid: true flag puts the subprocess in its own process group, and
// cancelling ctx kills the whole group instead of only the direct child.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // Create new process group for signal propagation
	}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = waitDelay
	return cmd
}

// executeCommand runs cmd and returns its stdout and stderr. Both pipes are
// drained concurrently before cmd.Wait so output larger than the pipe buffer
// cannot deadlock the child. onLine, if set, is called for every stdout line.
// The process is tracked in pm while it runs.
func executeCommand(ctx context.Context, cmd *exec.Cmd, pm *ProcessManager, onLine func(string)) (stdout []byte, stderr []byte, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start command: %w", err)
	}
	if pm != nil {
		pm.Track(cmd)
		defer pm.Untrack(cmd)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		return readLines(stdoutPipe, &stdoutBuf, onLine)
	})
	g.Go(func() error {
		_, err := io.Copy(&stderrBuf, stderrPipe)
		return err
	})

	// Pipes must be fully drained before Wait closes them
	readErr := g.Wait()
	waitErr := cmd.Wait()

	stdout = stdoutBuf.Bytes()
	stderr = stderrBuf.Bytes()

	if waitErr != nil {
		if len(stderr) > 0 {
			return stdout, stderr, fmt.Errorf("command failed: %w (stderr: %s)", waitErr, strings.TrimSpace(string(stderr)))
		}
		return stdout, stderr, fmt.Errorf("command failed: %w", waitErr)
	}
	if readErr != nil && !errors.Is(readErr, os.ErrClosed) {
		return stdout, stderr, fmt.Errorf("reading command output: %w", readErr)
	}

	return stdout, stderr, nil
}

// readLines copies r into buf and hands each complete or trailing line to onLine.
func readLines(r io.Reader, buf *bytes.Buffer, onLine func(string)) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		buf.WriteString(line)
		if onLine != nil && line != "" {
			onLine(strings.TrimRight(line, "\r\n"))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// killProcessGroup kills the entire process group associated with the command.
// This ensures all child processes are terminated, not just the immediate subprocess.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}

	// Send SIGKILL to the entire process group (negative PID)
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process group: %w", err)
	}

	return nil
}

// ProcessManager tracks all running subprocesses and can terminate them all on shutdown.
//
// Usage pattern (typically in main):
//
//	pm := NewProcessManager()
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer cancel()
//	go func() {
//		<-ctx.Done()
//		pm.KillAll()
//	}()
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates a new ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		procs: make(map[int]*exec.Cmd),
	}
}

// Track registers a subprocess for tracking.
// Should be called after cmd.Start() when cmd.Process is available.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a subprocess from tracking.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll terminates all tracked subprocesses and their process groups.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of currently tracked processes.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
