package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hasangilak/taskengine/internal/config"
	"github.com/hasangilak/taskengine/internal/engine"
	"github.com/hasangilak/taskengine/internal/logging"
	"github.com/hasangilak/taskengine/internal/persistence"
	"github.com/hasangilak/taskengine/internal/processor"
	"github.com/hasangilak/taskengine/internal/scheduler"
	"github.com/hasangilak/taskengine/internal/tui"
)

const (
	waitInterval        = 50 * time.Millisecond
	dashboardExitWindow = 10 * time.Second
)

// errTasksFailed makes the process exit non-zero when part of the workload failed.
var errTasksFailed = errors.New("tasks failed")

type runOptions struct {
	dashboard bool
	wait      bool
	logFile   string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <workload.json>",
		Short: "Submit a workload file and process it",
		Long: `Submit every task in a workload file to a fresh engine and process them.

The workload is a JSON array of tasks:

  [
    {"id": "fetch", "type": "exec", "payload": {"command": "curl", "args": ["-sO", "https://example.com"]}},
    {"type": "sleep", "payload": {"duration": "2s", "steps": 4}, "priority": 5, "dependencies": ["fetch"]}
  ]

Without --wait or --tui the engine runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd, map[string]string{
				"workers":          "workers",
				"cascade_failures": "cascade",
				"archive.enabled":  "archive",
			})
			if err != nil {
				return err
			}
			return opts.run(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
		},
	}

	f := cmd.Flags()
	f.Int("workers", 0, "number of workers (default from config)")
	f.Bool("cascade", false, "fail queued dependents when a dependency fails")
	f.Bool("archive", false, "archive results to the SQLite store")
	f.BoolVar(&opts.dashboard, "tui", false, "show the live dashboard")
	f.BoolVar(&opts.wait, "wait", false, "exit once every task in the workload has settled")
	f.StringVar(&opts.logFile, "log-file", filepath.Join(".taskengine", "taskengine.log"), "log destination while the dashboard is shown")

	return cmd
}

func (o *runOptions) newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	if o.dashboard {
		return logging.NewFile(cfg.Log, o.logFile)
	}
	return logging.New(cfg.Log)
}

func (o *runOptions) run(ctx context.Context, out io.Writer, cfg *config.Config, path string) error {
	tasks, err := loadWorkload(path)
	if err != nil {
		return err
	}

	logger, err := o.newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	restore := logging.Install(logger)
	defer restore()

	// Tracks exec subprocesses so shutdown can kill them
	pm := processor.NewProcessManager()

	e, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := processor.Register(e, pm); err != nil {
		return err
	}

	// Everything that listens on the bus subscribes before the first task is added
	var archiver *persistence.Archiver
	if cfg.Archive.Enabled {
		store, err := persistence.NewSQLiteStore(ctx, cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer store.Close()
		archiver = persistence.NewArchiver(store, e.Events(), logger)
	}

	var model tui.Model
	if o.dashboard {
		model = tui.New(e.Events(), e)
	}

	if err := e.Start(); err != nil {
		return err
	}
	ids, err := submit(e, tasks)
	if err != nil {
		_ = e.Stop()
		return err
	}
	logger.Infow("workload submitted", "path", path, "tasks", len(ids))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if archiver != nil {
		// Ends when the engine closes the bus, after the final results are saved
		g.Go(func() error { return archiver.Run(context.WithoutCancel(gctx)) })
	}
	if o.dashboard {
		g.Go(func() error {
			defer cancel()
			return runDashboard(gctx, model)
		})
	}
	if o.wait {
		g.Go(func() error {
			defer cancel()
			waitForTasks(gctx, e, ids, waitInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Infow("shutting down", "reason", context.Cause(gctx))

		// Kill all tracked subprocesses
		if err := pm.KillAll(); err != nil {
			logger.Warnw("error killing subprocesses", "error", err)
		}
		return e.Stop()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if archiver != nil {
		logger.Infow("archive closed", "saved", archiver.Saved(), "errors", archiver.Errors())
	}

	return printSummary(out, e, ids)
}

// runDashboard runs the Bubble Tea program until the user quits or ctx ends.
func runDashboard(ctx context.Context, model tui.Model) error {
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		p.Quit()

		// Wait for TUI to exit with timeout
		timer := time.NewTimer(dashboardExitWindow)
		defer timer.Stop()
		select {
		case err := <-errChan:
			return err
		case <-timer.C:
			return errors.New("dashboard did not exit in time")
		}
	}
}

// waitForTasks polls until every id has settled or ctx ends.
func waitForTasks(ctx context.Context, src taskSource, ids []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pending := slices.Clone(ids)
	for {
		seen := make(map[string]bool)
		pending = slices.DeleteFunc(pending, func(id string) bool {
			return settled(src, id, seen)
		})
		if len(pending) == 0 {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// printSummary reports the outcome of the workload after the engine stopped.
func printSummary(out io.Writer, src taskSource, ids []string) error {
	var completed, failed, unfinished int
	for _, id := range ids {
		info, ok := src.GetTask(id)
		switch {
		case ok && info.Status == scheduler.TaskCompleted:
			completed++
		case ok && info.Status == scheduler.TaskFailed:
			failed++
			fmt.Fprintf(out, "FAILED %s (%s): [%s] %s\n", id, info.Result.Type, info.Result.ErrorKind, info.Result.Error)
		default:
			unfinished++
		}
	}

	fmt.Fprintf(out, "%d tasks: %d completed, %d failed, %d unfinished\n", len(ids), completed, failed, unfinished)
	if failed > 0 {
		return fmt.Errorf("%d of %d: %w", failed, len(ids), errTasksFailed)
	}
	return nil
}
