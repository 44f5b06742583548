package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hasangilak/taskengine/internal/persistence"
	"github.com/hasangilak/taskengine/internal/scheduler"
)

type historyOptions struct {
	taskType string
	tag      string
	status   string
	since    time.Duration
	limit    int
	prune    time.Duration
	asJSON   bool
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived task results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Archive.Path); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no archive at %s; run with --archive first", cfg.Archive.Path)
			}

			store, err := persistence.NewSQLiteStore(cmd.Context(), cfg.Archive.Path)
			if err != nil {
				return fmt.Errorf("opening archive: %w", err)
			}
			defer store.Close()

			return opts.run(cmd.Context(), cmd.OutOrStdout(), store)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.taskType, "type", "", "only results of this task type")
	f.StringVar(&opts.tag, "tag", "", "only results carrying this tag")
	f.StringVar(&opts.status, "status", "", "only completed or failed results")
	f.DurationVar(&opts.since, "since", 0, "only results completed within this window, e.g. 24h")
	f.IntVar(&opts.limit, "limit", 50, "show at most this many of the most recent results (0 for all)")
	f.DurationVar(&opts.prune, "prune", 0, "first delete results older than this, e.g. 720h")
	f.BoolVar(&opts.asJSON, "json", false, "print results as JSON")

	return cmd
}

func (o *historyOptions) run(ctx context.Context, out io.Writer, store persistence.Store) error {
	now := time.Now()

	if o.prune > 0 {
		n, err := store.DeleteBefore(ctx, now.Add(-o.prune))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pruned %d results\n", n)
	}

	filter := persistence.ListFilter{
		Type:   o.taskType,
		Tag:    o.tag,
		Status: scheduler.TaskStatus(o.status),
		Limit:  o.limit,
	}
	if o.since > 0 {
		filter.Since = now.Add(-o.since)
	}

	results, err := store.ListResults(ctx, filter)
	if err != nil {
		return err
	}

	if o.asJSON {
		return writeResultsJSON(out, results)
	}
	return writeResultsTable(out, results)
}

// historyEntry is the JSON shape of an archived result.
type historyEntry struct {
	TaskID      string              `json:"task_id"`
	Type        string              `json:"type"`
	Success     bool                `json:"success"`
	Result      any                 `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
	ErrorKind   scheduler.ErrorKind `json:"error_kind,omitempty"`
	Duration    string              `json:"duration"`
	WorkerID    int                 `json:"worker_id"`
	Retries     int                 `json:"retries"`
	CompletedAt time.Time           `json:"completed_at"`
	Tags        []string            `json:"tags,omitempty"`
}

func writeResultsJSON(out io.Writer, results []scheduler.TaskResult) error {
	entries := make([]historyEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, historyEntry{
			TaskID:      r.TaskID,
			Type:        r.Type,
			Success:     r.Success,
			Result:      r.Result,
			Error:       r.Error,
			ErrorKind:   r.ErrorKind,
			Duration:    r.Duration.String(),
			WorkerID:    r.WorkerID,
			Retries:     r.Retries,
			CompletedAt: r.CompletedAt,
			Tags:        r.Tags,
		})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func writeResultsTable(out io.Writer, results []scheduler.TaskResult) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(out, "no results")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tTYPE\tSTATUS\tDURATION\tRETRIES\tCOMPLETED\tERROR")
	for _, r := range results {
		status := scheduler.TaskCompleted
		errText := ""
		if !r.Success {
			status = scheduler.TaskFailed
			errText = fmt.Sprintf("[%s] %s", r.ErrorKind, r.Error)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.TaskID, r.Type, status, r.Duration.Round(time.Millisecond), r.Retries,
			r.CompletedAt.Local().Format(time.DateTime), errText)
	}
	return w.Flush()
}
