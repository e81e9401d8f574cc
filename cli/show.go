package cli

// This file contains the show command for displaying the task outcomes of a
// previous run.

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cxlmemsim/cxlbench/history"
	"github.com/cxlmemsim/cxlbench/model"
	"github.com/urfave/cli/v2"
)

// parseShowArg interprets the run reference of the show command. Integers
// select runs by recency, 0 being the last; "-1" and "1" both select the 2nd
// last run. Anything else is an ID prefix.
func parseShowArg(arg string) (index int, idPrefix string) {
	if arg == "" {
		return 0, ""
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 0 {
			n = -n
		}
		return n, ""
	}
	return -1, arg
}

func (a *App) show(ctx *cli.Context) error {
	if ctx.NArg() > 1 {
		return fmt.Errorf("expected at most one run reference, got %d", ctx.NArg())
	}
	index, idPrefix := parseShowArg(ctx.Args().First())

	ledger, err := openLedger(ctx)
	if err != nil {
		return err
	}
	if ledger == nil {
		return fmt.Errorf("no history entries found")
	}
	defer ledger.Close()

	summary, err := findRun(ctx, ledger, index, idPrefix)
	if err != nil {
		return err
	}

	tasks, err := ledger.LoadTasks(ctx.Context, summary.ID)
	if err != nil {
		return err
	}

	a.displayRun(summary, tasks)
	return nil
}

func findRun(ctx *cli.Context, ledger *history.Ledger, index int, idPrefix string) (*model.RunSummary, error) {
	if idPrefix != "" {
		return ledger.FindRun(ctx.Context, idPrefix)
	}

	entries, err := ledger.LoadEntries(ctx.Context, index+1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no history entries found")
	}
	if index >= len(entries) {
		return nil, fmt.Errorf("index %d out of range (only %d history entries)", index, len(entries))
	}
	return &entries[index], nil
}

func (a *App) displayRun(s *model.RunSummary, tasks []model.TaskRecord) {
	fmt.Fprintf(a.out, "=== Run: %s ===\n", shortID(s.ID))
	fmt.Fprintf(a.out, "ID: %s\n", s.ID)
	fmt.Fprintf(a.out, "Time: %s\n", s.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(a.out, "Elapsed: %s\n", s.Elapsed.Round(time.Second))
	fmt.Fprintf(a.out, "State: %s\n", s.State)
	fmt.Fprintf(a.out, "Tasks: %d planned, %d attempted, %d succeeded, %d failed\n", s.Planned, s.Attempted, s.Succeeded, s.Failed)
	if s.AbortedBy != "" {
		fmt.Fprintf(a.out, "Aborted by: %s\n", s.AbortedBy)
	}
	if s.ArtifactRoot != "" {
		fmt.Fprintf(a.out, "Artifacts: %s\n", s.ArtifactRoot)
	}
	if s.Host != nil && s.Host.Hostname != "" {
		fmt.Fprintf(a.out, "Host: %s (%s/%s)\n", s.Host.Hostname, s.Host.OS, s.Host.Arch)
	}

	if len(tasks) == 0 {
		fmt.Fprintln(a.out, "\nNo tasks recorded")
		return
	}

	fmt.Fprintln(a.out)
	for _, t := range tasks {
		mark := "✓"
		if t.Outcome != "success" {
			mark = "✗"
		}
		name := t.Workload + "/" + t.Program + "/" + string(t.Kind)
		if t.Policy != "" {
			name += "/" + t.Policy
		}
		fmt.Fprintf(a.out, "%s %3d  %-16s  %-8s  %s\n", mark, t.Seq, t.Outcome, t.Duration.Round(time.Millisecond), name)
		fmt.Fprintf(a.out, "         %s\n", t.LogPath)
	}
}
