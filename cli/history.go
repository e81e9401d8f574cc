package cli

// This file contains the history command for listing previous runs.

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cxlmemsim/cxlbench/history"
	"github.com/cxlmemsim/cxlbench/model"
	"github.com/urfave/cli/v2"
)

// openLedger opens the history database for reading. It returns nil without
// error when the ledger is disabled or was never written.
func openLedger(ctx *cli.Context) (*history.Ledger, error) {
	path := resolveHistoryDB(ctx)
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return history.Open(path)
}

func (a *App) history(ctx *cli.Context) error {
	limit := ctx.Int("limit")

	ledger, err := openLedger(ctx)
	if err != nil {
		return err
	}
	if ledger == nil {
		fmt.Fprintln(a.out, "No history entries found")
		return nil
	}
	defer ledger.Close()

	entries, err := ledger.LoadEntries(ctx.Context, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No history entries found")
		return nil
	}

	fmt.Fprintf(a.out, "\n=== History (%d shown) ===\n\n", len(entries))

	for i, s := range entries {
		timestamp := s.StartedAt.Format("2006-01-02 15:04:05")
		elapsed := s.Elapsed.Round(time.Second)

		fmt.Fprintf(a.out, "%s  %d  %s  [%s]  %s  tasks=%d/%d  failed=%d  id=%s\n",
			statusMark(s.State, s.Failed), i, timestamp, elapsed, s.State, s.Attempted, s.Planned, s.Failed, shortID(s.ID))
		if len(s.Args) > 1 {
			fmt.Fprintf(a.out, "   Args: %s\n", strings.Join(s.Args[1:], " "))
		}
		if s.AbortedBy != "" {
			fmt.Fprintf(a.out, "   Aborted by: %s\n", s.AbortedBy)
		}
		if s.ArtifactRoot != "" {
			fmt.Fprintf(a.out, "   Artifacts: %s\n", s.ArtifactRoot)
		}
		if s.Git != nil && s.Git.Commit != "" {
			fmt.Fprintf(a.out, "   Commit: %s", shortID(s.Git.Commit))
			if s.Git.Branch != "" {
				fmt.Fprintf(a.out, " (%s)", s.Git.Branch)
			}
			fmt.Fprintln(a.out)
		}
	}
	fmt.Fprintln(a.out)

	return nil
}

func statusMark(state model.RunState, failed int) string {
	switch {
	case state == model.RunStateCompleted && failed == 0:
		return "✓"
	case state.Terminal():
		return "✗"
	}
	// The run never finished
	return "?"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
