package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cxlmemsim/cxlbench/model"
	"github.com/stretchr/testify/require"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func summary(id string, started time.Time) *model.RunSummary {
	return &model.RunSummary{
		ID:           id,
		StartedAt:    started,
		Args:         []string{"cxlbench", "run", "--run-original"},
		ArtifactRoot: "/art",
		State:        model.RunStateInit,
		Planned:      3,
		Git:          &model.Git{Commit: "0123456789abcdef", Branch: "main"},
		Host:         &model.Host{Hostname: "node1", OS: "linux", Arch: "amd64"},
	}
}

func TestLedger_RunRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	started := time.Date(2025, 3, 1, 12, 0, 0, 42, time.UTC)
	s := summary("aa11", started)
	require.NoError(t, l.StartRun(ctx, s))

	s.State = model.RunStateAborted
	s.Attempted = 2
	s.Succeeded = 1
	s.Failed = 1
	s.Aborted = true
	s.AbortedBy = "demo/a/orig"
	s.Elapsed = 90 * time.Second
	require.NoError(t, l.FinishRun(ctx, s))

	entries, err := l.LoadEntries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	require.True(t, started.Equal(got.StartedAt))
	got.StartedAt = s.StartedAt
	require.Equal(t, *s, got)
}

func TestLedger_EntriesNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, l.StartRun(ctx, summary(id, base.Add(time.Duration(i)*time.Hour))))
	}

	entries, err := l.LoadEntries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "third", entries[0].ID)
	require.Equal(t, "first", entries[2].ID)

	entries, err = l.LoadEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "second", entries[1].ID)
}

func TestLedger_Tasks(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, l.StartRun(ctx, summary("run1", started)))

	records := []model.TaskRecord{
		{RunID: "run1", Seq: 2, Workload: "demo", Program: "a", Kind: model.TaskKindSimulated, Policy: "numa_none_none_none",
			LogPath: "/art/demo/a/cxlmemsim_numa_none_none_none.txt", Outcome: "timeout", ExitCode: -1, Duration: time.Hour, Started: started.Add(time.Minute)},
		{RunID: "run1", Seq: 1, Workload: "demo", Program: "a", Kind: model.TaskKindBaseline,
			LogPath: "/art/demo/a/orig.txt", Outcome: "success", Duration: time.Minute, Started: started},
	}
	for _, rec := range records {
		require.NoError(t, l.RecordTask(ctx, rec))
	}

	got, err := l.LoadTasks(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].Seq)
	require.Equal(t, "", got[0].Policy)
	require.Equal(t, model.TaskKindSimulated, got[1].Kind)
	require.Equal(t, "numa_none_none_none", got[1].Policy)
	require.Equal(t, "timeout", got[1].Outcome)
	require.Equal(t, -1, got[1].ExitCode)
	require.Equal(t, time.Hour, got[1].Duration)
	require.True(t, records[0].Started.Equal(got[1].Started))

	got, err = l.LoadTasks(ctx, "unknown")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLedger_TaskRequiresRun(t *testing.T) {
	l := openLedger(t)
	err := l.RecordTask(context.Background(), model.TaskRecord{RunID: "missing", Seq: 1, Workload: "w", Program: "p", Kind: model.TaskKindBaseline, Outcome: "success"})
	require.Error(t, err)
}

func TestLedger_FindRun(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"abc123", "abd456", "a_c789"} {
		require.NoError(t, l.StartRun(ctx, summary(id, base.Add(time.Duration(i)*time.Second))))
	}

	s, err := l.FindRun(ctx, "ABC")
	require.NoError(t, err)
	require.Equal(t, "abc123", s.ID)

	s, err = l.FindRun(ctx, "a_")
	require.NoError(t, err)
	require.Equal(t, "a_c789", s.ID)

	_, err = l.FindRun(ctx, "ab")
	require.ErrorContains(t, err, "ambiguous")

	_, err = l.FindRun(ctx, "zz")
	require.True(t, errors.Is(err, ErrNotFound))

	_, err = l.FindRun(ctx, "")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestLedger_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.StartRun(ctx, summary("persisted", time.Now())))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()

	entries, err := l.LoadEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "persisted", entries[0].ID)
}
