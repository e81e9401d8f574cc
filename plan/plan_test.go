package plan

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cxlmemsim/cxlbench/catalog"
	"github.com/cxlmemsim/cxlbench/model"
	"github.com/cxlmemsim/cxlbench/policy"
	"github.com/cxlmemsim/cxlbench/sim"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func demoCatalog(t testing.TB) *catalog.Catalog {
	cat, err := catalog.New([]catalog.Workload{
		{Name: "demo", Path: "/opt/demo", Programs: []string{"a", "b"}, Args: "-n 1", Env: map[string]string{"OMP_NUM_THREADS": "4"}},
		{Name: "other", Path: "/opt/other", Programs: []string{"c"}},
	})
	require.NoError(t, err)
	return cat
}

func defaultSim() sim.Options {
	return sim.Options{
		Binary:     sim.DefaultBinary,
		PEBSPeriod: sim.DefaultPEBSPeriod,
		Latency:    sim.DefaultLatency,
		Bandwidth:  sim.DefaultBandwidth,
	}
}

func logPaths(tasks []Task) []string {
	paths := make([]string, 0, len(tasks))
	for _, task := range tasks {
		paths = append(paths, task.LogPath)
	}
	return paths
}

func TestPlan_BaselineOnly(t *testing.T) {
	p := New(zerolog.Nop(), demoCatalog(t), Config{
		ArtifactRoot: "/art",
		Workloads:    []string{"demo"},
		RunOriginal:  true,
		Sim:          defaultSim(),
	})

	tasks, err := p.Plan()
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.FromSlash("/art/demo/a/orig.txt"),
		filepath.FromSlash("/art/demo/b/orig.txt"),
	}, logPaths(tasks))

	first := tasks[0]
	require.Equal(t, model.TaskKindBaseline, first.Kind)
	require.Nil(t, first.Policy)
	require.Equal(t, "", first.PolicyName())
	require.Equal(t, "demo/a/orig", first.Key())
	require.Equal(t, filepath.FromSlash("/opt/demo/a"), first.Command.Path)
	require.Equal(t, []string{"-n", "1"}, first.Command.Args)
	require.Equal(t, map[string]string{"OMP_NUM_THREADS": "4"}, first.Command.Env)
}

func TestPlan_PolicySweep(t *testing.T) {
	m, err := policy.NewMatrix(policy.Sets{
		Allocation: []string{"none", "numa"},
		Migration:  []string{"none"},
		Paging:     []string{"none"},
		Caching:    []string{"none"},
	})
	require.NoError(t, err)

	p := New(zerolog.Nop(), demoCatalog(t), Config{
		ArtifactRoot: "/art",
		Workloads:    []string{"demo"},
		Programs:     []string{"a"},
		RunSimulated: true,
		Matrix:       m,
		Sim:          defaultSim(),
	})

	tasks, err := p.Plan()
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.FromSlash("/art/demo/a/cxlmemsim_none_none_none_none.txt"),
		filepath.FromSlash("/art/demo/a/cxlmemsim_numa_none_none_none.txt"),
	}, logPaths(tasks))

	numa := tasks[1]
	require.Equal(t, model.TaskKindSimulated, numa.Kind)
	require.Equal(t, "numa_none_none_none", numa.PolicyName())
	require.Equal(t, "demo/a/cxlmemsim_numa_none_none_none", numa.Key())
	require.Equal(t, sim.DefaultBinary, numa.Command.Path)
	require.Equal(t, []string{
		"-t", filepath.FromSlash("/opt/demo/a") + " -n 1",
		"-p", "10",
		"-l", sim.DefaultLatency,
		"-b", sim.DefaultBandwidth,
		"-k", "numa,none,none,none",
	}, numa.Command.Args)

	// Each task owns its combination
	require.Equal(t, "none", tasks[0].Policy.Allocation)
	require.Equal(t, "numa", tasks[1].Policy.Allocation)
}

func TestPlan_BothPhasesOrder(t *testing.T) {
	p := New(zerolog.Nop(), demoCatalog(t), Config{
		ArtifactRoot: "/art",
		RunOriginal:  true,
		RunSimulated: true,
		Sim:          defaultSim(),
	})

	tasks, err := p.Plan()
	require.NoError(t, err)

	var keys []string
	for _, task := range tasks {
		keys = append(keys, task.Key())
	}
	require.Equal(t, []string{
		"demo/a/orig", "demo/a/cxlmemsim",
		"demo/b/orig", "demo/b/cxlmemsim",
		"other/c/orig", "other/c/cxlmemsim",
	}, keys)

	// No -k without a policy override
	require.NotContains(t, tasks[1].Command.Args, "-k")
	require.Equal(t, "", tasks[1].PolicyName())
}

func TestPlan_NoPhases(t *testing.T) {
	p := New(zerolog.Nop(), demoCatalog(t), Config{ArtifactRoot: "/art", Sim: defaultSim()})

	tasks, err := p.Plan()
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestPlan_UnmatchedFilters(t *testing.T) {
	var buf bytes.Buffer
	p := New(zerolog.New(&buf), demoCatalog(t), Config{
		ArtifactRoot: "/art",
		Workloads:    []string{"other", "missing"},
		Programs:     []string{"c", "nope"},
		RunOriginal:  true,
		Sim:          defaultSim(),
	})

	tasks, err := p.Plan()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "other/c/orig", tasks[0].Key())

	out := buf.String()
	require.Contains(t, out, `"workload":"missing"`)
	require.Contains(t, out, `"program":"nope"`)
	require.Contains(t, out, "No workload matches the filter")
	require.Contains(t, out, "Skipping workload")
}

func TestPlan_DuplicateLogPath(t *testing.T) {
	cat, err := catalog.New([]catalog.Workload{
		{Name: "x/y", Path: "/opt/x", Programs: []string{"z"}},
		{Name: "x/./y", Path: "/opt/x", Programs: []string{"z"}},
	})
	require.NoError(t, err)

	p := New(zerolog.Nop(), cat, Config{ArtifactRoot: "/art", RunOriginal: true, Sim: defaultSim()})
	_, err = p.Plan()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDuplicateLogPath))
}

func drawSet(t *rapid.T, d policy.Dimension) []string {
	return rapid.SliceOfDistinct(rapid.SampledFrom(policy.Vocabulary(d)), func(s string) string { return s }).Draw(t, d.String())
}

func TestPlan_LogPathsAreDistinct(t *testing.T) {
	cat := demoCatalog(t)

	rapid.Check(t, func(t *rapid.T) {
		m, err := policy.NewMatrix(policy.Sets{
			Allocation: drawSet(t, policy.Allocation),
			Migration:  drawSet(t, policy.Migration),
			Paging:     drawSet(t, policy.Paging),
			Caching:    drawSet(t, policy.Caching),
		})
		if err != nil {
			t.Fatalf("NewMatrix: %v", err)
		}
		original := rapid.Bool().Draw(t, "original")
		simulated := rapid.Bool().Draw(t, "simulated")

		p := New(zerolog.Nop(), cat, Config{
			ArtifactRoot: "/art",
			RunOriginal:  original,
			RunSimulated: simulated,
			Matrix:       m,
			Sim:          defaultSim(),
		})
		tasks, err := p.Plan()
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}

		perProgram := 0
		if original {
			perProgram++
		}
		if simulated {
			perProgram += m.Len()
		}
		if want := 3 * perProgram; len(tasks) != want {
			t.Fatalf("got %d tasks, want %d", len(tasks), want)
		}

		seen := make(map[string]bool, len(tasks))
		for _, task := range tasks {
			if seen[task.LogPath] {
				t.Fatalf("log path %s planned twice", task.LogPath)
			}
			seen[task.LogPath] = true
		}
	})
}
