package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, []string{"gapbs", "memcached", "llama", "gromacs", "vsag", "microbench"}, c.Names())

	gapbs, ok := c.Lookup("gapbs")
	require.True(t, ok)
	require.Equal(t, []string{"bc", "bfs", "cc", "pr", "sssp", "tc"}, gapbs.Programs)
	require.Equal(t, filepath.Join("../workloads/gapbs", "bfs"), gapbs.ProgramPath("bfs"))

	args, err := gapbs.ResolveArgs("bfs")
	require.NoError(t, err)
	require.Equal(t, []string{"-g", "16", "-n", "1"}, args)

	micro, ok := c.Lookup("microbench")
	require.True(t, ok)
	args, err = micro.ResolveArgs("ld")
	require.NoError(t, err)
	require.Empty(t, args)
}

func TestDefault_QuotedArguments(t *testing.T) {
	llama, ok := Default().Lookup("llama")
	require.True(t, ok)

	args, err := llama.ResolveArgs("llama-cli")
	require.NoError(t, err)
	require.Contains(t, args, "<｜User｜>What is 1+1?<｜Assistant｜>")
	require.Equal(t, "-no-cnv", args[len(args)-1])

	vsag, ok := Default().Lookup("vsag")
	require.True(t, ok)
	args, err = vsag.ResolveArgs("python3")
	require.NoError(t, err)
	require.Contains(t, args, "['angular', 20, {'M': 24, 'ef_construction': 300, 'use_int8': 4, 'rs': 0.5}]")
	require.Equal(t, "[800]", args[len(args)-1])
}

func TestResolveArgs_Template(t *testing.T) {
	w := Workload{
		Name:     "demo",
		Path:     "/opt/demo",
		Programs: []string{"a"},
		Args:     `--input ${path}/data --name ${program} --keep '${HOME}'`,
	}

	args, err := w.ResolveArgs("a")
	require.NoError(t, err)
	require.Equal(t, []string{"--input", "/opt/demo/data", "--name", "a", "--keep", "${HOME}"}, args)
}

func TestResolveArgs_LiteralDollars(t *testing.T) {
	w := Workload{
		Name:     "demo",
		Path:     "/opt/demo",
		Programs: []string{"a"},
		Args:     `--price cost$5 --var $HOME --dir ${path}`,
	}

	args, err := w.ResolveArgs("a")
	require.NoError(t, err)
	require.Equal(t, []string{"--price", "cost$5", "--var", "$HOME", "--dir", "/opt/demo"}, args)
}

func TestResolveArgs_Unbalanced(t *testing.T) {
	w := Workload{Name: "demo", Path: "/opt/demo", Programs: []string{"a"}, Args: `--prompt 'unterminated`}
	_, err := w.ResolveArgs("a")
	require.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		workloads []Workload
		wantErr   string
	}{
		{
			name:      "missing name",
			workloads: []Workload{{Programs: []string{"a"}}},
			wantErr:   "without a name",
		},
		{
			name: "duplicate workload",
			workloads: []Workload{
				{Name: "demo", Programs: []string{"a"}},
				{Name: "demo", Programs: []string{"b"}},
			},
			wantErr: "duplicate workload",
		},
		{
			name:      "no programs",
			workloads: []Workload{{Name: "demo"}},
			wantErr:   "no programs",
		},
		{
			name:      "duplicate program",
			workloads: []Workload{{Name: "demo", Programs: []string{"a", "a"}}},
			wantErr:   "twice",
		},
		{
			name:      "program with path separator",
			workloads: []Workload{{Name: "demo", Programs: []string{"bin/a"}}},
			wantErr:   "invalid program name",
		},
		{
			name:      "bad args",
			workloads: []Workload{{Name: "demo", Programs: []string{"a"}, Args: `"open`}},
			wantErr:   "failed to parse arguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.workloads)
			require.ErrorIs(t, err, ErrInvalid)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	in := []Workload{{Name: "demo", Programs: []string{"a", "b"}, Env: map[string]string{"K": "v"}}}
	c, err := New(in)
	require.NoError(t, err)

	in[0].Programs[0] = "z"
	in[0].Env["K"] = "changed"

	w, ok := c.Lookup("demo")
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, w.Programs)
	require.Equal(t, "v", w.Env["K"])
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `workloads:
  - name: demo
    path: /opt/demo
    programs: [a, b]
    args: -n 1
    env:
      OMP_NUM_THREADS: "4"
  - name: other
    path: ./other
    programs:
      - c
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"demo", "other"}, c.Names())

	demo, _ := c.Lookup("demo")
	require.Equal(t, []string{"a", "b"}, demo.Programs)
	require.Equal(t, map[string]string{"OMP_NUM_THREADS": "4"}, demo.Env)

	_, ok := c.Lookup("missing")
	require.False(t, ok)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Parse([]byte("workloads: []\n"))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Parse([]byte("workloads: [\n"))
	require.Error(t, err)
}

func TestLoad_HCL(t *testing.T) {
	t.Setenv("CXLBENCH_TEST_ROOT", "/opt/workloads")

	path := filepath.Join(t.TempDir(), "catalog.hcl")
	content := `
workload "demo" {
  path     = "${env.CXLBENCH_TEST_ROOT}/demo"
  programs = ["a", "b"]
  args     = "-f $${path}/graph.sg -n 1"
  env      = { OMP_NUM_THREADS = "4" }
}

workload "other" {
  path     = "./other"
  programs = ["c"]
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"demo", "other"}, c.Names())

	demo, _ := c.Lookup("demo")
	require.Equal(t, "/opt/workloads/demo", demo.Path)
	require.Equal(t, map[string]string{"OMP_NUM_THREADS": "4"}, demo.Env)

	args, err := demo.ResolveArgs("a")
	require.NoError(t, err)
	require.Equal(t, []string{"-f", "/opt/workloads/demo/graph.sg", "-n", "1"}, args)

	other, _ := c.Lookup("other")
	require.Empty(t, other.Args)
	require.Empty(t, other.Env)
}

func TestParseHCL_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "syntax", content: `workload "demo" {`},
		{name: "missing programs", content: `workload "demo" { path = "/opt" }`},
		{name: "unknown variable", content: "workload \"demo\" {\n  path = missing.root\n  programs = [\"a\"]\n}\n"},
		{name: "empty", content: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHCL("catalog.hcl", []byte(tt.content))
			require.Error(t, err)
		})
	}
}
