// Package plan expands the workload catalog and the policy matrix into the
// ordered list of tasks a run executes.
package plan

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cxlmemsim/cxlbench/artifact"
	"github.com/cxlmemsim/cxlbench/catalog"
	"github.com/cxlmemsim/cxlbench/model"
	"github.com/cxlmemsim/cxlbench/policy"
	"github.com/cxlmemsim/cxlbench/runner"
	"github.com/cxlmemsim/cxlbench/sim"
	"github.com/rs/zerolog"
)

// ErrDuplicateLogPath is returned when two planned tasks would write the
// same artifact.
var ErrDuplicateLogPath = errors.New("duplicate log path")

// Task is one planned execution.
type Task struct {
	Workload string
	Program  string
	Kind     model.TaskKind
	// Policy is nil for baseline tasks and policy.Default for simulated
	// tasks without override.
	Policy  *policy.Combination
	Command runner.Command
	LogPath string
}

// Key identifies the task within a run, e.g. "gapbs/bfs/cxlmemsim_numa_none_none_none".
func (t Task) Key() string {
	return t.Workload + "/" + t.Program + "/" + strings.TrimSuffix(artifact.LogName(t.Policy), ".txt")
}

// PolicyName returns the joined policy names, or "" when the task runs
// without policy override.
func (t Task) PolicyName() string {
	if t.Policy == nil || t.Policy.IsDefault() {
		return ""
	}
	return t.Policy.String()
}

// Config selects what a run executes.
type Config struct {
	// ArtifactRoot is the directory the task logs are placed under
	ArtifactRoot string
	// Workloads and Programs restrict the catalog by exact name; empty
	// selects everything.
	Workloads []string
	Programs  []string
	// RunOriginal plans one baseline task per program
	RunOriginal bool
	// RunSimulated plans one simulated task per program and combination
	RunSimulated bool
	// Matrix enumerates the policy combinations; nil means policy.Single()
	Matrix *policy.Matrix
	// Sim holds the simulator settings shared by every simulated task;
	// Target and Policy are filled in per task.
	Sim sim.Options
}

// Planner produces execution plans from an immutable catalog.
type Planner struct {
	logger  zerolog.Logger
	catalog *catalog.Catalog
	cfg     Config
}

// New creates a Planner.
func New(logger zerolog.Logger, cat *catalog.Catalog, cfg Config) *Planner {
	if cfg.Matrix == nil {
		cfg.Matrix = policy.Single()
	}
	return &Planner{logger: logger, catalog: cat, cfg: cfg}
}

// Plan returns the tasks in execution order: workloads in catalog order,
// programs in declared order, the baseline task first and then one
// simulated task per policy combination in matrix order.
func (p *Planner) Plan() ([]Task, error) {
	var tasks []Task
	seen := make(map[string]string)
	matchedWorkloads := make(map[string]bool)
	matchedPrograms := make(map[string]bool)

	for _, w := range p.catalog.Workloads() {
		if len(p.cfg.Workloads) > 0 && !slices.Contains(p.cfg.Workloads, w.Name) {
			p.logger.Info().Str("workload", w.Name).Msg("Skipping workload")
			continue
		}
		matchedWorkloads[w.Name] = true

		for _, program := range w.Programs {
			if len(p.cfg.Programs) > 0 && !slices.Contains(p.cfg.Programs, program) {
				p.logger.Info().Str("workload", w.Name).Str("program", program).Msg("Skipping program")
				continue
			}
			matchedPrograms[program] = true

			programTasks, err := p.programTasks(w, program)
			if err != nil {
				return nil, err
			}

			for _, t := range programTasks {
				if prev, ok := seen[t.LogPath]; ok {
					return nil, fmt.Errorf("%w: %s and %s both write %s", ErrDuplicateLogPath, prev, t.Key(), t.LogPath)
				}
				seen[t.LogPath] = t.Key()
				tasks = append(tasks, t)
			}
		}
	}

	p.warnUnmatched("workload", p.cfg.Workloads, matchedWorkloads)
	p.warnUnmatched("program", p.cfg.Programs, matchedPrograms)

	return tasks, nil
}

func (p *Planner) programTasks(w catalog.Workload, program string) ([]Task, error) {
	args, err := w.ResolveArgs(program)
	if err != nil {
		return nil, err
	}
	programPath := w.ProgramPath(program)

	var tasks []Task

	if p.cfg.RunOriginal {
		tasks = append(tasks, Task{
			Workload: w.Name,
			Program:  program,
			Kind:     model.TaskKindBaseline,
			Command: runner.Command{
				Path: programPath,
				Args: args,
				Env:  w.Env,
			},
			LogPath: artifact.LogPath(p.cfg.ArtifactRoot, w.Name, program, nil),
		})
	}

	if p.cfg.RunSimulated {
		for combo := range p.cfg.Matrix.All() {
			opts := p.cfg.Sim
			opts.Target = append([]string{programPath}, args...)
			opts.Policy = combo

			tasks = append(tasks, Task{
				Workload: w.Name,
				Program:  program,
				Kind:     model.TaskKindSimulated,
				Policy:   &combo,
				Command: runner.Command{
					Path: opts.Binary,
					Args: sim.BuildArgs(opts),
					Env:  w.Env,
				},
				LogPath: artifact.LogPath(p.cfg.ArtifactRoot, w.Name, program, &combo),
			})
		}
	}

	return tasks, nil
}

func (p *Planner) warnUnmatched(kind string, filter []string, matched map[string]bool) {
	for _, name := range filter {
		if !matched[name] {
			p.logger.Warn().Str(kind, name).Msgf("No %s matches the filter", kind)
		}
	}
}
