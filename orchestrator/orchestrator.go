package orchestrator

// This file contains the run state machine that drives planned tasks through
// the process runner and finalizes the run records.

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cxlmemsim/cxlbench/artifact"
	"github.com/cxlmemsim/cxlbench/failure"
	"github.com/cxlmemsim/cxlbench/model"
	"github.com/cxlmemsim/cxlbench/plan"
	"github.com/cxlmemsim/cxlbench/runner"
	"github.com/rs/zerolog"
)

// Recorder persists run and task outcomes, e.g. the history ledger.
type Recorder interface {
	StartRun(ctx context.Context, summary *model.RunSummary) error
	RecordTask(ctx context.Context, rec model.TaskRecord) error
	FinishRun(ctx context.Context, summary *model.RunSummary) error
}

// Observer receives task and run outcomes for metrics.
type Observer interface {
	ObserveTask(rec model.TaskRecord)
	ObserveRun(summary *model.RunSummary)
	Flush() error
}

// Config holds the run-wide settings.
type Config struct {
	RunID string
	Args  []string
	Git   *model.Git
	Host  *model.Host

	Policy            failure.Policy
	Timeout           time.Duration
	CollectSystemInfo bool
	// RunLogPath is copied into the artifact root at the end of the run
	RunLogPath string
}

func (c Config) validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %s: must be positive", c.Timeout)
	}
	return nil
}

type Orchestrator struct {
	logger   zerolog.Logger
	store    *artifact.Store
	exec     artifact.Executor
	recorder Recorder
	observer Observer
	cfg      Config
	state    model.RunState
}

type Option func(*Orchestrator)

// WithRecorder persists every run and task through r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithObserver reports every run and task to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

func New(logger zerolog.Logger, store *artifact.Store, exec artifact.Executor, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger: logger,
		store:  store,
		exec:   exec,
		cfg:    cfg,
		state:  model.RunStateInit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state of the run.
func (o *Orchestrator) State() model.RunState {
	return o.state
}

func (o *Orchestrator) transition(summary *model.RunSummary, to model.RunState) {
	o.logger.Debug().Str("from", string(o.state)).Str("to", string(to)).Msg("Run state transition")
	o.state = to
	summary.State = to
}

// Run executes the tasks strictly in order. It returns the finalized summary;
// an aborted run is reported through the summary, not as an error. Errors are
// returned when the run cannot start or its records cannot be written.
func (o *Orchestrator) Run(ctx context.Context, tasks []plan.Task) (*model.RunSummary, error) {
	if o.state != model.RunStateInit {
		return nil, fmt.Errorf("run already started (state %s)", o.state)
	}
	if err := o.cfg.validate(); err != nil {
		return nil, err
	}
	if o.store.Root() == "" {
		return nil, errors.New("no artifact root configured")
	}

	start := time.Now()
	summary := &model.RunSummary{
		ID:           o.cfg.RunID,
		StartedAt:    start,
		Args:         o.cfg.Args,
		ArtifactRoot: o.store.Root(),
		State:        model.RunStateInit,
		Planned:      len(tasks),
		Git:          o.cfg.Git,
		Host:         o.cfg.Host,
	}

	if err := o.store.Init(); err != nil {
		return nil, err
	}

	o.logger.Info().Str("id", summary.ID).Int("tasks", len(tasks)).Str("artifact_dir", summary.ArtifactRoot).Msg("Starting run")

	if o.recorder != nil {
		if err := o.recorder.StartRun(ctx, summary); err != nil {
			o.logger.Warn().Err(err).Msg("Failed to record run start")
		}
	}

	if o.cfg.CollectSystemInfo {
		o.transition(summary, model.RunStateCollectingSystemInfo)
		o.collectSystemInfo(ctx)
	}

	o.transition(summary, model.RunStateIterating)
	runErr := o.iterate(ctx, summary, tasks)

	return summary, errors.Join(runErr, o.finish(ctx, summary, start))
}

func (o *Orchestrator) collectSystemInfo(ctx context.Context) {
	o.logger.Info().Msg("Collecting system information")

	failures := o.store.CollectSystemInfo(ctx, o.exec, o.cfg.Timeout)
	files := make([]string, 0, len(failures))
	for file := range failures {
		files = append(files, file)
	}
	slices.Sort(files)
	for _, file := range files {
		o.logger.Warn().Err(failures[file]).Str("file", file).Msg("Failed to collect system information")
	}
}

func (o *Orchestrator) iterate(ctx context.Context, summary *model.RunSummary, tasks []plan.Task) error {
	total := len(tasks)

	for i, task := range tasks {
		seq := i + 1

		if err := ctx.Err(); err != nil {
			o.logger.Error().Err(err).Msgf("Run interrupted before task %d/%d", seq, total)
			summary.Aborted = true
			return nil
		}

		logger := o.logger.With().
			Str("workload", task.Workload).
			Str("program", task.Program).
			Str("policy", task.PolicyName()).
			Logger()

		logger.Info().Str("kind", string(task.Kind)).Msgf("Running task %d/%d", seq, total)

		if _, err := o.store.EnsureDir(task.Workload, task.Program); err != nil {
			summary.Aborted = true
			summary.AbortedBy = task.Key()
			return fmt.Errorf("task %s: %w", task.Key(), err)
		}

		started := time.Now()
		res := o.exec.Run(ctx, task.Command, o.cfg.Timeout, task.LogPath)

		summary.Attempted++
		if res.Failed() {
			summary.Failed++
		} else {
			summary.Succeeded++
		}

		rec := model.TaskRecord{
			RunID:    summary.ID,
			Seq:      seq,
			Workload: task.Workload,
			Program:  task.Program,
			Kind:     task.Kind,
			Policy:   task.PolicyName(),
			LogPath:  task.LogPath,
			Outcome:  res.Outcome.String(),
			ExitCode: res.ExitCode,
			Duration: res.Duration,
			Started:  started,
		}
		o.record(ctx, rec)

		o.logResult(logger, res)

		if failure.Decide(res, o.cfg.Policy) == failure.Abort {
			summary.Aborted = true
			summary.AbortedBy = task.Key()
			logger.Error().Str("task", task.Key()).Msgf("Aborting run after task %d/%d", seq, total)
			return nil
		}
	}

	return nil
}

func (o *Orchestrator) record(ctx context.Context, rec model.TaskRecord) {
	if o.recorder != nil {
		// The ledger entry is written even when the run is being interrupted
		if err := o.recorder.RecordTask(context.WithoutCancel(ctx), rec); err != nil {
			o.logger.Warn().Err(err).Int("seq", rec.Seq).Msg("Failed to record task")
		}
	}
	if o.observer != nil {
		o.observer.ObserveTask(rec)
	}
}

func (o *Orchestrator) logResult(logger zerolog.Logger, res runner.Result) {
	switch {
	case !res.Failed():
		logger.Info().Dur("duration", res.Duration).Msg("Task succeeded")
	case o.cfg.Policy.IgnoreErrors && res.Outcome != runner.Interrupted:
		logger.Warn().Err(res.Err).Str("outcome", res.Describe()).Dur("duration", res.Duration).Msg("Task failed, ignoring")
	default:
		logger.Error().Err(res.Err).Str("outcome", res.Describe()).Int("exit_code", res.ExitCode).Dur("duration", res.Duration).Msg("Task failed")
	}
}

func (o *Orchestrator) finish(ctx context.Context, summary *model.RunSummary, start time.Time) error {
	summary.Elapsed = time.Since(start)
	if summary.Aborted {
		o.transition(summary, model.RunStateAborted)
	} else {
		o.transition(summary, model.RunStateCompleted)
	}

	event := o.logger.Info()
	if summary.Aborted {
		event = o.logger.Warn().Str("aborted_by", summary.AbortedBy).Int("remaining", summary.Remaining())
	}
	event.
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msgf("Run %s, total time: %s", summary.State, FormatElapsed(summary.Elapsed))

	var errs []error

	if o.cfg.RunLogPath != "" {
		if err := o.store.CopyRunLog(o.cfg.RunLogPath); err != nil {
			errs = append(errs, fmt.Errorf("failed to copy run log: %w", err))
		}
	}

	if err := o.store.WriteSummary(summary); err != nil {
		errs = append(errs, err)
	}

	if o.observer != nil {
		o.observer.ObserveRun(summary)
		if err := o.observer.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}

	if o.recorder != nil {
		if err := o.recorder.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
			o.logger.Warn().Err(err).Msg("Failed to record run end")
		}
	}

	return errors.Join(errs...)
}

// FormatElapsed renders a duration as hours, minutes and whole seconds,
// e.g. "1h2m3s".
func FormatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%dh%dm%ds", h, m, d/time.Second)
}
