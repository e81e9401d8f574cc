package cli

// This file contains the run command executing the workload catalog.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/cxlmemsim/cxlbench/artifact"
	"github.com/cxlmemsim/cxlbench/artifact/objstore"
	"github.com/cxlmemsim/cxlbench/catalog"
	"github.com/cxlmemsim/cxlbench/failure"
	"github.com/cxlmemsim/cxlbench/history"
	"github.com/cxlmemsim/cxlbench/metrics"
	"github.com/cxlmemsim/cxlbench/model"
	"github.com/cxlmemsim/cxlbench/orchestrator"
	"github.com/cxlmemsim/cxlbench/plan"
	"github.com/cxlmemsim/cxlbench/policy"
	"github.com/cxlmemsim/cxlbench/runner"
	"github.com/cxlmemsim/cxlbench/sim"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const historyFile = "history.db"

// runOptions is the fully resolved configuration of a run, with every
// default applied.
type runOptions struct {
	workloads         []string
	programs          []string
	runOriginal       bool
	runSimulated      bool
	collectSystemInfo bool
	matrix            *policy.Matrix
	sim               sim.Options
	policy            failure.Policy
	timeout           time.Duration

	logFile      string
	artifactDir  string
	catalogPath  string
	envFile      string
	historyDB    string
	metricsFile  string
	streamOutput bool
	dryRun       bool
	upload       objstore.Config
}

// resolveRunOptions reads the run flags and applies the defaults: without a
// phase flag both phases run, and a policy sweep over a dimension without
// selection covers the full vocabulary.
func resolveRunOptions(ctx *cli.Context) (*runOptions, error) {
	opts := &runOptions{
		workloads:         ctx.StringSlice("workloads"),
		programs:          ctx.StringSlice("programs"),
		runOriginal:       ctx.Bool("run-original"),
		runSimulated:      ctx.Bool("run-cxlmemsim"),
		collectSystemInfo: ctx.Bool("collect-system-info"),
		policy: failure.Policy{
			IgnoreErrors: ctx.Bool("ignore-errors"),
			StopOnError:  ctx.Bool("stop-on-error"),
		},
		logFile:      ctx.String("log-file"),
		artifactDir:  ctx.String("artifact-dir"),
		catalogPath:  ctx.String("catalog"),
		envFile:      ctx.String("env-file"),
		metricsFile:  ctx.String("metrics-file"),
		streamOutput: ctx.Bool("stream-output"),
		dryRun:       ctx.Bool("dry-run"),
		upload: objstore.Config{
			Endpoint:  ctx.String("upload-endpoint"),
			Bucket:    ctx.String("upload-bucket"),
			Prefix:    ctx.String("upload-prefix"),
			AccessKey: ctx.String("upload-access-key"),
			SecretKey: ctx.String("upload-secret-key"),
			Insecure:  ctx.Bool("upload-insecure"),
		},
	}

	if !opts.runOriginal && !opts.runSimulated {
		opts.runOriginal = true
		opts.runSimulated = true
	}

	if opts.artifactDir == "" {
		return nil, errors.New("artifact directory must not be empty")
	}
	opts.historyDB = resolveHistoryDB(ctx)

	timeout := ctx.Int("timeout")
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid timeout %d: must be a positive number of seconds", timeout)
	}
	opts.timeout = time.Duration(timeout) * time.Second

	pebs := ctx.Int("pebs-period")
	if pebs <= 0 {
		return nil, fmt.Errorf("invalid pebs period %d: must be positive", pebs)
	}
	latency, err := sim.ParseTuning("latency", ctx.String("latency"))
	if err != nil {
		return nil, err
	}
	bandwidth, err := sim.ParseTuning("bandwidth", ctx.String("bandwidth"))
	if err != nil {
		return nil, err
	}
	opts.sim = sim.Options{
		Binary:     ctx.String("cxlmemsim"),
		PEBSPeriod: pebs,
		Latency:    latency,
		Bandwidth:  bandwidth,
	}

	sets := policy.Sets{
		Allocation: ctx.StringSlice(sim.PolicyFlagName(policy.Allocation)),
		Migration:  ctx.StringSlice(sim.PolicyFlagName(policy.Migration)),
		Paging:     ctx.StringSlice(sim.PolicyFlagName(policy.Paging)),
		Caching:    ctx.StringSlice(sim.PolicyFlagName(policy.Caching)),
	}
	// Policy names are checked even when the sweep is off
	matrix, err := policy.NewMatrix(sets)
	if err != nil {
		return nil, err
	}
	if ctx.Bool("run-policy-combinations") {
		opts.matrix = matrix
	} else {
		opts.matrix = policy.Single()
	}

	return opts, nil
}

// resolveHistoryDB returns the ledger path, or "" when the ledger is
// disabled.
func resolveHistoryDB(ctx *cli.Context) string {
	switch p := ctx.String("history-db"); p {
	case "-":
		return ""
	case "":
		return filepath.Join(ctx.String("artifact-dir"), historyFile)
	default:
		return p
	}
}

// baseEnvironment returns the process environment overlaid with the dotenv
// file, if any.
func baseEnvironment(envFile string) (map[string]string, error) {
	env := runner.EnvMap(os.Environ())
	if envFile == "" {
		return env, nil
	}

	overlay, err := godotenv.Read(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	for k, v := range overlay {
		env[k] = v
	}
	return env, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}

// runLogger returns a logger writing to the console and, when path is not
// empty, to the run log file. The returned function closes the file.
func (a *App) runLogger(path string) (zerolog.Logger, func(), error) {
	if path == "" {
		return a.logger, func() {}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return a.logger, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return a.logger, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	file := zerolog.ConsoleWriter{
		Out:        f,
		NoColor:    true,
		TimeFormat: time.RFC3339Nano,
	}
	logger := a.logger.Output(zerolog.MultiLevelWriter(a.console, file))
	return logger, func() { f.Close() }, nil
}

func (a *App) run(ctx *cli.Context) error {
	opts, err := resolveRunOptions(ctx)
	if err != nil {
		return err
	}

	// A dry run leaves the log of the previous run alone
	logFile := opts.logFile
	if opts.dryRun {
		logFile = ""
	}
	logger, closeLog, err := a.runLogger(logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	cat, err := loadCatalog(opts.catalogPath)
	if err != nil {
		return err
	}

	if opts.runSimulated && opts.matrix.Sweep() {
		logger.Info().Int("combinations", opts.matrix.Len()).Msg("Planning CXLMemSim runs")
	}

	tasks, err := plan.New(logger, cat, plan.Config{
		ArtifactRoot: opts.artifactDir,
		Workloads:    opts.workloads,
		Programs:     opts.programs,
		RunOriginal:  opts.runOriginal,
		RunSimulated: opts.runSimulated,
		Matrix:       opts.matrix,
		Sim:          opts.sim,
	}).Plan()
	if err != nil {
		return fmt.Errorf("failed to plan run: %w", err)
	}

	if opts.dryRun {
		a.printPlan(tasks)
		return nil
	}

	baseEnv, err := baseEnvironment(opts.envFile)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runnerOpts := []runner.Option{runner.WithBaseEnv(baseEnv)}
	if opts.streamOutput {
		runnerOpts = append(runnerOpts, runner.WithEcho(a.out))
	}
	exec := runner.New(logger, runnerOpts...)

	var orchOpts []orchestrator.Option

	var ledger *history.Ledger
	if opts.historyDB != "" {
		ledger, err = history.Open(opts.historyDB)
		if err != nil {
			return err
		}
		defer func() {
			if ledger != nil {
				ledger.Close()
			}
		}()
		orchOpts = append(orchOpts, orchestrator.WithRecorder(ledger))
	}

	if opts.metricsFile != "" {
		orchOpts = append(orchOpts, orchestrator.WithObserver(metrics.New(opts.metricsFile)))
	}

	var uploader *objstore.Client
	if opts.upload.Enabled() {
		uploader, err = objstore.NewClient(logger, opts.upload)
		if err != nil {
			return err
		}
	}

	o := orchestrator.New(logger, artifact.New(logger, opts.artifactDir), exec, orchestrator.Config{
		RunID:             uuid.NewString(),
		Args:              os.Args,
		Git:               a.getGitInfo(),
		Host:              hostInfo(),
		Policy:            opts.policy,
		Timeout:           opts.timeout,
		CollectSystemInfo: opts.collectSystemInfo,
		RunLogPath:        opts.logFile,
	}, orchOpts...)

	summary, err := o.Run(runCtx, tasks)
	if err != nil {
		return err
	}

	if ledger != nil {
		// Closing checkpoints the WAL so an upload sees a complete database
		if err := ledger.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close history database")
		}
		ledger = nil
	}

	if uploader != nil {
		uploadCtx := context.WithoutCancel(ctx.Context)
		if err := uploader.EnsureBucket(uploadCtx); err != nil {
			return err
		}
		if _, err := uploader.UploadTree(uploadCtx, opts.artifactDir, summary.ID); err != nil {
			return err
		}
	}

	if summary.Aborted {
		if summary.AbortedBy != "" {
			return fmt.Errorf("run aborted by %s after %d/%d tasks", summary.AbortedBy, summary.Attempted, summary.Planned)
		}
		return fmt.Errorf("run interrupted after %d/%d tasks", summary.Attempted, summary.Planned)
	}
	return nil
}

func (a *App) printPlan(tasks []plan.Task) {
	fmt.Fprintf(a.out, "%d tasks planned\n", len(tasks))
	for i, task := range tasks {
		fmt.Fprintf(a.out, "%d/%d %s\n", i+1, len(tasks), task.Key())
		fmt.Fprintf(a.out, "   Command: %s\n", task.Command)
		fmt.Fprintf(a.out, "   Log: %s\n", task.LogPath)
	}
}

func hostInfo() *model.Host {
	host := &model.Host{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
	if name, err := os.Hostname(); err == nil {
		host.Hostname = name
	}
	return host
}
