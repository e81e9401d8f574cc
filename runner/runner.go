// Package runner executes external commands with a bounded run time,
// captures their combined output and classifies how they ended.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
)

// DefaultWaitDelay bounds how long Run waits for output pipes to close once
// the child has exited or been killed.
const DefaultWaitDelay = 2 * time.Second

// Command is a fully resolved command: an executable, its argument vector
// and the environment overrides it needs.
type Command struct {
	Path string
	Args []string
	Env  map[string]string
	Dir  string
}

// String renders the command as a shell-quoted line for logging.
func (c Command) String() string {
	return shellescape.QuoteCommand(append([]string{c.Path}, c.Args...))
}

// Runner runs commands one at a time.
type Runner struct {
	logger    zerolog.Logger
	baseEnv   map[string]string
	echo      io.Writer
	waitDelay time.Duration
}

// Option is a function that configures a Runner.
type Option func(*Runner)

// WithBaseEnv replaces the base environment (by default the environment of
// the current process). Command overrides are applied on top of it.
func WithBaseEnv(env map[string]string) Option {
	return func(r *Runner) {
		r.baseEnv = env
	}
}

// WithEcho tees the live output of every command to w.
func WithEcho(w io.Writer) Option {
	return func(r *Runner) {
		r.echo = w
	}
}

// WithWaitDelay sets how long to wait for output pipes after the child is
// gone.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// New creates a Runner.
func New(logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger:    logger,
		baseEnv:   EnvMap(os.Environ()),
		waitDelay: DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd and waits at most timeout for it to finish (no limit if
// timeout is zero). The combined output, or a marker line for timeouts and
// spawn failures, is written to logPath when it is not empty, replacing any
// previous content. A command that succeeded but whose output could not be
// saved ends as LogError. Run never returns an error; every failure is
// described by the Result.
func (r *Runner) Run(ctx context.Context, cmd Command, timeout time.Duration, logPath string) Result {
	r.logger.Info().Str("command", cmd.String()).Msg("Running command")

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	c := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = MergeEnv(r.baseEnv, cmd.Env)
	c.WaitDelay = r.waitDelay
	setProcessGroup(c)

	// Stdout and stderr share one writer so the output keeps its order
	var buf bytes.Buffer
	var out io.Writer = &buf
	if r.echo != nil {
		out = io.MultiWriter(&buf, r.echo)
	}
	c.Stdout = out
	c.Stderr = out

	start := time.Now()
	err := c.Run()
	res := Result{
		Duration: time.Since(start),
		Output:   buf.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Outcome = Success
	case errors.Is(err, exec.ErrWaitDelay) && c.ProcessState != nil && c.ProcessState.Success():
		// The child exited cleanly but left descendants holding the pipes
		r.logger.Debug().Str("command", cmd.Path).Msg("Output pipes closed after wait delay")
		res.Outcome = Success
	case ctx.Err() != nil:
		res.Outcome = Interrupted
		res.Err = fmt.Errorf("interrupted: %w", ctx.Err())
		res.Output += fmt.Sprintf("INTERRUPTED: %s\n", ctx.Err())
		r.logger.Warn().Str("command", cmd.Path).Msg("Command interrupted")
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Outcome = Timeout
		res.Err = fmt.Errorf("timed out after %s", timeout)
		res.Output = TimeoutMarker(timeout)
		r.logger.Error().Str("command", cmd.Path).Dur("timeout", timeout).Msg("Command timed out")
	case errors.As(err, &exitErr):
		// ExitCode is -1 when a signal we did not send terminated the child
		res.Outcome = NonZeroExit
		res.ExitCode = exitErr.ExitCode()
		res.Err = err
	default:
		res.Outcome = SpawnError
		res.Err = err
		res.Output = ErrorMarker(err)
		r.logger.Error().Err(err).Str("command", cmd.Path).Msg("Command could not be executed")
	}

	if logPath != "" {
		if err := os.WriteFile(logPath, []byte(res.Output), 0644); err != nil {
			r.logger.Error().Err(err).Str("log", logPath).Msg("Failed to save command output")
			res.Err = errors.Join(res.Err, fmt.Errorf("failed to write log: %w", err))
			if res.Outcome == Success {
				res.Outcome = LogError
			}
		} else {
			r.logger.Debug().Str("log", logPath).Msg("Output saved")
		}
	}

	return res
}

// EnvMap converts a KEY=VALUE list as returned by os.Environ into a map.
func EnvMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// MergeEnv overlays the override maps onto base, later maps winning on key
// collisions, and returns a KEY=VALUE list sorted by key.
func MergeEnv(base map[string]string, overrides ...map[string]string) []string {
	merged := make(map[string]string, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for _, o := range overrides {
		for k, v := range o {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}
