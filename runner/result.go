package runner

import (
	"fmt"
	"strconv"
	"time"
)

// Outcome classifies how a command ended.
type Outcome uint8

const (
	Success Outcome = iota
	NonZeroExit
	Timeout
	SpawnError
	// Interrupted means the run itself was cancelled (SIGINT/SIGTERM)
	// while the command was in flight.
	Interrupted
	// LogError means the command succeeded but its output could not be
	// written to the log file.
	LogError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case NonZeroExit:
		return "non-zero-exit"
	case Timeout:
		return "timeout"
	case SpawnError:
		return "spawn-error"
	case Interrupted:
		return "interrupted"
	case LogError:
		return "log-error"
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the outcome of one command execution.
type Result struct {
	Outcome  Outcome
	ExitCode int           // Only meaningful for NonZeroExit
	Output   string        // Combined stdout/stderr, or a marker line
	Duration time.Duration // Wall clock time from start to exit
	Err      error         // Underlying error for anything but Success
}

// Failed reports whether the result is anything but Success.
func (r Result) Failed() bool {
	return r.Outcome != Success
}

// Describe renders the outcome for log messages, e.g. "non-zero-exit(2)".
func (r Result) Describe() string {
	if r.Outcome == NonZeroExit {
		return fmt.Sprintf("%s(%d)", r.Outcome, r.ExitCode)
	}
	return r.Outcome.String()
}

// TimeoutMarker is written in place of the output when a command times out.
func TimeoutMarker(timeout time.Duration) string {
	return fmt.Sprintf("TIMEOUT: Command timed out after %s seconds\n", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
}

// ErrorMarker is written in place of the output when a command cannot be
// started or communicated with.
func ErrorMarker(err error) string {
	return fmt.Sprintf("ERROR: %s\n", err)
}
