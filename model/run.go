package model

import "time"

// RunState is the state of the orchestrator for a run.
type RunState string

const (
	RunStateInit                 RunState = "init"
	RunStateCollectingSystemInfo RunState = "collecting-system-info"
	RunStateIterating            RunState = "iterating"
	RunStateAborted              RunState = "aborted"
	RunStateCompleted            RunState = "completed"
)

// Terminal reports whether no further transition can happen.
func (s RunState) Terminal() bool {
	return s == RunStateAborted || s == RunStateCompleted
}

// RunSummary represents a single cxlbench run over the workload catalog
type RunSummary struct {
	// Unique ID for this run
	ID string `json:"id"`
	// Timestamp when the run started
	StartedAt time.Time `json:"started_at"`
	// Command-line arguments (including command name)
	Args []string `json:"args,omitempty"`
	// Artifact root directory of the run
	ArtifactRoot string `json:"artifact_root"`
	// Final orchestrator state
	State RunState `json:"state"`
	// Number of tasks in the plan
	Planned int `json:"planned"`
	// Number of tasks that were started
	Attempted int `json:"attempted"`
	// Number of tasks that exited with status 0
	Succeeded int `json:"succeeded"`
	// Number of tasks that failed, timed out or could not be started
	Failed int `json:"failed"`
	// Whether the run stopped before executing every planned task
	Aborted bool `json:"aborted"`
	// Key of the task that caused the abort
	AbortedBy string `json:"aborted_by,omitempty"`
	// Wall clock time of the whole run
	Elapsed time.Duration `json:"elapsed"`
	// Git information of the working directory
	Git *Git `json:"git,omitempty"`
	// Host the run executed on
	Host *Host `json:"host,omitempty"`
}

// Remaining returns how many planned tasks never started.
func (s *RunSummary) Remaining() int {
	return s.Planned - s.Attempted
}

// Git contains git repository information
type Git struct {
	// Git commit hash at time of execution
	Commit string `json:"commit,omitempty"`
	// Git branch at time of execution
	Branch string `json:"branch,omitempty"`
}

// Host contains information about the execution environment
type Host struct {
	Hostname string `json:"hostname,omitempty"`
	OS       string `json:"os,omitempty"`
	Arch     string `json:"arch,omitempty"`
}

// TaskKind distinguishes baseline runs from simulated runs.
type TaskKind string

const (
	TaskKindBaseline  TaskKind = "baseline"
	TaskKindSimulated TaskKind = "simulated"
)

// TaskRecord is the persisted outcome of one executed task.
type TaskRecord struct {
	RunID    string        `json:"run_id"`
	Seq      int           `json:"seq"`
	Workload string        `json:"workload"`
	Program  string        `json:"program"`
	Kind     TaskKind      `json:"kind"`
	Policy   string        `json:"policy,omitempty"` // joined policy names, empty for none
	LogPath  string        `json:"log_path"`
	Outcome  string        `json:"outcome"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Started  time.Time     `json:"started"`
}
