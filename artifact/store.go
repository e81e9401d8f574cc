// Package artifact manages the artifact tree of a run:
//
//	<root>/dmesg.txt, dmidecode.txt, lspci.txt      system snapshot
//	<root>/<workload>/<program>/orig.txt           baseline run
//	<root>/<workload>/<program>/cxlmemsim.txt      simulated, default policy
//	<root>/<workload>/<program>/cxlmemsim_<a>_<m>_<p>_<c>.txt
//	<root>/run.log, summary.json                   run records
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cxlmemsim/cxlbench/model"
	"github.com/cxlmemsim/cxlbench/policy"
	"github.com/cxlmemsim/cxlbench/runner"
	"github.com/rs/zerolog"
)

const (
	DefaultRoot = "../artifact"

	BaselineLog  = "orig.txt"
	SimulatedLog = "cxlmemsim.txt"
	RunLog       = "run.log"
	SummaryFile  = "summary.json"
)

// LogName returns the canonical log file name for a task. A nil combination
// denotes the baseline run, the Default sentinel a simulated run without
// policy override.
func LogName(combo *policy.Combination) string {
	switch {
	case combo == nil:
		return BaselineLog
	case combo.IsDefault():
		return SimulatedLog
	}
	return "cxlmemsim_" + combo.String() + ".txt"
}

// LogPath returns the canonical log path of a task below root.
func LogPath(root, workload, program string, combo *policy.Combination) string {
	return filepath.Join(root, workload, program, LogName(combo))
}

// Executor runs a command and records its output; *runner.Runner satisfies
// it.
type Executor interface {
	Run(ctx context.Context, cmd runner.Command, timeout time.Duration, logPath string) runner.Result
}

// Store manages the artifact tree below a root directory.
type Store struct {
	logger zerolog.Logger
	root   string
}

// New creates a Store rooted at root.
func New(logger zerolog.Logger, root string) *Store {
	return &Store{logger: logger, root: root}
}

// Root returns the artifact root directory.
func (s *Store) Root() string {
	return s.root
}

// Init creates the artifact root if it does not exist yet.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create artifact root: %w", err)
	}
	return nil
}

// EnsureDir creates the directory of a workload program if needed and
// returns its path.
func (s *Store) EnsureDir(workload, program string) (string, error) {
	dir := filepath.Join(s.root, workload, program)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return dir, nil
}

// Snapshot is one host diagnostic captured before the workloads run.
type Snapshot struct {
	File    string
	Command runner.Command
}

// SystemSnapshots lists the diagnostics captured by CollectSystemInfo.
var SystemSnapshots = []Snapshot{
	{File: "dmesg.txt", Command: runner.Command{Path: "dmesg"}},
	{File: "dmidecode.txt", Command: runner.Command{Path: "dmidecode"}},
	{File: "lspci.txt", Command: runner.Command{Path: "lspci", Args: []string{"-vvv"}}},
}

// CollectSystemInfo runs every system snapshot command, writing its output
// directly below the root. It returns the failures keyed by file name; a
// failed snapshot does not prevent the others from being taken.
func (s *Store) CollectSystemInfo(ctx context.Context, exec Executor, timeout time.Duration) map[string]error {
	failures := make(map[string]error)
	for _, snap := range SystemSnapshots {
		path := filepath.Join(s.root, snap.File)
		res := exec.Run(ctx, snap.Command, timeout, path)
		if res.Failed() {
			failures[snap.File] = fmt.Errorf("%s: %s: %w", snap.Command.Path, res.Describe(), res.Err)
			continue
		}
		s.logger.Debug().Str("file", path).Msg("Captured system snapshot")
	}
	return failures
}

// CopyRunLog copies the run log into the artifact root.
func (s *Store) CopyRunLog(src string) error {
	dst := filepath.Join(s.root, RunLog)

	// Nothing to do when the run log already lives in the artifact root
	if srcInfo, err := os.Stat(src); err == nil {
		if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(srcInfo, dstInfo) {
			return nil
		}
	}

	return copyFile(src, dst)
}

// WriteSummary writes the run summary as JSON into the artifact root.
func (s *Store) WriteSummary(summary *model.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.root, SummaryFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}

// ReadSummary reads the run summary stored in an artifact root.
func ReadSummary(root string) (*model.RunSummary, error) {
	data, err := os.ReadFile(filepath.Join(root, SummaryFile))
	if err != nil {
		return nil, err
	}

	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse run summary: %w", err)
	}
	return &summary, nil
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		return err
	}
	if err := destFile.Close(); err != nil {
		return err
	}

	// Copy file permissions
	sourceInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, sourceInfo.Mode())
}
