package sim

// sim.go contains utilities for building CXLMemSim command lines.

import (
	"fmt"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/cxlmemsim/cxlbench/policy"
)

const (
	DefaultBinary     = "./CXLMemSim"
	DefaultPEBSPeriod = 10
	DefaultLatency    = "200,250,200,250,200,250"
	DefaultBandwidth  = "50,50,50,50,50,50"

	// TuningFields is the number of values the latency and bandwidth
	// settings carry.
	TuningFields = 6
)

// Options contains the settings for one CXLMemSim invocation.
type Options struct {
	Binary     string             // Simulator executable
	Target     []string           // Program path followed by its arguments
	PEBSPeriod int                // PEBS sampling period (-p)
	Latency    string             // Six comma separated latencies (-l)
	Bandwidth  string             // Six comma separated bandwidths (-b)
	Policy     policy.Combination // Policy override (-k), Default for none
}

// BuildArgs builds the simulator argument vector. The target program and
// its arguments are quoted into the single -t value the simulator expects.
func BuildArgs(opts Options) []string {
	args := []string{
		"-t", shellescape.QuoteCommand(opts.Target),
		"-p", strconv.Itoa(opts.PEBSPeriod),
		"-l", opts.Latency,
		"-b", opts.Bandwidth,
	}

	if !opts.Policy.IsDefault() {
		args = append(args, "-k", opts.Policy.Arg())
	}

	return args
}

// ParseTuning validates a latency or bandwidth setting: exactly six
// comma separated non-negative integers. It returns the normalized string.
func ParseTuning(name, value string) (string, error) {
	fields := strings.Split(value, ",")
	if len(fields) != TuningFields {
		return "", fmt.Errorf("invalid %s %q: expected %d comma separated integers, got %d", name, value, TuningFields, len(fields))
	}

	normalized := make([]string, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return "", fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if n < 0 {
			return "", fmt.Errorf("invalid %s %q: negative value %d", name, value, n)
		}
		normalized = append(normalized, strconv.Itoa(n))
	}
	return strings.Join(normalized, ","), nil
}
