package sim

// flags.go contains the command line flags that tune the simulator.

import (
	"fmt"
	"strings"

	"github.com/cxlmemsim/cxlbench/policy"
	"github.com/urfave/cli/v2"
)

// BinaryFlag returns the flag selecting the simulator executable.
func BinaryFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "cxlmemsim",
		Usage:   "Path to the CXLMemSim executable",
		Value:   DefaultBinary,
		EnvVars: []string{"CXLBENCH_CXLMEMSIM"},
	}
}

// PEBSPeriodFlag returns the PEBS sampling period flag.
func PEBSPeriodFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "pebs-period",
		Usage:   "PEBS sampling period passed to CXLMemSim",
		Value:   DefaultPEBSPeriod,
		EnvVars: []string{"CXLBENCH_PEBS_PERIOD"},
	}
}

// LatencyFlag returns the latency flag.
func LatencyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "latency",
		Usage:   "CXLMemSim latency setting (six comma separated integers)",
		Value:   DefaultLatency,
		EnvVars: []string{"CXLBENCH_LATENCY"},
	}
}

// BandwidthFlag returns the bandwidth flag.
func BandwidthFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "bandwidth",
		Usage:   "CXLMemSim bandwidth setting (six comma separated integers)",
		Value:   DefaultBandwidth,
		EnvVars: []string{"CXLBENCH_BANDWIDTH"},
	}
}

// PolicyFlag returns the flag selecting the policies of one dimension for a
// policy sweep, e.g. --allocation-policies.
func PolicyFlag(d policy.Dimension) cli.Flag {
	return &cli.StringSliceFlag{
		Name:    PolicyFlagName(d),
		Usage:   fmt.Sprintf("%s policies to sweep (choices: %s; default: all)", d, strings.Join(policy.Vocabulary(d), ", ")),
		EnvVars: []string{fmt.Sprintf("CXLBENCH_%s_POLICIES", strings.ToUpper(d.String()))},
	}
}

// PolicyFlagName returns the name of the flag created by PolicyFlag.
func PolicyFlagName(d policy.Dimension) string {
	return d.String() + "-policies"
}
