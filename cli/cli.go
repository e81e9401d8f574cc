package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cxlmemsim/cxlbench/artifact"
	"github.com/cxlmemsim/cxlbench/policy"
	"github.com/cxlmemsim/cxlbench/sim"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "cxlbench"

type App struct {
	logger  zerolog.Logger
	console io.Writer
	out     io.Writer
	cli     *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339Nano,
	}

	app := &App{
		logger:  log.Output(console),
		console: console,
		out:     os.Stdout,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Run workloads natively and under CXLMemSim and collect their results",
			Flags: append([]cli.Flag{
				&cli.BoolFlag{
					Name:    "verbose",
					Usage:   "Enable verbose (debug) logging",
					EnvVars: []string{"CXLBENCH_VERBOSE"},
				},
			}, runFlags()...),
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}

	// Without a command the flags apply to the run action
	app.cli.Action = app.run

	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "run",
		Usage:  "Run the workload catalog (also the action without a command)",
		Action: app.run,
		Flags:  runFlags(),
		Description: `Runs every selected program of the workload catalog, natively and/or under
CXLMemSim, and stores the output of each run below the artifact directory:

  <artifact-dir>/<workload>/<program>/orig.txt
  <artifact-dir>/<workload>/<program>/cxlmemsim.txt
  <artifact-dir>/<workload>/<program>/cxlmemsim_<alloc>_<migration>_<paging>_<caching>.txt

Without --run-original and --run-cxlmemsim both are run.`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "history",
		Usage:  "List previous runs",
		Action: app.history,
		Flags: []cli.Flag{
			artifactDirFlag(),
			historyDBFlag(),
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "show",
		Usage:     "Show the task outcomes of a previous run",
		ArgsUsage: "[INDEX|ID]",
		Action:    app.show,
		Flags: []cli.Flag{
			artifactDirFlag(),
			historyDBFlag(),
		},
		Description: `Show the task outcomes of a previous run.

Arguments:
  0           Show the last run (default)
  1           Show the 2nd last run (also accepted as "-- -1")
  <id>        Show the run whose ID starts with <id>`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "policies",
		Usage:  "List the CXLMemSim policies of each dimension",
		Action: app.policies,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "workloads",
		Usage:  "List the workload catalog",
		Action: app.workloads,
		Flags:  []cli.Flag{catalogFlag()},
	})
	return app
}

// runFlags returns the flags of the run action. They are accepted both by
// the root command and by "run", so every call builds fresh flag values.
func runFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "workloads",
			Usage:   "Workloads to run (default: all)",
			EnvVars: []string{"CXLBENCH_WORKLOADS"},
		},
		&cli.StringSliceFlag{
			Name:    "programs",
			Usage:   "Programs to run (default: all)",
			EnvVars: []string{"CXLBENCH_PROGRAMS"},
		},
		&cli.BoolFlag{
			Name:    "run-original",
			Usage:   "Run the unmodified programs",
			EnvVars: []string{"CXLBENCH_RUN_ORIGINAL"},
		},
		&cli.BoolFlag{
			Name:    "run-cxlmemsim",
			Usage:   "Run the programs under CXLMemSim",
			EnvVars: []string{"CXLBENCH_RUN_CXLMEMSIM"},
		},
		&cli.BoolFlag{
			Name:    "collect-system-info",
			Usage:   "Capture dmesg, dmidecode and lspci output into the artifact directory",
			EnvVars: []string{"CXLBENCH_COLLECT_SYSTEM_INFO"},
		},
		sim.BinaryFlag(),
		sim.PEBSPeriodFlag(),
		sim.LatencyFlag(),
		sim.BandwidthFlag(),
		&cli.BoolFlag{
			Name:    "run-policy-combinations",
			Usage:   "Run CXLMemSim once per combination of the selected policies",
			EnvVars: []string{"CXLBENCH_RUN_POLICY_COMBINATIONS"},
		},
	}
	for _, d := range policy.Dimensions {
		flags = append(flags, sim.PolicyFlag(d))
	}
	flags = append(flags,
		&cli.BoolFlag{
			Name:    "ignore-errors",
			Usage:   "Continue after failed programs without reporting them as errors",
			EnvVars: []string{"CXLBENCH_IGNORE_ERRORS"},
		},
		&cli.BoolFlag{
			Name:    "stop-on-error",
			Usage:   "Stop the run at the first failed program",
			EnvVars: []string{"CXLBENCH_STOP_ON_ERROR"},
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "Run log file, copied into the artifact directory at the end of the run (empty disables)",
			Value:   "run.log",
			EnvVars: []string{"CXLBENCH_LOG_FILE"},
		},
		&cli.IntFlag{
			Name:    "timeout",
			Usage:   "Maximum run time of a single program in seconds",
			Value:   3600,
			EnvVars: []string{"CXLBENCH_TIMEOUT"},
		},
		artifactDirFlag(),
		catalogFlag(),
		&cli.StringFlag{
			Name:    "env-file",
			Usage:   "Dotenv file overlaid on the process environment of every program",
			EnvVars: []string{"CXLBENCH_ENV_FILE"},
		},
		historyDBFlag(),
		&cli.StringFlag{
			Name:    "metrics-file",
			Usage:   "Write run metrics in the Prometheus text format to this file",
			EnvVars: []string{"CXLBENCH_METRICS_FILE"},
		},
		&cli.BoolFlag{
			Name:    "stream-output",
			Usage:   "Echo program output to stdout while it runs",
			EnvVars: []string{"CXLBENCH_STREAM_OUTPUT"},
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Usage:   "Print the planned tasks without executing them",
			EnvVars: []string{"CXLBENCH_DRY_RUN"},
		},
		&cli.StringFlag{
			Name:    "upload-endpoint",
			Usage:   "S3 compatible endpoint (host:port) the artifact directory is uploaded to after the run",
			EnvVars: []string{"CXLBENCH_UPLOAD_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "upload-bucket",
			Usage:   "Bucket for uploaded artifacts",
			Value:   AppName,
			EnvVars: []string{"CXLBENCH_UPLOAD_BUCKET"},
		},
		&cli.StringFlag{
			Name:    "upload-prefix",
			Usage:   "Object key prefix for uploaded artifacts",
			EnvVars: []string{"CXLBENCH_UPLOAD_PREFIX"},
		},
		&cli.StringFlag{
			Name:    "upload-access-key",
			Usage:   "Access key for the upload endpoint",
			EnvVars: []string{"CXLBENCH_UPLOAD_ACCESS_KEY"},
		},
		&cli.StringFlag{
			Name:    "upload-secret-key",
			Usage:   "Secret key for the upload endpoint",
			EnvVars: []string{"CXLBENCH_UPLOAD_SECRET_KEY"},
		},
		&cli.BoolFlag{
			Name:    "upload-insecure",
			Usage:   "Use plain HTTP for the upload endpoint",
			EnvVars: []string{"CXLBENCH_UPLOAD_INSECURE"},
		},
	)

	return flags
}

func artifactDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "artifact-dir",
		Usage:   "Directory receiving the run artifacts",
		Value:   artifact.DefaultRoot,
		EnvVars: []string{"CXLBENCH_ARTIFACT_DIR"},
	}
}

func historyDBFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "history-db",
		Usage:   "Run history database (default: <artifact-dir>/history.db, - disables)",
		EnvVars: []string{"CXLBENCH_HISTORY_DB"},
	}
}

func catalogFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "catalog",
		Usage:   "workload catalog, YAML or .hcl (default: built-in catalog)",
		EnvVars: []string{"CXLBENCH_CATALOG"},
	}
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
