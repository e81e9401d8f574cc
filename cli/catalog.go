package cli

// This file contains the commands describing what a run can execute.

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/cxlmemsim/cxlbench/policy"
	"github.com/urfave/cli/v2"
)

func (a *App) policies(ctx *cli.Context) error {
	for _, d := range policy.Dimensions {
		fmt.Fprintf(a.out, "%-10s  %s\n", d, strings.Join(policy.Vocabulary(d), ", "))
	}
	return nil
}

func (a *App) workloads(ctx *cli.Context) error {
	cat, err := loadCatalog(ctx.String("catalog"))
	if err != nil {
		return err
	}

	for _, w := range cat.Workloads() {
		fmt.Fprintf(a.out, "%s\n", w.Name)
		fmt.Fprintf(a.out, "   Path: %s\n", w.Path)
		fmt.Fprintf(a.out, "   Programs: %s\n", strings.Join(w.Programs, ", "))
		if w.Args != "" {
			fmt.Fprintf(a.out, "   Args: %s\n", w.Args)
		}
		for _, k := range slices.Sorted(maps.Keys(w.Env)) {
			fmt.Fprintf(a.out, "   Env: %s=%s\n", k, w.Env[k])
		}
	}
	return nil
}
