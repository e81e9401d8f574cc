package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the HCL form of a catalog:
//
//	workload "gapbs" {
//	  path     = "${env.WORKLOAD_ROOT}/gapbs"
//	  programs = ["bc", "bfs"]
//	  args     = "-f $${path}/graph.sg -n 1"
//	  env      = { OMP_NUM_THREADS = "16" }
//	}
//
// Expressions can read the process environment through env. Argument
// placeholders are escaped as $${path} so HCL leaves them for ResolveArgs.
type hclFile struct {
	Workloads []hclWorkload `hcl:"workload,block"`
}

type hclWorkload struct {
	Name     string            `hcl:"name,label"`
	Path     string            `hcl:"path"`
	Programs []string          `hcl:"programs"`
	Args     string            `hcl:"args,optional"`
	Env      map[string]string `hcl:"env,optional"`
}

// ParseHCL decodes an HCL catalog document. The filename is only used in
// diagnostics.
func ParseHCL(filename string, data []byte) (*Catalog, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse catalog %s: %s", filename, diags.Error())
	}

	var f hclFile
	if diags := gohcl.DecodeBody(file.Body, evalContext(os.Environ()), &f); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode catalog %s: %s", filename, diags.Error())
	}
	if len(f.Workloads) == 0 {
		return nil, fmt.Errorf("%w: no workloads defined", ErrInvalid)
	}

	workloads := make([]Workload, 0, len(f.Workloads))
	for _, w := range f.Workloads {
		workloads = append(workloads, Workload(w))
	}
	return New(workloads)
}

func evalContext(environ []string) *hcl.EvalContext {
	env := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = cty.StringVal(v)
		}
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
	}
}
