// Package catalog describes the workloads a run can execute: where each
// workload lives, which programs it ships, how they are invoked and which
// environment overrides they need.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for catalogs that cannot be planned against.
var ErrInvalid = errors.New("invalid catalog")

// Workload is a single entry of the catalog.
type Workload struct {
	Name     string            `yaml:"name"`
	Path     string            `yaml:"path"`
	Programs []string          `yaml:"programs"`
	Args     string            `yaml:"args"`
	Env      map[string]string `yaml:"env"`
}

// ProgramPath returns the path of a program binary inside the workload.
func (w Workload) ProgramPath(program string) string {
	return filepath.Join(w.Path, program)
}

// ResolveArgs expands the argument template for a program and splits it into
// an argument vector. ${path} expands to the workload path and ${program} to
// the program name; every other dollar sign is passed to the shell splitter
// unchanged.
func (w Workload) ResolveArgs(program string) ([]string, error) {
	expanded := strings.NewReplacer("${path}", w.Path, "${program}", program).Replace(w.Args)

	args, err := shellwords.Parse(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to parse arguments of workload %s: %w", w.Name, err)
	}
	return args, nil
}

// Catalog is an ordered, read-only list of workloads.
type Catalog struct {
	workloads []Workload
}

// New validates the workloads and builds a catalog that keeps their order.
func New(workloads []Workload) (*Catalog, error) {
	seen := make(map[string]bool, len(workloads))
	for _, w := range workloads {
		if w.Name == "" {
			return nil, fmt.Errorf("%w: workload without a name", ErrInvalid)
		}
		if seen[w.Name] {
			return nil, fmt.Errorf("%w: duplicate workload %q", ErrInvalid, w.Name)
		}
		seen[w.Name] = true

		if len(w.Programs) == 0 {
			return nil, fmt.Errorf("%w: workload %q has no programs", ErrInvalid, w.Name)
		}
		programs := make(map[string]bool, len(w.Programs))
		for _, p := range w.Programs {
			if p == "" || p != filepath.Base(p) {
				return nil, fmt.Errorf("%w: workload %q has invalid program name %q", ErrInvalid, w.Name, p)
			}
			if programs[p] {
				return nil, fmt.Errorf("%w: workload %q lists program %q twice", ErrInvalid, w.Name, p)
			}
			programs[p] = true
		}
		if _, err := w.ResolveArgs(w.Programs[0]); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	c := &Catalog{workloads: make([]Workload, 0, len(workloads))}
	for _, w := range workloads {
		w.Programs = slices.Clone(w.Programs)
		env := make(map[string]string, len(w.Env))
		for k, v := range w.Env {
			env[k] = v
		}
		w.Env = env
		c.workloads = append(c.workloads, w)
	}
	return c, nil
}

// Workloads returns the workloads in catalog order. The returned slice is a
// copy; program lists and environment maps must not be modified.
func (c *Catalog) Workloads() []Workload {
	return slices.Clone(c.workloads)
}

// Lookup returns the workload with the given name.
func (c *Catalog) Lookup(name string) (Workload, bool) {
	for _, w := range c.workloads {
		if w.Name == name {
			return w, true
		}
	}
	return Workload{}, false
}

// Names returns the workload names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.workloads))
	for _, w := range c.workloads {
		names = append(names, w.Name)
	}
	return names
}

type file struct {
	Workloads []Workload `yaml:"workloads"`
}

// Load reads a catalog from a YAML file of the form
//
//	workloads:
//	  - name: gapbs
//	    path: ../workloads/gapbs
//	    programs: [bc, bfs]
//	    args: -g 16 -n 1
//	    env: {OMP_NUM_THREADS: "16"}
//
// Files ending in .hcl are decoded with ParseHCL instead.
//
// Relative workload paths are kept as written; they are resolved against the
// working directory of the run, like the built-in catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if filepath.Ext(path) == ".hcl" {
		return ParseHCL(path, data)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(f.Workloads) == 0 {
		return nil, fmt.Errorf("%w: no workloads defined", ErrInvalid)
	}
	return New(f.Workloads)
}
