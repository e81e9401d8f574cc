// Package policy holds the CXLMemSim policy vocabularies and enumerates
// policy combinations for a sweep.
package policy

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownPolicy is returned when a policy name is not part of its
// dimension's vocabulary.
var ErrUnknownPolicy = errors.New("unknown policy")

// Dimension identifies one of the four independent policy axes.
type Dimension uint8

const (
	Allocation Dimension = iota
	Migration
	Paging
	Caching
)

// Dimensions lists all dimensions in combination order.
var Dimensions = []Dimension{Allocation, Migration, Paging, Caching}

func (d Dimension) String() string {
	switch d {
	case Allocation:
		return "allocation"
	case Migration:
		return "migration"
	case Paging:
		return "paging"
	case Caching:
		return "caching"
	}
	return fmt.Sprintf("dimension(%d)", uint8(d))
}

var vocabularies = map[Dimension][]string{
	Allocation: {"none", "interleave", "numa"},
	Migration:  {"none", "heataware", "frequency", "loadbalance", "locality", "lifetime", "hybrid"},
	Paging:     {"none", "hugepage", "pagetableaware"},
	Caching:    {"none", "fifo", "frequency"},
}

// Vocabulary returns a copy of the known policy names for a dimension, in
// their canonical order.
func Vocabulary(d Dimension) []string {
	return slices.Clone(vocabularies[d])
}

// Validate checks that every name belongs to the dimension's vocabulary.
func Validate(d Dimension, names []string) error {
	vocab := vocabularies[d]
	for _, name := range names {
		if !slices.Contains(vocab, name) {
			return fmt.Errorf("%w: %s policy %q (choose from: %s)", ErrUnknownPolicy, d, name, strings.Join(vocab, ", "))
		}
	}
	return nil
}

// Combination is one concrete policy choice per dimension. The zero value is
// the Default sentinel: no override, the simulator runs with its baseline
// configuration.
type Combination struct {
	Allocation string
	Migration  string
	Paging     string
	Caching    string
}

// Default is the "no policy override" sentinel.
var Default = Combination{}

// IsDefault reports whether c is the Default sentinel.
func (c Combination) IsDefault() bool {
	return c == Default
}

// Names returns the four policy names in dimension order.
func (c Combination) Names() []string {
	return []string{c.Allocation, c.Migration, c.Paging, c.Caching}
}

// String joins the names with underscores; this is the form used in
// artifact file names.
func (c Combination) String() string {
	if c.IsDefault() {
		return "default"
	}
	return strings.Join(c.Names(), "_")
}

// Arg joins the names with commas, as expected by the simulator's -k flag.
func (c Combination) Arg() string {
	return strings.Join(c.Names(), ",")
}
