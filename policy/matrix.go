package policy

// matrix.go enumerates the Cartesian product of the selected policy sets.

import (
	"iter"
	"slices"
)

// Sets holds the selected policy names per dimension. An empty set selects
// the whole vocabulary of that dimension.
type Sets struct {
	Allocation []string
	Migration  []string
	Paging     []string
	Caching    []string
}

func (s Sets) get(d Dimension) []string {
	switch d {
	case Allocation:
		return s.Allocation
	case Migration:
		return s.Migration
	case Paging:
		return s.Paging
	case Caching:
		return s.Caching
	}
	return nil
}

// Matrix is an ordered, finite and restartable sequence of combinations.
type Matrix struct {
	dims   [4][]string
	single bool
}

// NewMatrix validates the selected sets and builds the sweep matrix.
// Duplicate names within a dimension are collapsed, keeping the first
// occurrence, so every combination in the matrix is unique.
func NewMatrix(sets Sets) (*Matrix, error) {
	m := &Matrix{}
	for i, d := range Dimensions {
		names := sets.get(d)
		if len(names) == 0 {
			names = vocabularies[d]
		}
		if err := Validate(d, names); err != nil {
			return nil, err
		}
		m.dims[i] = dedupe(names)
	}
	return m, nil
}

// Single returns the matrix used when the policy sweep is disabled: it
// yields the Default sentinel exactly once.
func Single() *Matrix {
	return &Matrix{single: true}
}

// Sweep reports whether the matrix enumerates explicit policy combinations.
func (m *Matrix) Sweep() bool {
	return !m.single
}

// Len returns the number of combinations All yields.
func (m *Matrix) Len() int {
	if m.single {
		return 1
	}
	n := 1
	for _, names := range m.dims {
		n *= len(names)
	}
	return n
}

// All yields the combinations with allocation varying slowest and caching
// fastest. Within a dimension the supplied order is kept. Every call starts
// a fresh enumeration.
func (m *Matrix) All() iter.Seq[Combination] {
	return func(yield func(Combination) bool) {
		if m.single {
			yield(Default)
			return
		}
		for _, a := range m.dims[0] {
			for _, mi := range m.dims[1] {
				for _, p := range m.dims[2] {
					for _, c := range m.dims[3] {
						if !yield(Combination{Allocation: a, Migration: mi, Paging: p, Caching: c}) {
							return
						}
					}
				}
			}
		}
	}
}

// Slice materializes All.
func (m *Matrix) Slice() []Combination {
	return slices.AppendSeq(make([]Combination, 0, m.Len()), m.All())
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
