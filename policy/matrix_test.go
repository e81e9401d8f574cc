package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewMatrix_Defaults(t *testing.T) {
	m, err := NewMatrix(Sets{})
	require.NoError(t, err)
	require.True(t, m.Sweep())
	require.Equal(t, 3*7*3*3, m.Len())
	require.Len(t, m.Slice(), m.Len())

	first := m.Slice()[0]
	require.Equal(t, Combination{"none", "none", "none", "none"}, first)
}

func TestNewMatrix_Order(t *testing.T) {
	m, err := NewMatrix(Sets{
		Allocation: []string{"numa", "none"},
		Migration:  []string{"none"},
		Paging:     []string{"hugepage", "none"},
		Caching:    []string{"fifo"},
	})
	require.NoError(t, err)

	require.Equal(t, []Combination{
		{"numa", "none", "hugepage", "fifo"},
		{"numa", "none", "none", "fifo"},
		{"none", "none", "hugepage", "fifo"},
		{"none", "none", "none", "fifo"},
	}, m.Slice())
}

func TestNewMatrix_UnknownPolicy(t *testing.T) {
	_, err := NewMatrix(Sets{Paging: []string{"none", "giant"}})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownPolicy))
	require.Contains(t, err.Error(), "paging")
	require.Contains(t, err.Error(), "pagetableaware")
}

func TestNewMatrix_Duplicates(t *testing.T) {
	m, err := NewMatrix(Sets{
		Allocation: []string{"none", "numa", "none"},
		Migration:  []string{"none"},
		Paging:     []string{"none"},
		Caching:    []string{"none"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())
}

func TestSingle(t *testing.T) {
	m := Single()
	require.False(t, m.Sweep())
	require.Equal(t, 1, m.Len())
	require.Equal(t, []Combination{Default}, m.Slice())
	require.True(t, m.Slice()[0].IsDefault())
}

func TestAll_StopsEarly(t *testing.T) {
	m, err := NewMatrix(Sets{})
	require.NoError(t, err)

	n := 0
	for range m.All() {
		n++
		if n == 5 {
			break
		}
	}
	require.Equal(t, 5, n)

	// A new enumeration starts from the beginning again.
	for c := range m.All() {
		require.Equal(t, Combination{"none", "none", "none", "none"}, c)
		break
	}
}

func TestCombination_Format(t *testing.T) {
	c := Combination{"numa", "hybrid", "hugepage", "fifo"}
	require.Equal(t, "numa_hybrid_hugepage_fifo", c.String())
	require.Equal(t, "numa,hybrid,hugepage,fifo", c.Arg())
	require.False(t, c.IsDefault())
	require.Equal(t, "default", Default.String())
}

func drawSubset(t *rapid.T, d Dimension) []string {
	vocab := Vocabulary(d)
	n := rapid.IntRange(1, len(vocab)).Draw(t, d.String()+"Size")
	return rapid.Permutation(vocab).Draw(t, d.String())[:n]
}

func TestMatrix_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sets := Sets{
			Allocation: drawSubset(t, Allocation),
			Migration:  drawSubset(t, Migration),
			Paging:     drawSubset(t, Paging),
			Caching:    drawSubset(t, Caching),
		}
		m, err := NewMatrix(sets)
		require.NoError(t, err)

		want := len(sets.Allocation) * len(sets.Migration) * len(sets.Paging) * len(sets.Caching)
		combos := m.Slice()
		require.Len(t, combos, want)
		require.Equal(t, want, m.Len())

		seen := make(map[Combination]bool, len(combos))
		for _, c := range combos {
			require.False(t, seen[c], "duplicate combination %s", c)
			seen[c] = true
		}

		// Allocation varies slowest, caching fastest.
		stride := len(sets.Migration) * len(sets.Paging) * len(sets.Caching)
		for i, c := range combos {
			require.Equal(t, sets.Allocation[i/stride], c.Allocation)
			require.Equal(t, sets.Caching[i%len(sets.Caching)], c.Caching)
		}

		// Deterministic across enumerations and across matrices.
		again, err := NewMatrix(sets)
		require.NoError(t, err)
		require.Equal(t, combos, again.Slice())
		require.Equal(t, combos, m.Slice())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		dim     Dimension
		names   []string
		wantErr bool
	}{
		{name: "empty", dim: Allocation, names: nil},
		{name: "all migration", dim: Migration, names: Vocabulary(Migration)},
		{name: "caching frequency", dim: Caching, names: []string{"frequency"}},
		{name: "paging frequency", dim: Paging, names: []string{"frequency"}, wantErr: true},
		{name: "case sensitive", dim: Allocation, names: []string{"NUMA"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.dim, tt.names)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownPolicy)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
