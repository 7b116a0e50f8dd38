// Package sparse provides the complex-valued matrix types shared by the
// discretizations and the solvers.
package sparse

import (
	"errors"
	"fmt"
	"sort"
)

// ErrShape is returned when the dimensions of two operands do not agree.
var ErrShape = errors.New("sparse: dimension mismatch")

// Matrix is anything that can be compressed into column form.
type Matrix interface {
	Dims() (rows, cols int)
	ToCSC() *CSC
}

// A Triplet accumulates entries in coordinate form. Entries added more than
// once at the same position are summed.
type Triplet struct {
	rows, cols int
	entries    map[[2]int]complex128
}

// NewTriplet creates an empty rows x cols triplet builder.
func NewTriplet(rows, cols int) *Triplet {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("sparse: negative dimensions %dx%d", rows, cols))
	}

	return &Triplet{
		rows:    rows,
		cols:    cols,
		entries: make(map[[2]int]complex128),
	}
}

// Dims returns the number of rows and columns.
func (t *Triplet) Dims() (int, int) {
	return t.rows, t.cols
}

// Add accumulates v at position (i, j).
func (t *Triplet) Add(i, j int, v complex128) {
	if i < 0 || i >= t.rows || j < 0 || j >= t.cols {
		panic(fmt.Sprintf("sparse: index (%d, %d) out of range for %dx%d",
			i, j, t.rows, t.cols))
	}

	t.entries[[2]int{i, j}] += v
}

// NNZ returns the number of stored positions.
func (t *Triplet) NNZ() int {
	return len(t.entries)
}

// ToCSC compresses the triplet. Row indices within each column are sorted.
func (t *Triplet) ToCSC() *CSC {
	counts := make([]int, t.cols+1)
	for pos := range t.entries {
		counts[pos[1]+1]++
	}

	for j := 0; j < t.cols; j++ {
		counts[j+1] += counts[j]
	}

	m := &CSC{
		rows:   t.rows,
		cols:   t.cols,
		colPtr: counts,
		rowIdx: make([]int, len(t.entries)),
		values: make([]complex128, len(t.entries)),
	}

	next := make([]int, t.cols)
	copy(next, counts[:t.cols])

	for pos, v := range t.entries {
		k := next[pos[1]]
		m.rowIdx[k] = pos[0]
		m.values[k] = v
		next[pos[1]]++
	}

	m.sortColumns()

	return m
}

// CSC is a complex sparse matrix in compressed-column form.
type CSC struct {
	rows, cols int
	colPtr     []int
	rowIdx     []int
	values     []complex128
}

// Dims returns the number of rows and columns.
func (m *CSC) Dims() (int, int) {
	return m.rows, m.cols
}

// ToCSC returns m itself.
func (m *CSC) ToCSC() *CSC {
	return m
}

// NNZ returns the number of stored entries.
func (m *CSC) NNZ() int {
	return len(m.values)
}

// At returns the entry at (i, j).
func (m *CSC) At(i, j int) complex128 {
	lo, hi := m.colPtr[j], m.colPtr[j+1]
	k := lo + sort.SearchInts(m.rowIdx[lo:hi], i)
	if k < hi && m.rowIdx[k] == i {
		return m.values[k]
	}

	return 0
}

// Column calls fn for every stored entry of column j in row order.
func (m *CSC) Column(j int, fn func(i int, v complex128)) {
	for k := m.colPtr[j]; k < m.colPtr[j+1]; k++ {
		fn(m.rowIdx[k], m.values[k])
	}
}

// T returns the transpose of m.
func (m *CSC) T() *CSC {
	t := NewTriplet(m.cols, m.rows)
	for j := 0; j < m.cols; j++ {
		m.Column(j, func(i int, v complex128) {
			t.Add(j, i, v)
		})
	}

	return t.ToCSC()
}

// MulVec computes m·x.
func (m *CSC) MulVec(x []complex128) ([]complex128, error) {
	if len(x) != m.cols {
		return nil, fmt.Errorf("%w: %dx%d matrix times vector of length %d",
			ErrShape, m.rows, m.cols, len(x))
	}

	y := make([]complex128, m.rows)
	for j := 0; j < m.cols; j++ {
		xj := x[j]
		if xj == 0 {
			continue
		}

		m.Column(j, func(i int, v complex128) {
			y[i] += v * xj
		})
	}

	return y, nil
}

// Bandwidth returns the number of sub- and super-diagonals that hold
// stored entries.
func (m *CSC) Bandwidth() (lower, upper int) {
	for j := 0; j < m.cols; j++ {
		m.Column(j, func(i int, _ complex128) {
			if i-j > lower {
				lower = i - j
			}

			if j-i > upper {
				upper = j - i
			}
		})
	}

	return lower, upper
}

func (m *CSC) sortColumns() {
	for j := 0; j < m.cols; j++ {
		lo, hi := m.colPtr[j], m.colPtr[j+1]
		sort.Sort(columnSorter{
			rows:   m.rowIdx[lo:hi],
			values: m.values[lo:hi],
		})
	}
}

type columnSorter struct {
	rows   []int
	values []complex128
}

func (s columnSorter) Len() int           { return len(s.rows) }
func (s columnSorter) Less(a, b int) bool { return s.rows[a] < s.rows[b] }
func (s columnSorter) Swap(a, b int) {
	s.rows[a], s.rows[b] = s.rows[b], s.rows[a]
	s.values[a], s.values[b] = s.values[b], s.values[a]
}
