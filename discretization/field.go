package discretization

import (
	"bytes"
	"encoding/gob"
)

// Number is the element type of a Field.
type Number interface {
	~float64 | ~complex128
}

// A Field is a physical property over the grid, given either as one uniform
// value or as a full grid in row-major (Nz, Nx) order. Grids are copied on
// construction and never modified afterwards, so configurations may share
// them.
type Field[T Number] struct {
	value  T
	grid   []T
	isGrid bool
}

// Uniform creates a field with the same value everywhere.
func Uniform[T Number](v T) Field[T] {
	return Field[T]{value: v}
}

// Grid creates a field from per-cell values.
func Grid[T Number](values []T) Field[T] {
	grid := make([]T, len(values))
	copy(grid, values)

	return Field[T]{grid: grid, isGrid: true}
}

// IsSet reports whether the field carries a grid or a non-zero value.
func (f Field[T]) IsSet() bool {
	return f.isGrid || f.value != 0
}

// IsGrid reports whether the field was given per cell.
func (f Field[T]) IsGrid() bool {
	return f.isGrid
}

// Value returns the uniform value. It is zero for grid fields.
func (f Field[T]) Value() T {
	return f.value
}

// Len returns the number of grid values, or zero for uniform fields.
func (f Field[T]) Len() int {
	return len(f.grid)
}

// Broadcast returns the grid as-is, or n copies of the uniform value. The
// returned grid must be treated as read-only.
func (f Field[T]) Broadcast(n int) []T {
	if f.isGrid {
		return f.grid
	}

	out := make([]T, n)
	for i := range out {
		out[i] = f.value
	}

	return out
}

type fieldWire[T Number] struct {
	Value  T
	Grid   []T
	IsGrid bool
}

// GobEncode implements gob.GobEncoder.
func (f Field[T]) GobEncode() ([]byte, error) {
	var buf bytes.Buffer

	err := gob.NewEncoder(&buf).Encode(fieldWire[T]{
		Value:  f.value,
		Grid:   f.grid,
		IsGrid: f.isGrid,
	})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (f *Field[T]) GobDecode(b []byte) error {
	var w fieldWire[T]
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&w); err != nil {
		return err
	}

	f.value, f.grid, f.isGrid = w.Value, w.Grid, w.IsGrid
	if f.isGrid && f.grid == nil {
		f.grid = []T{}
	}

	return nil
}
