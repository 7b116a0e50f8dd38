package project

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/sarchlab/wavefreq/discretization"
)

func isUnset(v cty.Value) bool {
	return v.Type() == cty.NilType || v.IsNull()
}

// realField reads a number as a uniform field and a list of numbers as a
// per-cell field.
func realField(name string, v cty.Value) (discretization.Field[float64], error) {
	if isUnset(v) {
		return discretization.Field[float64]{}, nil
	}

	if v.Type() == cty.Number {
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return discretization.Field[float64]{}, fmt.Errorf("%w: %s: %w", ErrInvalidProject, name, err)
		}

		return discretization.Uniform(f), nil
	}

	values, err := numbers(name, v)
	if err != nil {
		return discretization.Field[float64]{}, err
	}

	return discretization.Grid(values), nil
}

// numbers reads a list, set or tuple of numbers.
func numbers(name string, v cty.Value) ([]float64, error) {
	if isUnset(v) {
		return nil, nil
	}

	list, err := convert.Convert(v, cty.List(cty.Number))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a list of numbers: %w", ErrInvalidProject, name, err)
	}

	var out []float64
	if err := gocty.FromCtyValue(list, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidProject, name, err)
	}

	return out, nil
}

// points reads a list of [x, z] pairs.
func points(name string, v cty.Value) ([][2]float64, error) {
	if isUnset(v) {
		return nil, nil
	}

	list, err := convert.Convert(v, cty.List(cty.List(cty.Number)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a list of [x, z] pairs: %w", ErrInvalidProject, name, err)
	}

	var raw [][]float64
	if err := gocty.FromCtyValue(list, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidProject, name, err)
	}

	out := make([][2]float64, len(raw))
	for i, p := range raw {
		if len(p) != 2 {
			return nil, fmt.Errorf("%w: %s[%d] has %d coordinates, want 2",
				ErrInvalidProject, name, i, len(p))
		}

		out[i] = [2]float64{p[0], p[1]}
	}

	return out, nil
}
