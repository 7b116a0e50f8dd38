package subproblem

import (
	"errors"
	"fmt"

	"github.com/sarchlab/wavefreq/sparse"
)

// ErrRHSCount is returned when the number of per-subproblem right-hand sides
// differs from the number of subproblems.
var ErrRHSCount = errors.New("subproblem: right-hand side count mismatch")

// RHS selects the right-hand side of each subproblem.
type RHS struct {
	shared        *sparse.Dense
	each          []*sparse.Dense
	perSubproblem bool
}

// Shared uses v for every subproblem.
func Shared(v *sparse.Dense) RHS {
	return RHS{shared: v}
}

// PerSubproblem gives the i-th subproblem the i-th right-hand side.
func PerSubproblem(vs ...*sparse.Dense) RHS {
	return RHS{each: vs, perSubproblem: true}
}

// IsPerSubproblem tells which of the two forms r is.
func (r RHS) IsPerSubproblem() bool {
	return r.perSubproblem
}

// At returns the right-hand side of the i-th subproblem.
func (r RHS) At(i int) *sparse.Dense {
	if r.perSubproblem {
		return r.each[i]
	}

	return r.shared
}

func (r RHS) check(n int) error {
	if r.perSubproblem && len(r.each) != n {
		return fmt.Errorf("%w: %d right-hand sides for %d subproblems",
			ErrRHSCount, len(r.each), n)
	}

	return nil
}
