// Package solver provides direct solves of sparse complex systems and the
// DirectSolver that caches a single factorization per operator.
package solver

import (
	"errors"
	"fmt"

	"github.com/sarchlab/wavefreq/sparse"
)

// ErrSingular is returned when a zero pivot is met during factorization.
var ErrSingular = errors.New("solver: matrix is singular")

// ErrNoOperator is returned when a DirectSolver is asked to solve before an
// operator has been bound to it.
var ErrNoOperator = errors.New("solver: no operator bound")

// A Factorizer turns an operator into a reusable factorized form.
type Factorizer interface {
	Factorize(a *sparse.CSC) (Factorization, error)
}

// A Factorization solves the factorized system against one or more
// right-hand sides. The result has the same shape as rhs.
type Factorization interface {
	Solve(rhs *sparse.Dense) (*sparse.Dense, error)
}

// FactorizerFunc adapts a function to the Factorizer interface.
type FactorizerFunc func(a *sparse.CSC) (Factorization, error)

// Factorize calls f(a).
func (f FactorizerFunc) Factorize(a *sparse.CSC) (Factorization, error) {
	return f(a)
}

// DefaultName is the factorizer used when none is configured.
const DefaultName = "band-lu"

// Lookup returns the factorizer registered under name. An empty name
// selects DefaultName.
func Lookup(name string) (Factorizer, error) {
	switch name {
	case "", DefaultName:
		return BandLU{}, nil
	default:
		return nil, fmt.Errorf("solver: unknown factorizer %q", name)
	}
}
