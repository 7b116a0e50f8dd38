package solver

import (
	"sync"

	"github.com/sarchlab/wavefreq/sparse"
)

// A DirectSolver solves against a single operator. The operator is
// factorized on the first Solve and the factorization is reused for every
// later Solve. There is no way to replace the operator once a factorization
// exists.
type DirectSolver struct {
	factorizer Factorizer

	mu             sync.Mutex
	a              *sparse.CSC
	factors        Factorization
	factorizations int
}

// NewDirectSolver creates a DirectSolver. A nil factorizer selects BandLU.
func NewDirectSolver(f Factorizer) *DirectSolver {
	if f == nil {
		f = BandLU{}
	}

	return &DirectSolver{factorizer: f}
}

// SetOperator binds the operator to solve against. Binding a second
// operator after the first Solve panics.
func (s *DirectSolver) SetOperator(a *sparse.CSC) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.factors != nil {
		panic("solver: operator already factorized")
	}

	s.a = a
}

// Solve returns A⁻¹·rhs. rhs may hold one or many columns.
func (s *DirectSolver) Solve(rhs *sparse.Dense) (*sparse.Dense, error) {
	factors, err := s.factorization()
	if err != nil {
		return nil, err
	}

	return factors.Solve(rhs)
}

// Factorizations returns how many times the operator has been factorized.
func (s *DirectSolver) Factorizations() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.factorizations
}

func (s *DirectSolver) factorization() (Factorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.factors != nil {
		return s.factors, nil
	}

	if s.a == nil {
		return nil, ErrNoOperator
	}

	factors, err := s.factorizer.Factorize(s.a)
	s.factorizations++
	if err != nil {
		return nil, err
	}

	s.factors = factors

	return factors, nil
}
