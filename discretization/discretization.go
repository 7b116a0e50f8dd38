// Package discretization defines a discretized wave-equation system for one
// parameter set. A Discretization owns a sparse operator, built on demand by a
// pluggable OperatorBuilder, and solves against it with a cached direct
// factorization.
package discretization

import (
	"errors"
	"fmt"
	"math/cmplx"
	"sync"

	"github.com/sarchlab/wavefreq/solver"
	"github.com/sarchlab/wavefreq/sparse"
)

// ErrNotImplemented is the panic value raised when a required capability,
// such as the operator builder, was never supplied.
var ErrNotImplemented = errors.New("not implemented")

// An OperatorBuilder assembles the sparse operator of a discretization from
// its validated parameters. Builders must be deterministic.
type OperatorBuilder interface {
	BuildOperator(d *Discretization) (sparse.Matrix, error)
}

// OperatorBuilderFunc adapts a function to the OperatorBuilder interface.
type OperatorBuilderFunc func(d *Discretization) (sparse.Matrix, error)

// BuildOperator calls f(d).
func (f OperatorBuilderFunc) BuildOperator(d *Discretization) (sparse.Matrix, error) {
	return f(d)
}

// Option customizes a Discretization.
type Option func(*Discretization)

// WithFactorizer overrides the factorizer named by Config.Solver.
func WithFactorizer(f solver.Factorizer) Option {
	return func(d *Discretization) {
		d.factorizer = f
	}
}

// A Discretization is the discretized system for one subproblem. Its
// operator is built at most once and factorized at most once.
type Discretization struct {
	cfg        Config
	builder    OperatorBuilder
	factorizer solver.Factorizer

	mu  sync.Mutex
	c   []complex128
	rho []float64

	opMu sync.Mutex
	a    *sparse.CSC
	ainv *solver.DirectSolver
}

// New validates cfg and creates a Discretization. A nil builder is allowed
// but any access to the operator will then panic.
func New(
	cfg Config,
	builder OperatorBuilder,
	opts ...Option,
) (*Discretization, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factorizer, err := solver.Lookup(cfg.Solver)
	if err != nil {
		return nil, err
	}

	d := &Discretization{
		cfg:        cfg.Clone(),
		builder:    builder,
		factorizer: factorizer,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Config returns a copy of the configuration.
func (d *Discretization) Config() Config {
	return d.cfg.Clone()
}

// Freq returns the frequency of the subproblem.
func (d *Discretization) Freq() complex128 {
	return d.cfg.Freq
}

// C returns the complex velocity over the (Nz, Nx) grid, row-major.
func (d *Discretization) C() []complex128 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.velocity()
}

func (d *Discretization) velocity() []complex128 {
	if d.c == nil {
		d.c = d.cfg.C.Broadcast(d.cfg.Cells())
	}

	return d.c
}

// Rho returns the density over the grid. An unset density is derived once
// from the velocity as 310·c^0.25 and cached.
func (d *Discretization) Rho() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rho != nil {
		return d.rho
	}

	if d.cfg.Rho.IsSet() {
		d.rho = d.cfg.Rho.Broadcast(d.cfg.Cells())
		return d.rho
	}

	c := d.velocity()
	d.rho = make([]float64, len(c))
	for i, v := range c {
		d.rho[i] = 310 * real(cmplx.Pow(v, 0.25))
	}

	return d.rho
}

// A returns the operator in compressed-column form, building it on first
// use. It panics with ErrNotImplemented when no builder was supplied.
func (d *Discretization) A() (*sparse.CSC, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	return d.operator()
}

func (d *Discretization) operator() (*sparse.CSC, error) {
	if d.a != nil {
		return d.a, nil
	}

	if d.builder == nil {
		panic(fmt.Errorf("discretization: operator %q: %w",
			d.cfg.Operator, ErrNotImplemented))
	}

	m, err := d.builder.BuildOperator(d)
	if err != nil {
		return nil, fmt.Errorf("discretization: building operator %q: %w",
			d.cfg.Operator, err)
	}

	a := m.ToCSC()
	rows, cols := a.Dims()
	if rows != cols {
		return nil, fmt.Errorf("%w: operator %q is %dx%d, want square",
			sparse.ErrShape, d.cfg.Operator, rows, cols)
	}

	d.a = a

	return d.a, nil
}

// Shape returns the shape of the transposed operator.
func (d *Discretization) Shape() (rows, cols int, err error) {
	a, err := d.A()
	if err != nil {
		return 0, 0, err
	}

	cols, rows = a.Dims()

	return rows, cols, nil
}

// Solve applies the inverse of the operator to rhs, which may hold one or
// many columns. The first call factorizes the operator; later calls reuse
// the factorization.
func (d *Discretization) Solve(rhs *sparse.Dense) (*sparse.Dense, error) {
	ainv, err := d.directSolver()
	if err != nil {
		return nil, err
	}

	return ainv.Solve(rhs)
}

// Call is the same as Solve.
func (d *Discretization) Call(rhs *sparse.Dense) (*sparse.Dense, error) {
	return d.Solve(rhs)
}

// Factorizations returns the number of factorizations performed so far.
func (d *Discretization) Factorizations() int {
	d.opMu.Lock()
	ainv := d.ainv
	d.opMu.Unlock()

	if ainv == nil {
		return 0
	}

	return ainv.Factorizations()
}

func (d *Discretization) directSolver() (*solver.DirectSolver, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	if d.ainv != nil {
		return d.ainv, nil
	}

	a, err := d.operator()
	if err != nil {
		return nil, err
	}

	d.ainv = solver.NewDirectSolver(d.factorizer)
	d.ainv.SetOperator(a)

	return d.ainv, nil
}
