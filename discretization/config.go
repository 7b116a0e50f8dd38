package discretization

import (
	"errors"
	"fmt"

	"github.com/sarchlab/wavefreq/solver"
)

// ErrMissingParameter is wrapped by validation errors for required
// parameters that are not set.
var ErrMissingParameter = errors.New("missing required parameter")

// ErrInvalidParameter is wrapped by validation errors for parameters that are
// set to unusable values.
var ErrInvalidParameter = errors.New("invalid parameter")

// Free-surface flag positions in Config.FreeSurf.
const (
	Top = iota
	Right
	Bottom
	Left
)

// Geometry places sources and receivers, as (x, z) pairs.
type Geometry struct {
	Sources   [][2]float64
	Receivers [][2]float64
	Mode      string
}

// Config is the full parameter set of one discretization. A wrapper keeps a
// base Config and derives one Config per subproblem from it.
type Config struct {
	// Operator names the OperatorBuilder, as registered in a Registry.
	Operator string

	Nx, Nz       int
	Dx, Dz       float64
	XOrig, ZOrig float64

	// Freq is the complex frequency of the subproblem.
	Freq complex128

	// C is the complex wave velocity. Required.
	C Field[complex128]

	// Rho is the bulk density. When unset it is derived from C.
	Rho Field[float64]

	// Q is the attenuation; Eps, Delta and Theta are anisotropy parameters.
	Q, Eps, Delta, Theta Field[float64]

	// FreeSurf flags free-surface boundaries, indexed by Top, Right, Bottom
	// and Left.
	FreeSurf [4]bool

	// NKy is the number of out-of-plane wavenumbers for 2.5D modelling.
	NKy int

	// Tau is the Laplace-domain damping time.
	Tau float64

	IsReg bool

	Geometry Geometry

	// Solver names the factorizer; empty selects solver.DefaultName.
	Solver string
}

// Spacing returns Dx and Dz, with unset spacings defaulting to one.
func (c Config) Spacing() (dx, dz float64) {
	dx, dz = c.Dx, c.Dz
	if dx == 0 {
		dx = 1
	}

	if dz == 0 {
		dz = 1
	}

	return dx, dz
}

// Cells returns Nx·Nz.
func (c Config) Cells() int {
	return c.Nx * c.Nz
}

// Clone returns a copy of c that shares no mutable state with it.
func (c Config) Clone() Config {
	n := c
	n.Geometry.Sources = append([][2]float64(nil), c.Geometry.Sources...)
	n.Geometry.Receivers = append([][2]float64(nil), c.Geometry.Receivers...)

	return n
}

// With returns a clone of c with the overrides applied in order.
func (c Config) With(overrides ...Override) Config {
	n := c.Clone()
	for _, o := range overrides {
		o(&n)
	}

	return n
}

// Validate checks every parameter and reports all problems at once.
func (c Config) Validate() error {
	var errs []error

	missing := func(name string) {
		errs = append(errs, fmt.Errorf("discretization: %w %q",
			ErrMissingParameter, name))
	}
	invalid := func(name, format string, args ...any) {
		errs = append(errs, fmt.Errorf("discretization: %w %q: %s",
			ErrInvalidParameter, name, fmt.Sprintf(format, args...)))
	}

	if c.Operator == "" {
		missing("operator")
	}

	c.validateDim("nx", c.Nx, missing, invalid)
	c.validateDim("nz", c.Nz, missing, invalid)

	if c.Dx < 0 {
		invalid("dx", "must not be negative, got %g", c.Dx)
	}

	if c.Dz < 0 {
		invalid("dz", "must not be negative, got %g", c.Dz)
	}

	if c.Freq == 0 {
		missing("freq")
	}

	if !c.C.IsSet() {
		missing("c")
	}

	checkGrid(c, "c", c.C.IsGrid(), c.C.Len(), invalid)
	checkGrid(c, "rho", c.Rho.IsGrid(), c.Rho.Len(), invalid)
	checkGrid(c, "Q", c.Q.IsGrid(), c.Q.Len(), invalid)
	checkGrid(c, "eps", c.Eps.IsGrid(), c.Eps.Len(), invalid)
	checkGrid(c, "delta", c.Delta.IsGrid(), c.Delta.Len(), invalid)
	checkGrid(c, "theta", c.Theta.IsGrid(), c.Theta.Len(), invalid)

	if c.NKy < 0 {
		invalid("nky", "must not be negative, got %d", c.NKy)
	}

	if _, err := solver.Lookup(c.Solver); err != nil {
		invalid("solver", "%v", err)
	}

	return errors.Join(errs...)
}

func (c Config) validateDim(
	name string,
	v int,
	missing func(string),
	invalid func(string, string, ...any),
) {
	switch {
	case v == 0:
		missing(name)
	case v < 0:
		invalid(name, "must be positive, got %d", v)
	}
}

func checkGrid(
	c Config,
	name string,
	isGrid bool,
	n int,
	invalid func(string, string, ...any),
) {
	if !isGrid || c.Nx <= 0 || c.Nz <= 0 {
		return
	}

	if n != c.Cells() {
		invalid(name, "grid has %d values, want %d (%d x %d)",
			n, c.Cells(), c.Nz, c.Nx)
	}
}

// An Override changes one subproblem's copy of the base configuration.
type Override func(*Config)

// WithFrequency sets the subproblem frequency.
func WithFrequency(f complex128) Override {
	return func(c *Config) {
		c.Freq = f
	}
}

// Apply returns a clone of base with o applied.
func Apply(base Config, o Override) Config {
	return base.With(o)
}
