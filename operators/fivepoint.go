// Package operators provides reference Helmholtz operator builders.
package operators

import (
	"math"

	"github.com/sarchlab/wavefreq/discretization"
	"github.com/sarchlab/wavefreq/sparse"
)

// FivePointName is the registry name of FivePoint.
const FivePointName = "fivepoint"

// FivePoint builds the second-order five-point discretization of the
// variable-density Helmholtz operator
//
//	∇·(1/ρ ∇u) + ω²/(ρc²) u
//
// on the Nx×Nz grid of the configuration, with ω = 2πf. Cell (ix, iz) is
// unknown ix + iz·Nx. Free-surface sides hold u = 0 beyond the grid; the
// other sides are rigid, with zero normal derivative. A non-zero Q damps the
// velocity to c·(1 + iQ/2).
type FivePoint struct{}

// BuildOperator assembles the operator of d.
func (FivePoint) BuildOperator(d *discretization.Discretization) (sparse.Matrix, error) {
	cfg := d.Config()
	nx, nz := cfg.Nx, cfg.Nz
	dx, dz := cfg.Spacing()
	n := nx * nz

	c := d.C()
	rho := d.Rho()
	q := cfg.Q.Broadcast(n)
	omega := 2 * math.Pi * d.Freq()

	buoyancy := make([]float64, n)
	for k, r := range rho {
		buoyancy[k] = 1 / r
	}

	t := sparse.NewTriplet(n, n)

	for iz := 0; iz < nz; iz++ {
		for ix := 0; ix < nx; ix++ {
			k := ix + iz*nx

			vel := c[k] * complex(1, q[k]/2)
			diag := omega * omega * complex(buoyancy[k], 0) / (vel * vel)

			link := func(jx, jz int, h float64, side int) {
				if jx < 0 || jx >= nx || jz < 0 || jz >= nz {
					if cfg.FreeSurf[side] {
						diag -= complex(buoyancy[k]/(h*h), 0)
					}

					return
				}

				l := jx + jz*nx
				w := complex((buoyancy[k]+buoyancy[l])/(2*h*h), 0)
				t.Add(k, l, w)
				diag -= w
			}

			link(ix-1, iz, dx, discretization.Left)
			link(ix+1, iz, dx, discretization.Right)
			link(ix, iz-1, dz, discretization.Top)
			link(ix, iz+1, dz, discretization.Bottom)

			t.Add(k, k, diag)
		}
	}

	return t, nil
}

// Register adds the builders of this package to r.
func Register(r *discretization.Registry) {
	r.Register(FivePointName, FivePoint{})
}

// NewRegistry returns a registry holding the builders of this package.
func NewRegistry() *discretization.Registry {
	r := discretization.NewRegistry()
	Register(r)

	return r
}
