package cmd

import (
	"math"
	"math/cmplx"

	"github.com/sarchlab/wavefreq/discretization"
	"github.com/sarchlab/wavefreq/sparse"
)

// nearestCell returns the unknown of the grid cell closest to (x, z),
// clamped to the grid.
func nearestCell(cfg discretization.Config, x, z float64) int {
	dx, dz := cfg.Spacing()

	ix := clamp(int(math.Round((x-cfg.XOrig)/dx)), cfg.Nx)
	iz := clamp(int(math.Round((z-cfg.ZOrig)/dz)), cfg.Nz)

	return ix + iz*cfg.Nx
}

func clamp(i, n int) int {
	return max(0, min(i, n-1))
}

// sourceVector puts a unit impulse at every source of the geometry. Without
// sources the impulse sits in the middle of the grid.
func sourceVector(cfg discretization.Config) *sparse.Dense {
	v := make([]complex128, cfg.Cells())

	if len(cfg.Geometry.Sources) == 0 {
		v[cfg.Nx/2+(cfg.Nz/2)*cfg.Nx] = 1

		return sparse.NewVector(v)
	}

	for _, s := range cfg.Geometry.Sources {
		v[nearestCell(cfg, s[0], s[1])]++
	}

	return sparse.NewVector(v)
}

// receiverCells returns the unknowns sampled by the receivers.
func receiverCells(cfg discretization.Config) []int {
	cells := make([]int, 0, len(cfg.Geometry.Receivers))
	for _, r := range cfg.Geometry.Receivers {
		cells = append(cells, nearestCell(cfg, r[0], r[1]))
	}

	return cells
}

// peak returns the largest amplitude of a wavefield.
func peak(u *sparse.Dense) float64 {
	p := 0.0
	for _, v := range u.Data() {
		p = max(p, cmplx.Abs(v))
	}

	return p
}
