package solver

import (
	"fmt"
	"math/cmplx"

	"github.com/sarchlab/wavefreq/sparse"
)

// BandLU factorizes an operator with Gaussian elimination and partial
// pivoting inside its band. The band is measured from the stored entries, so
// an operator with no band structure is factorized as a dense matrix.
type BandLU struct{}

// Factorize implements Factorizer.
func (BandLU) Factorize(a *sparse.CSC) (Factorization, error) {
	n, cols := a.Dims()
	if n != cols {
		return nil, fmt.Errorf("%w: cannot factorize a %dx%d operator",
			sparse.ErrShape, n, cols)
	}

	kl, ku := a.Bandwidth()
	f := &bandFactors{
		n:    n,
		kl:   kl,
		ku:   ku,
		ld:   2*kl + ku + 1,
		piv:  make([]int, n),
		band: make([]complex128, (2*kl+ku+1)*n),
	}

	for j := 0; j < n; j++ {
		a.Column(j, func(i int, v complex128) {
			f.set(i, j, v)
		})
	}

	if err := f.factorize(); err != nil {
		return nil, err
	}

	return f, nil
}

// bandFactors keeps L and U in LAPACK-style band storage. Entry (i, j) lives
// at band[kl+ku+i-j + j*ld]; the kl extra super-diagonals hold the fill that
// row interchanges introduce into U.
type bandFactors struct {
	n, kl, ku, ld int
	piv           []int
	band          []complex128
}

func (f *bandFactors) index(i, j int) int {
	return f.kl + f.ku + i - j + j*f.ld
}

func (f *bandFactors) get(i, j int) complex128 {
	return f.band[f.index(i, j)]
}

func (f *bandFactors) set(i, j int, v complex128) {
	f.band[f.index(i, j)] = v
}

func (f *bandFactors) lastColumn(k int) int {
	return min(k+f.ku+f.kl, f.n-1)
}

func (f *bandFactors) factorize() error {
	for k := 0; k < f.n; k++ {
		last := min(k+f.kl, f.n-1)

		p := k
		maxAbs := cmplx.Abs(f.get(k, k))
		for i := k + 1; i <= last; i++ {
			if abs := cmplx.Abs(f.get(i, k)); abs > maxAbs {
				p, maxAbs = i, abs
			}
		}

		if maxAbs == 0 {
			return fmt.Errorf("%w: zero pivot in column %d", ErrSingular, k)
		}

		f.piv[k] = p
		ju := f.lastColumn(k)

		if p != k {
			for j := k; j <= ju; j++ {
				vk, vp := f.get(k, j), f.get(p, j)
				f.set(k, j, vp)
				f.set(p, j, vk)
			}
		}

		pivot := f.get(k, k)
		for i := k + 1; i <= last; i++ {
			m := f.get(i, k) / pivot
			f.set(i, k, m)

			if m == 0 {
				continue
			}

			for j := k + 1; j <= ju; j++ {
				f.set(i, j, f.get(i, j)-m*f.get(k, j))
			}
		}
	}

	return nil
}

// Solve replays the row interchanges and eliminations on every column of rhs
// and back-substitutes through U.
func (f *bandFactors) Solve(rhs *sparse.Dense) (*sparse.Dense, error) {
	rows, cols := rhs.Dims()
	if rows != f.n {
		return nil, fmt.Errorf("%w: rhs has %d rows, operator has %d",
			sparse.ErrShape, rows, f.n)
	}

	out := rhs.Clone()
	for c := 0; c < cols; c++ {
		f.solveInPlace(out.Col(c))
	}

	return out, nil
}

func (f *bandFactors) solveInPlace(b []complex128) {
	for k := 0; k < f.n; k++ {
		if p := f.piv[k]; p != k {
			b[k], b[p] = b[p], b[k]
		}

		last := min(k+f.kl, f.n-1)
		for i := k + 1; i <= last; i++ {
			b[i] -= f.get(i, k) * b[k]
		}
	}

	for k := f.n - 1; k >= 0; k-- {
		sum := b[k]
		ju := f.lastColumn(k)
		for j := k + 1; j <= ju; j++ {
			sum -= f.get(k, j) * b[j]
		}

		b[k] = sum / f.get(k, k)
	}
}
