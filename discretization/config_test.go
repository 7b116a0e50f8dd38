package discretization

import (
	"bytes"
	"encoding/gob"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	It("should accept a complete configuration", func() {
		Expect(sampleConfig().Validate()).To(Succeed())
	})

	It("should report every missing required parameter", func() {
		err := Config{}.Validate()

		Expect(err).To(MatchError(ErrMissingParameter))
		for _, name := range []string{"operator", "nx", "nz", "freq", "c"} {
			Expect(err.Error()).To(ContainSubstring(`"` + name + `"`))
		}
	})

	It("should reject grids that do not match the grid dimensions", func() {
		cfg := sampleConfig()
		cfg.Rho = Grid([]float64{1, 2, 3})

		err := cfg.Validate()

		Expect(err).To(MatchError(ErrInvalidParameter))
		Expect(err.Error()).To(ContainSubstring(`"rho"`))
	})

	It("should reject unknown solvers and negative dimensions", func() {
		cfg := sampleConfig()
		cfg.Solver = "superlu"
		cfg.Nx = -1

		err := cfg.Validate()

		Expect(err).To(MatchError(ErrInvalidParameter))
		Expect(err.Error()).To(ContainSubstring(`"solver"`))
		Expect(err.Error()).To(ContainSubstring(`"nx"`))
	})

	It("should default unset spacing to one", func() {
		cfg := sampleConfig()
		cfg.Dz = 0

		dx, dz := cfg.Spacing()

		Expect(dx).To(Equal(10.0))
		Expect(dz).To(Equal(1.0))
	})

	It("should apply overrides to a copy only", func() {
		base := sampleConfig()

		derived := base.With(WithFrequency(10))
		derived.Geometry.Sources[0][0] = 99
		derived.Geometry.Receivers = append(derived.Geometry.Receivers, [2]float64{1, 1})
		derived.FreeSurf[Top] = true

		Expect(derived.Freq).To(Equal(complex(10, 0)))
		Expect(base.Freq).To(Equal(complex(5, 0)))
		Expect(base.Geometry.Sources[0][0]).To(Equal(10.0))
		Expect(base.Geometry.Receivers).To(HaveLen(2))
		Expect(base.FreeSurf[Top]).To(BeFalse())
	})

	It("should apply a single override to a clone", func() {
		base := sampleConfig()

		applied := Apply(base, WithFrequency(complex(3, 1)))
		applied.Geometry.Sources[0][1] = -1

		Expect(applied.Freq).To(Equal(complex(3, 1)))
		Expect(base.Freq).To(Equal(complex(5, 0)))
		Expect(base.Geometry.Sources[0][1]).ToNot(Equal(-1.0))
	})

	It("should survive gob encoding", func() {
		cfg := sampleConfig()
		cfg.C = Grid([]complex128{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12i})
		cfg.Rho = Uniform(2000.0)

		var buf bytes.Buffer
		Expect(gob.NewEncoder(&buf).Encode(cfg)).To(Succeed())

		var got Config
		Expect(gob.NewDecoder(&buf).Decode(&got)).To(Succeed())

		Expect(got.Operator).To(Equal(cfg.Operator))
		Expect(got.Freq).To(Equal(cfg.Freq))
		Expect(got.C.IsGrid()).To(BeTrue())
		Expect(got.C.Broadcast(12)).To(Equal(cfg.C.Broadcast(12)))
		Expect(got.Rho.Value()).To(Equal(2000.0))
		Expect(got.Q.IsSet()).To(BeFalse())
		Expect(got.Geometry).To(Equal(cfg.Geometry))
	})
})

var _ = Describe("Field", func() {
	It("should broadcast uniform values", func() {
		f := Uniform[complex128](2 + 1i)

		Expect(f.IsGrid()).To(BeFalse())
		Expect(f.Broadcast(3)).To(Equal([]complex128{2 + 1i, 2 + 1i, 2 + 1i}))
	})

	It("should return grids as given", func() {
		values := []float64{1, 2, 3}
		f := Grid(values)
		values[0] = 100

		Expect(f.Broadcast(3)).To(Equal([]float64{1, 2, 3}))
		Expect(&f.Broadcast(3)[0]).To(BeIdenticalTo(&f.Broadcast(3)[0]))
	})

	It("should treat a zero uniform value as unset", func() {
		Expect(Field[float64]{}.IsSet()).To(BeFalse())
		Expect(Uniform(0.0).IsSet()).To(BeFalse())
		Expect(Grid([]float64{0}).IsSet()).To(BeTrue())
	})
})
