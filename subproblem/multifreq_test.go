package subproblem

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/wavefreq/discretization"
	"github.com/sarchlab/wavefreq/hooking"
	"github.com/sarchlab/wavefreq/solver"
	"github.com/sarchlab/wavefreq/sparse"
	"github.com/sarchlab/wavefreq/workpool"
)

var _ = Describe("MultiFreq", func() {
	var (
		release   chan struct{}
		registry  *discretization.Registry
		construct discretization.Constructor
		spy       *poolSpy
		builder   Builder
		ctx       context.Context
	)

	BeforeEach(func() {
		release = make(chan struct{})
		registry = testRegistry(release)
		construct = registry.Constructor()
		spy = &poolSpy{}
		ctx = context.Background()

		builder = MakeBuilder().
			WithBase(baseConfig()).
			WithConstructor(construct).
			WithFrequencies(5, 10, 15).
			WithPoolFactory(spy.factory(2)).
			WithTimeout(5 * time.Second)
	})

	AfterEach(func() {
		close(release)
	})

	// direct solves one subproblem without any wrapper.
	direct := func(f complex128, rhs *sparse.Dense) *sparse.Dense {
		cfg := baseConfig().With(discretization.WithFrequency(f))
		d, err := construct(cfg)
		Expect(err).NotTo(HaveOccurred())

		a, err := d.A()
		Expect(err).NotTo(HaveOccurred())

		lu, err := solver.BandLU{}.Factorize(a)
		Expect(err).NotTo(HaveOccurred())

		u, err := lu.Solve(rhs)
		Expect(err).NotTo(HaveOccurred())

		return u
	}

	expectClose := func(got, want *sparse.Dense) {
		gr, gc := got.Dims()
		wr, wc := want.Dims()
		Expect([]int{gr, gc}).To(Equal([]int{wr, wc}))
		for i, v := range want.Data() {
			Expect(real(got.Data()[i])).To(BeNumerically("~", real(v), 1e-12))
			Expect(imag(got.Data()[i])).To(BeNumerically("~", imag(v), 1e-12))
		}
	}

	Context("when building", func() {
		It("should require a constructor", func() {
			m, err := builder.WithConstructor(nil).Build()

			Expect(m).To(BeNil())
			Expect(err).To(MatchError(discretization.ErrMissingParameter))
			Expect(err).To(MatchError(ContainSubstring("disc")))
		})

		It("should require frequencies", func() {
			_, err := builder.WithFrequencies().Build()

			Expect(err).To(MatchError(discretization.ErrMissingParameter))
			Expect(err).To(MatchError(ContainSubstring("freqs")))
		})

		It("should refuse an incomplete base configuration", func() {
			cfg := baseConfig()
			cfg.C = discretization.Field[complex128]{}

			_, err := builder.WithBase(cfg).Build()

			Expect(err).To(MatchError(discretization.ErrMissingParameter))
		})

		It("should not create subproblems", func() {
			m, err := builder.Build()

			Expect(err).NotTo(HaveOccurred())
			Expect(m.CacheState()).To(Equal(Empty))
			Expect(m.Dispatcher().Mode()).To(Equal(Parallel))
			Expect(m.Dispatcher().Scale()).To(Equal(complex128(1)))
		})

		It("should dispatch sequentially without a pool factory", func() {
			m, err := builder.WithPoolFactory(nil).Build()

			Expect(err).NotTo(HaveOccurred())
			Expect(m.Dispatcher().Mode()).To(Equal(Sequential))
		})

		It("should default the timeout", func() {
			Expect(MakeBuilder().timeout).To(Equal(DefaultTimeout))
		})
	})

	Context("subproblems", func() {
		It("should create one subproblem per frequency in order", func() {
			m, _ := builder.Build()

			subs, err := m.Subproblems()

			Expect(err).NotTo(HaveOccurred())
			Expect(subs).To(HaveLen(3))
			for i, f := range []complex128{5, 10, 15} {
				Expect(subs[i].Freq()).To(Equal(f))
			}
			Expect(m.CacheState()).To(Equal(Materialized))
		})

		It("should return the cached subproblems", func() {
			m, _ := builder.Build()

			first, _ := m.Subproblems()
			second, _ := m.Subproblems()

			for i := range first {
				Expect(second[i]).To(BeIdenticalTo(first[i]))
			}
		})

		It("should expose materialized subproblems without building them", func() {
			m, _ := builder.Build()

			_, ok := m.Materialized()
			Expect(ok).To(BeFalse())
			Expect(m.CacheState()).To(Equal(Empty))

			built, _ := m.Subproblems()
			subs, ok := m.Materialized()
			Expect(ok).To(BeTrue())
			Expect(subs[2]).To(BeIdenticalTo(built[2]))
		})

		It("should rebuild after invalidation", func() {
			m, _ := builder.Build()

			first, _ := m.Subproblems()
			m.Invalidate()
			second, _ := m.Subproblems()

			Expect(second[0]).NotTo(BeIdenticalTo(first[0]))
		})

		It("should derive wrappers with their own cache", func() {
			m, _ := builder.Build()
			first, _ := m.Subproblems()

			n := m.WithFrequencies(1, 2)

			Expect(n.CacheState()).To(Equal(Empty))
			Expect(m.CacheState()).To(Equal(Materialized))
			Expect(n.Frequencies()).To(Equal([]complex128{1, 2}))

			subs, err := n.Subproblems()
			Expect(err).NotTo(HaveOccurred())
			Expect(subs).To(HaveLen(2))
			Expect(subs[1].Freq()).To(Equal(complex128(2)))

			again, _ := m.Subproblems()
			Expect(again[0]).To(BeIdenticalTo(first[0]))
		})

		It("should derive a wrapper with another base", func() {
			m, _ := builder.Build()
			cfg := baseConfig()
			cfg.Nx = 5

			n := m.WithBase(cfg)
			subs, err := n.Subproblems()

			Expect(err).NotTo(HaveOccurred())
			Expect(subs[0].Config().Nx).To(Equal(5))
			Expect(m.Base().Nx).To(Equal(3))
		})

		It("should report a constructor failure", func() {
			m, _ := builder.Build()
			cfg := baseConfig()
			cfg.Operator = "missing"

			_, err := m.WithBase(cfg).Subproblems()

			Expect(err).To(MatchError(discretization.ErrUnknownOperator))
		})

		It("should panic without an updater", func() {
			m, _ := builder.Build()
			w := NewWrapper(baseConfig(), construct, nil, m.Dispatcher())

			Expect(func() { _, _ = w.Subproblems() }).
				To(PanicWith(MatchError(discretization.ErrNotImplemented)))
		})
	})

	Context("multiplying", func() {
		It("should solve the scaled subproblems in order", func() {
			m, _ := builder.WithScaleTerm(2).Build()
			rhs := ones(6)

			seq, err := m.Multiply(ctx, Shared(rhs))
			Expect(err).NotTo(HaveOccurred())

			us, err := Collect(seq)
			Expect(err).NotTo(HaveOccurred())
			Expect(us).To(HaveLen(3))

			for i, f := range []complex128{5, 10, 15} {
				expectClose(us[i], direct(f, rhs).Scale(2))
			}
		})

		It("should give the same results in both modes", func() {
			rhs := sparse.NewVector([]complex128{1, 2i, 3, 4, 5, complex(6, 1)})

			par, _ := builder.Build()
			seq, _ := builder.WithParallel(false).Build()

			parSeq, _ := par.Multiply(ctx, Shared(rhs))
			seqSeq, _ := seq.Call(ctx, Shared(rhs))

			pu, err := Collect(parSeq)
			Expect(err).NotTo(HaveOccurred())
			su, err := Collect(seqSeq)
			Expect(err).NotTo(HaveOccurred())

			Expect(pu).To(HaveLen(len(su)))
			for i := range su {
				expectClose(pu[i], su[i])
			}
		})

		DescribeTable("should multiply every wavefield by the scale term",
			func(parallel bool, k complex128) {
				rhs := sparse.NewVector([]complex128{1, 2i, 3, 4, 5, complex(6, 1)})

				unit, _ := builder.WithParallel(parallel).Build()
				scaled, _ := builder.WithParallel(parallel).WithScaleTerm(k).Build()
				Expect(scaled.Dispatcher().Scale()).To(Equal(k))

				unitSeq, err := unit.Multiply(ctx, Shared(rhs))
				Expect(err).NotTo(HaveOccurred())
				scaledSeq, err := scaled.Multiply(ctx, Shared(rhs))
				Expect(err).NotTo(HaveOccurred())

				us, err := Collect(unitSeq)
				Expect(err).NotTo(HaveOccurred())
				ks, err := Collect(scaledSeq)
				Expect(err).NotTo(HaveOccurred())

				Expect(ks).To(HaveLen(len(us)))
				for i := range us {
					expectClose(ks[i], us[i].Scale(k))
				}
			},
			Entry("zero, sequential", false, complex(0, 0)),
			Entry("zero, parallel", true, complex(0, 0)),
			Entry("real, sequential", false, complex(2, 0)),
			Entry("real, parallel", true, complex(2, 0)),
			Entry("imaginary, sequential", false, complex(0, 3)),
			Entry("imaginary, parallel", true, complex(0, 3)),
			Entry("complex, sequential", false, complex(-1, 0.5)),
			Entry("complex, parallel", true, complex(-1, 0.5)),
		)

		It("should solve each subproblem against its own rhs", func() {
			m, _ := builder.Build()
			rhs := []*sparse.Dense{ones(6), ones(6).Scale(2), ones(6).Scale(3i)}

			seq, err := m.Multiply(ctx, PerSubproblem(rhs...))
			Expect(err).NotTo(HaveOccurred())

			us, err := Collect(seq)
			Expect(err).NotTo(HaveOccurred())
			for i, f := range []complex128{5, 10, 15} {
				expectClose(us[i], direct(f, rhs[i]))
			}
		})

		It("should refuse a mismatched rhs list before dispatching", func() {
			m, _ := builder.Build()

			seq, err := m.Multiply(ctx, PerSubproblem(ones(6), ones(6)))

			Expect(seq).To(BeNil())
			Expect(err).To(MatchError(ErrRHSCount))
			created, _ := spy.counts()
			Expect(created).To(BeZero())
		})

		It("should not run anything before iteration", func() {
			m, _ := builder.Build()

			_, err := m.Multiply(ctx, Shared(ones(6)))
			Expect(err).NotTo(HaveOccurred())

			created, _ := spy.counts()
			Expect(created).To(BeZero())
		})

		It("should be iterable only once", func() {
			m, _ := builder.Build()
			seq, _ := m.Multiply(ctx, Shared(ones(6)))

			_, err := Collect(seq)
			Expect(err).NotTo(HaveOccurred())

			_, err = Collect(seq)
			Expect(err).To(MatchError(ErrConsumed))
		})

		It("should use a fresh pool per dispatch and close it", func() {
			m, _ := builder.Build()

			for range 2 {
				seq, _ := m.Multiply(ctx, Shared(ones(6)))
				_, err := Collect(seq)
				Expect(err).NotTo(HaveOccurred())
			}

			created, closed := spy.counts()
			Expect(created).To(Equal(2))
			Expect(closed).To(Equal(2))
		})

		It("should close the pool when the consumer stops early", func() {
			m, _ := builder.Build()
			seq, _ := m.Multiply(ctx, Shared(ones(6)))

			for _, err := range seq {
				Expect(err).NotTo(HaveOccurred())
				break
			}

			created, closed := spy.counts()
			Expect(created).To(Equal(1))
			Expect(closed).To(Equal(1))
		})

		It("should solve lazily in sequential mode", func() {
			m, _ := builder.WithParallel(false).Build()
			seq, _ := m.Multiply(ctx, Shared(ones(6)))

			for range seq {
				break
			}

			subs, _ := m.Subproblems()
			Expect(subs[0].Factorizations()).To(Equal(1))
			Expect(subs[1].Factorizations()).To(BeZero())
			Expect(subs[2].Factorizations()).To(BeZero())
		})

		It("should reuse factorizations across dispatches", func() {
			m, _ := builder.Build()

			for range 3 {
				seq, _ := m.Multiply(ctx, Shared(ones(6)))
				_, err := Collect(seq)
				Expect(err).NotTo(HaveOccurred())
			}

			subs, _ := m.Subproblems()
			for _, sp := range subs {
				Expect(sp.Factorizations()).To(Equal(1))
			}
		})

		It("should stop at the first failed subproblem", func() {
			for _, parallel := range []bool{true, false} {
				base := baseConfig()
				base.Operator = "picky"
				m, _ := builder.WithBase(base).WithParallel(parallel).Build()

				seq, _ := m.Multiply(ctx, Shared(ones(6)))

				var got []*sparse.Dense
				var errs []error
				for u, err := range seq {
					if err != nil {
						errs = append(errs, err)
						continue
					}
					got = append(got, u)
				}

				Expect(got).To(HaveLen(1))
				Expect(errs).To(HaveLen(1))
				Expect(errs[0]).To(MatchError(workpool.ErrJobFailed))
				Expect(errs[0]).To(MatchError(errOperator))
			}

			_, closed := spy.counts()
			Expect(closed).To(Equal(1))
		})

		It("should time out on a stuck subproblem", func() {
			base := baseConfig()
			base.Operator = "stuck"
			m, _ := builder.WithBase(base).WithTimeout(20 * time.Millisecond).Build()

			seq, _ := m.Multiply(ctx, Shared(ones(6)))
			us, err := Collect(seq)

			Expect(us).To(BeEmpty())
			Expect(err).To(MatchError(workpool.ErrTimeout))

			_, closed := spy.counts()
			Expect(closed).To(Equal(1))
		})

		It("should stop when the context is cancelled", func() {
			m, _ := builder.WithParallel(false).Build()
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			seq, _ := m.Multiply(cctx, Shared(ones(6)))
			_, err := Collect(seq)

			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Context("hooks", func() {
		It("should report the dispatch and every job", func() {
			var positions []string
			var jobs []JobInfo
			var end DispatchInfo

			hook := hooking.HookFunc(func(hc hooking.HookCtx) {
				positions = append(positions, hc.Pos.Name)
				switch item := hc.Item.(type) {
				case JobInfo:
					if hc.Pos == HookPosJobEnd {
						jobs = append(jobs, item)
					}
				case DispatchInfo:
					end = item
				}
			})

			m, _ := builder.WithParallel(false).WithHook(hook).Build()
			seq, _ := m.Multiply(ctx, Shared(ones(6)))
			_, err := Collect(seq)
			Expect(err).NotTo(HaveOccurred())

			Expect(positions).To(Equal([]string{
				"DispatchStart",
				"JobStart", "JobEnd",
				"JobStart", "JobEnd",
				"JobStart", "JobEnd",
				"DispatchEnd",
			}))
			Expect(jobs).To(HaveLen(3))
			Expect(jobs[2].Freq).To(Equal(complex128(15)))
			Expect(jobs[2].Mode).To(Equal(Sequential))
			Expect(end.Total).To(Equal(3))
			Expect(end.Completed).To(Equal(3))
			Expect(end.ID).NotTo(BeEmpty())
		})

		It("should report a parallel job before submitting it", func() {
			var events []string

			hook := hooking.HookFunc(func(hc hooking.HookCtx) {
				if _, ok := hc.Item.(JobInfo); ok {
					events = append(events, hc.Pos.Name)
				}
			})

			m, _ := builder.
				WithPoolFactory(func(context.Context) (workpool.Pool, error) {
					return orderedPool{events: &events}, nil
				}).
				WithHook(hook).
				Build()
			Expect(m.Dispatcher().Mode()).To(Equal(Parallel))

			seq, _ := m.Multiply(ctx, Shared(ones(6)))
			_, err := Collect(seq)
			Expect(err).NotTo(HaveOccurred())

			Expect(events).To(Equal([]string{
				"JobStart", "Submit",
				"JobStart", "Submit",
				"JobStart", "Submit",
				"JobEnd", "JobEnd", "JobEnd",
			}))
		})
	})
})
