package solver

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/wavefreq/sparse"
)

var _ = Describe("DirectSolver", func() {
	var (
		mockCtrl      *gomock.Controller
		factorizer    *MockFactorizer
		factorization *MockFactorization
		a             *sparse.CSC
		s             *DirectSolver
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		factorizer = NewMockFactorizer(mockCtrl)
		factorization = NewMockFactorization(mockCtrl)
		a = tridiagonal(4, 3)

		s = NewDirectSolver(factorizer)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should factorize once across many solves", func() {
		s.SetOperator(a)

		factorizer.EXPECT().Factorize(a).Return(factorization, nil).Times(1)
		factorization.EXPECT().
			Solve(gomock.Any()).
			DoAndReturn(func(rhs *sparse.Dense) (*sparse.Dense, error) {
				return rhs.Scale(2), nil
			}).
			Times(5)

		for i := 0; i < 5; i++ {
			rhs := sparse.NewVector([]complex128{complex(float64(i), 0), 0, 0, 0})
			x, err := s.Solve(rhs)
			Expect(err).NotTo(HaveOccurred())
			Expect(x.At(0, 0)).To(Equal(complex(float64(2*i), 0)))
		}

		Expect(s.Factorizations()).To(Equal(1))
	})

	It("should fail without an operator", func() {
		_, err := s.Solve(sparse.NewVector(make([]complex128, 4)))
		Expect(err).To(MatchError(ErrNoOperator))
		Expect(s.Factorizations()).To(Equal(0))
	})

	It("should return factorization errors", func() {
		s.SetOperator(a)
		factorizer.EXPECT().Factorize(a).Return(nil, errors.New("boom"))

		_, err := s.Solve(sparse.NewVector(make([]complex128, 4)))
		Expect(err).To(MatchError("boom"))
	})

	It("should refuse a new operator after factorizing", func() {
		s.SetOperator(a)
		factorizer.EXPECT().Factorize(a).Return(factorization, nil)
		factorization.EXPECT().Solve(gomock.Any()).Return(nil, nil)

		_, _ = s.Solve(sparse.NewVector(make([]complex128, 4)))

		Expect(func() { s.SetOperator(a) }).To(Panic())
	})

	It("should agree with BandLU when using the default factorizer", func() {
		solver := NewDirectSolver(nil)
		solver.SetOperator(a)
		b := []complex128{1, 2, 3, 4}

		x, err := solver.Solve(sparse.NewVector(b))
		Expect(err).NotTo(HaveOccurred())
		expectResidualSmall(a, x.Col(0), b)
	})
})
