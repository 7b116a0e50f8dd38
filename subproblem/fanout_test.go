package subproblem

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/wavefreq/discretization"
)

var _ = Describe("FanOut", func() {
	It("should apply one override per config in order", func() {
		base := baseConfig()
		base.Geometry.Sources = [][2]float64{{1, 1}}

		overrides := []discretization.Override{
			discretization.WithFrequency(1),
			func(c *discretization.Config) {
				c.Freq = 2
				c.Geometry.Sources[0] = [2]float64{9, 9}
			},
			discretization.WithFrequency(3),
		}

		var got []discretization.Config
		for cfg := range FanOut(base, overrides) {
			got = append(got, cfg)
		}

		Expect(got).To(HaveLen(3))
		Expect(got[0].Freq).To(Equal(complex128(1)))
		Expect(got[1].Freq).To(Equal(complex128(2)))
		Expect(got[2].Freq).To(Equal(complex128(3)))

		Expect(base.Freq).To(BeZero())
		Expect(base.Geometry.Sources[0]).To(Equal([2]float64{1, 1}))
		Expect(got[0].Geometry.Sources[0]).To(Equal([2]float64{1, 1}))
		Expect(got[1].Geometry.Sources[0]).To(Equal([2]float64{9, 9}))
	})

	It("should stop when the consumer stops", func() {
		applied := 0
		count := func(c *discretization.Config) { applied++ }

		for range FanOut(baseConfig(), []discretization.Override{count, count, count}) {
			break
		}

		Expect(applied).To(Equal(1))
	})

	It("should yield nothing without overrides", func() {
		n := 0
		for range FanOut(baseConfig(), nil) {
			n++
		}

		Expect(n).To(BeZero())
	})
})
