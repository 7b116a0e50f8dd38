// Package subproblem splits one large problem into independent
// discretizations and solves them together.
//
// A Wrapper derives one configuration per subproblem from a base
// configuration, materializes the subproblems once, and dispatches solves
// over them, either one after another or on a worker pool. MultiFreq is the
// wrapper that varies the frequency.
package subproblem

import (
	"iter"

	"github.com/sarchlab/wavefreq/discretization"
)

// FanOut yields one configuration per override, each a clone of base with
// that override applied. Neither base nor earlier configurations are
// affected by later overrides.
func FanOut(
	base discretization.Config,
	overrides []discretization.Override,
) iter.Seq[discretization.Config] {
	return func(yield func(discretization.Config) bool) {
		for _, o := range overrides {
			if !yield(discretization.Apply(base, o)) {
				return
			}
		}
	}
}
