package subproblem

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sarchlab/wavefreq/discretization"
	"github.com/sarchlab/wavefreq/hooking"
	"github.com/sarchlab/wavefreq/workpool"
)

// MultiFreq solves the same model at several frequencies.
type MultiFreq struct {
	*Wrapper

	freqs []complex128
}

// SpUpdates returns one frequency override per frequency, in order.
func (m *MultiFreq) SpUpdates() []discretization.Override {
	updates := make([]discretization.Override, len(m.freqs))
	for i, f := range m.freqs {
		updates[i] = discretization.WithFrequency(f)
	}

	return updates
}

// Frequencies returns a copy of the frequency list.
func (m *MultiFreq) Frequencies() []complex128 {
	return append([]complex128(nil), m.freqs...)
}

// WithFrequencies returns a MultiFreq over other frequencies. The new
// wrapper shares nothing materialized with m.
func (m *MultiFreq) WithFrequencies(freqs ...complex128) *MultiFreq {
	n := &MultiFreq{freqs: append([]complex128(nil), freqs...)}
	n.Wrapper = m.copyWith(m.base, n)

	return n
}

// WithBase returns a MultiFreq over another base configuration.
func (m *MultiFreq) WithBase(base discretization.Config) *MultiFreq {
	n := &MultiFreq{freqs: m.Frequencies()}
	n.Wrapper = m.copyWith(base, n)

	return n
}

// Builder builds MultiFreq wrappers.
type Builder struct {
	base      discretization.Config
	construct discretization.Constructor
	freqs     []complex128
	parallel  bool
	scale     complex128
	factory   workpool.Factory
	timeout   time.Duration
	logger    *log.Logger
	hooks     []hooking.Hook
}

// MakeBuilder creates a builder with default parameters: parallel dispatch on
// a goroutine pool sized to the host, a scale term of one, and the default
// timeout.
func MakeBuilder() Builder {
	return Builder{
		parallel: true,
		scale:    1,
		factory:  workpool.NewGoroutinePoolFactory(0),
		timeout:  DefaultTimeout,
	}
}

// WithBase sets the configuration shared by all subproblems.
func (b Builder) WithBase(cfg discretization.Config) Builder {
	b.base = cfg.Clone()
	return b
}

// WithConstructor sets how subproblems are created. Required.
func (b Builder) WithConstructor(c discretization.Constructor) Builder {
	b.construct = c
	return b
}

// WithFrequencies sets the frequency of each subproblem. Required.
func (b Builder) WithFrequencies(freqs ...complex128) Builder {
	b.freqs = append([]complex128(nil), freqs...)
	return b
}

// WithParallel selects parallel or sequential dispatch.
func (b Builder) WithParallel(parallel bool) Builder {
	b.parallel = parallel
	return b
}

// WithScaleTerm sets the factor applied to every wavefield.
func (b Builder) WithScaleTerm(k complex128) Builder {
	b.scale = k
	return b
}

// WithPoolFactory sets how worker pools are created. A nil factory forces
// sequential dispatch.
func (b Builder) WithPoolFactory(f workpool.Factory) Builder {
	b.factory = f
	return b
}

// WithTimeout sets how long a parallel dispatch waits for each result.
func (b Builder) WithTimeout(d time.Duration) Builder {
	b.timeout = d
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// WithHook attaches a hook to the dispatcher.
func (b Builder) WithHook(h hooking.Hook) Builder {
	b.hooks = append(append([]hooking.Hook(nil), b.hooks...), h)
	return b
}

// Build checks the parameters and creates the MultiFreq. Subproblems are not
// created until they are first needed.
func (b Builder) Build() (*MultiFreq, error) {
	var errs []error

	if b.construct == nil {
		errs = append(errs, fmt.Errorf("subproblem: %w %q",
			discretization.ErrMissingParameter, "disc"))
	}

	if len(b.freqs) == 0 {
		errs = append(errs, fmt.Errorf("subproblem: %w %q",
			discretization.ErrMissingParameter, "freqs"))
	} else if err := b.base.With(discretization.WithFrequency(b.freqs[0])).
		Validate(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}

	d := &Dispatcher{
		HookableBase: hooking.NewHookableBase(),
		parallel:     b.parallel,
		factory:      b.factory,
		timeout:      b.timeout,
		scale:        b.scale,
		logger:       logger,
	}
	for _, h := range b.hooks {
		d.AcceptHook(h)
	}

	m := &MultiFreq{freqs: b.freqs}
	m.Wrapper = NewWrapper(b.base, b.construct, m, d)

	return m, nil
}
