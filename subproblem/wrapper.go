package subproblem

import (
	"context"
	"fmt"
	"iter"

	"github.com/charmbracelet/log"
	"github.com/sarchlab/wavefreq/discretization"
	"github.com/sarchlab/wavefreq/sparse"
	"github.com/sarchlab/wavefreq/workpool"
)

// Updater lists the overrides that turn the base configuration into the
// configuration of each subproblem.
type Updater interface {
	SpUpdates() []discretization.Override
}

// Wrapper owns a set of subproblems derived from one base configuration.
type Wrapper struct {
	base       discretization.Config
	construct  discretization.Constructor
	updater    Updater
	cache      *Cache
	dispatcher *Dispatcher
	logger     *log.Logger
}

// NewWrapper creates a wrapper. It panics if construct or dispatcher is nil.
// The updater may be nil, in which case every operation that needs the
// subproblem configurations panics with ErrNotImplemented.
func NewWrapper(
	base discretization.Config,
	construct discretization.Constructor,
	updater Updater,
	dispatcher *Dispatcher,
) *Wrapper {
	if construct == nil {
		panic("subproblem: wrapper without constructor")
	}

	if dispatcher == nil {
		panic("subproblem: wrapper without dispatcher")
	}

	return &Wrapper{
		base:       base.Clone(),
		construct:  construct,
		updater:    updater,
		cache:      &Cache{},
		dispatcher: dispatcher,
		logger:     dispatcher.logger,
	}
}

// Base returns a copy of the base configuration.
func (w *Wrapper) Base() discretization.Config {
	return w.base.Clone()
}

// Dispatcher returns the dispatcher. Hooks attach to it.
func (w *Wrapper) Dispatcher() *Dispatcher {
	return w.dispatcher
}

// Configs yields the configuration of every subproblem.
func (w *Wrapper) Configs() iter.Seq[discretization.Config] {
	if w.updater == nil {
		panic(fmt.Errorf("subproblem: wrapper has no updater: %w",
			discretization.ErrNotImplemented))
	}

	return FanOut(w.base, w.updater.SpUpdates())
}

// Subproblems returns the materialized subproblems, building them on first
// use. The same slice is returned until Invalidate is called.
func (w *Wrapper) Subproblems() ([]*discretization.Discretization, error) {
	return w.cache.Get(w.materialize)
}

// Materialized returns the subproblems if they are already built. It never
// builds them.
func (w *Wrapper) Materialized() ([]*discretization.Discretization, bool) {
	return w.cache.Peek()
}

// CacheState reports whether the subproblems are materialized.
func (w *Wrapper) CacheState() CacheState {
	return w.cache.State()
}

// Invalidate drops the materialized subproblems.
func (w *Wrapper) Invalidate() {
	w.cache.Invalidate()
}

func (w *Wrapper) materialize() ([]*discretization.Discretization, error) {
	var subs []*discretization.Discretization

	i := 0
	for cfg := range w.Configs() {
		d, err := w.construct(cfg)
		if err != nil {
			return nil, fmt.Errorf("subproblem %d: %w", i, err)
		}

		subs = append(subs, d)
		i++
	}

	w.logger.Debug("subproblems materialized", "count", len(subs))

	return subs, nil
}

// Multiply solves every subproblem against rhs and returns the sequence of
// wavefields, in subproblem order, each multiplied by the scale term.
//
// The sequence can be iterated once. Call Multiply again to run the jobs
// again.
func (w *Wrapper) Multiply(
	ctx context.Context,
	rhs RHS,
) (iter.Seq2[*sparse.Dense, error], error) {
	subs, err := w.Subproblems()
	if err != nil {
		return nil, err
	}

	jobs := make([]workpool.Subproblem, len(subs))
	for i, d := range subs {
		jobs[i] = d
	}

	return w.dispatcher.Dispatch(ctx, jobs, rhs)
}

// Call is Multiply.
func (w *Wrapper) Call(
	ctx context.Context,
	rhs RHS,
) (iter.Seq2[*sparse.Dense, error], error) {
	return w.Multiply(ctx, rhs)
}

// copyWith returns a wrapper sharing the dispatcher and constructor of w but
// with its own, empty cache.
func (w *Wrapper) copyWith(base discretization.Config, updater Updater) *Wrapper {
	n := NewWrapper(base, w.construct, updater, w.dispatcher)
	n.Invalidate()

	return n
}

// Collect drains a result sequence. It returns the first error.
func Collect(seq iter.Seq2[*sparse.Dense, error]) ([]*sparse.Dense, error) {
	var out []*sparse.Dense

	for u, err := range seq {
		if err != nil {
			return out, err
		}

		out = append(out, u)
	}

	return out, nil
}
