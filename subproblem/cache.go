package subproblem

import (
	"sync"

	"github.com/sarchlab/wavefreq/discretization"
)

// CacheState tells whether a Cache holds subproblems.
type CacheState int

// The states of a Cache.
const (
	Empty CacheState = iota
	Materialized
)

func (s CacheState) String() string {
	if s == Materialized {
		return "MATERIALIZED"
	}

	return "EMPTY"
}

// Cache holds the materialized subproblems of a wrapper.
type Cache struct {
	mu    sync.Mutex
	state CacheState
	subs  []*discretization.Discretization
}

// Get returns the cached subproblems, calling build first if the cache is
// empty. A failed build leaves the cache empty.
func (c *Cache) Get(
	build func() ([]*discretization.Discretization, error),
) ([]*discretization.Discretization, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Materialized {
		return c.subs, nil
	}

	subs, err := build()
	if err != nil {
		return nil, err
	}

	c.subs = subs
	c.state = Materialized

	return subs, nil
}

// Peek returns the cached subproblems without building them. ok is false
// when the cache is empty.
func (c *Cache) Peek() (subs []*discretization.Discretization, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.subs, c.state == Materialized
}

// Invalidate drops the cached subproblems.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subs = nil
	c.state = Empty
}

// State returns the current state.
func (c *Cache) State() CacheState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}
