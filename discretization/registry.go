package discretization

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownOperator is returned when a configuration names an operator
// builder that was never registered.
var ErrUnknownOperator = errors.New("discretization: unknown operator")

// A Constructor creates the Discretization for one subproblem configuration.
type Constructor func(cfg Config) (*Discretization, error)

// A Registry maps operator names to builders so that a Config alone is
// enough to construct its Discretization, in this process or in a worker
// process.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]OperatorBuilder
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]OperatorBuilder)}
}

// Register adds a builder. Registering an empty name or the same name twice
// panics.
func (r *Registry) Register(name string, b OperatorBuilder) {
	if name == "" {
		panic("discretization: operator name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.builders[name]; ok {
		panic("discretization: operator " + name + " already registered")
	}

	r.builders[name] = b
}

// Lookup returns the builder registered under name.
func (r *Registry) Lookup(name string) (OperatorBuilder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownOperator, name)
	}

	return b, nil
}

// Names lists the registered operators in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Constructor returns a Constructor that resolves Config.Operator in r.
func (r *Registry) Constructor(opts ...Option) Constructor {
	return func(cfg Config) (*Discretization, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		b, err := r.Lookup(cfg.Operator)
		if err != nil {
			return nil, err
		}

		return New(cfg, b, opts...)
	}
}
