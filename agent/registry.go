package agent

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrAgentNotFound is returned when a name is not registered.
	ErrAgentNotFound = errors.New("agent not registered")
	// ErrDuplicateAgent is returned when two different agents share a name.
	ErrDuplicateAgent = errors.New("duplicate agent name")
)

// Registry holds the agents a runner may hand off to. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	order  []string
}

// NewRegistry creates a registry holding agents.
func NewRegistry(agents ...*Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]*Agent)}
	if err := r.Register(agents...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds agents. Registering the same agent twice is a no-op; a
// different agent with a registered name fails.
func (r *Registry) Register(agents ...*Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range agents {
		if a == nil {
			return fmt.Errorf("%w: nil agent", ErrInvalidAgent)
		}
		if existing, ok := r.agents[a.name]; ok {
			if existing == a {
				continue
			}
			return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.name)
		}
		r.agents[a.name] = a
		r.order = append(r.order, a.name)
	}

	return nil
}

// RegisterTree registers root and every agent reachable through static
// handoff targets.
func (r *Registry) RegisterTree(root *Agent) error {
	seen := map[*Agent]bool{}

	var walk func(a *Agent) error
	walk = func(a *Agent) error {
		if a == nil || seen[a] {
			return nil
		}
		seen[a] = true

		if err := r.Register(a); err != nil {
			return err
		}
		for _, h := range a.handoffs {
			if err := walk(h.Target); err != nil {
				return err
			}
		}
		return nil
	}

	return walk(root)
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	return a, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.order)
}

// Validate checks that every static handoff target and every allow-listed
// name of the registered agents is registered.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, name := range r.order {
		a := r.agents[name]
		for _, h := range a.handoffs {
			if h.Target != nil {
				if _, ok := r.agents[h.Target.name]; !ok {
					errs = append(errs, fmt.Errorf("%w: agent %s hands off to %s", ErrAgentNotFound, name, h.Target.name))
				}
			}
		}
		for _, target := range a.allowedTargets {
			if _, ok := r.agents[target]; !ok {
				errs = append(errs, fmt.Errorf("%w: agent %s allows %s", ErrAgentNotFound, name, target))
			}
		}
	}

	return errors.Join(errs...)
}
