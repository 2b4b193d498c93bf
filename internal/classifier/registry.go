package classifier

import (
	"fmt"
	"sort"
	"time"

	"MDMWatch/internal/ports"
)

// Params carries the per-check rule configuration.
type Params struct {
	TimeField          string
	Threshold          time.Duration
	ExpiringSoonWindow time.Duration
	Field              string
	Values             []string
}

// Factory builds a classifier from check parameters.
type Factory func(Params) (ports.Classifier, error)

// Registry keeps a mapping from rule names to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Default returns a registry with every built-in rule.
func Default() *Registry {
	r := NewRegistry()
	r.Register(RuleStale, newStale)
	r.Register(RuleExpiring, newExpiring)
	r.Register(RuleMatch, newMatch)
	r.Register(RuleAll, newAll)
	return r
}

// Register adds or replaces a rule.
func (r *Registry) Register(name string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[name] = factory
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// Names lists registered rules alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build resolves a rule by name and instantiates it.
func (r *Registry) Build(name string, params Params) (ports.Classifier, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("classifier %s is not registered", name)
	}
	c, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("classifier %s: %w", name, err)
	}
	return c, nil
}
