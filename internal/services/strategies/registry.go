package strategies

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a thread-safe name-indexed strategy collection.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Strategy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Strategy)}
}

// Register adds a strategy. Registering a duplicate name is an error.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("register strategy %q: already registered", name)
	}
	r.byName[name] = s
	return nil
}

// RegisterAll adds multiple strategies, stopping at the first error.
func (r *Registry) RegisterAll(ss ...Strategy) error {
	for _, s := range ss {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// All returns every registered strategy sorted by name, so callers
// iterate in a stable order.
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.byName))
	for _, s := range r.byName {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered strategies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Clear removes all registered strategies (useful for testing).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]Strategy)
}

// DefaultStrategies returns the full strategy lineup: statistical,
// supervised and rule-based families.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewAutoRegressive(),
		NewHoltSmoothing(),
		NewLinear(),
		NewRidge(),
		NewLasso(),
		NewRandomForest(),
		NewGradientBoosting(),
		NewKernelRidge(),
		NewKNN(),
		NewMACrossover(),
		NewRSIReversal(),
		NewBollingerReversion(),
	}
}

// NewDefaultRegistry returns a registry pre-loaded with DefaultStrategies.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := r.RegisterAll(DefaultStrategies()...); err != nil {
		return nil, err
	}
	return r, nil
}
