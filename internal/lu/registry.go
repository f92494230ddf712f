package lu

import (
	"fmt"
	"sync"

	"github.com/piscisaureus/istgt/internal/istgterr"
)

// Registry is the process-wide collection of configured targets, reachable
// from the acceptor, connection workers and task workers. It replaces the
// "ISTGT singleton" global with an explicit handle passed by reference
// (§9): every field is guarded by its own lock, and there is no ambient
// global state.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]*Target
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]*Target)}
}

// Add registers target, failing if its name is already taken.
func (r *Registry) Add(t *Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.targets[t.Name]; exists {
		return fmt.Errorf("target %q already registered: %w", t.Name, istgterr.ErrConfig)
	}
	r.targets[t.Name] = t
	return nil
}

// Lookup returns the target named name, or ok=false.
func (r *Registry) Lookup(name string) (*Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[name]
	return t, ok
}

// Count returns the number of registered targets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

// All returns a snapshot of every registered target, for discovery
// SendTargets responses (§8 S1).
func (r *Registry) All() []*Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	return out
}
