// Package registry holds the closed set of workflows an engine instance can
// execute. Workflows are registered as versioned descriptors keyed by
// action type and validated up front; anything outside the set falls back
// to manual-only handling.
package registry

import (
	"fmt"
	"sync"
)

// Registry maps action types to workflow descriptors. Reads vastly outnumber
// writes: registration happens at startup, lookups on every action.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]Workflow
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		workflows: make(map[string]Workflow),
	}
}

// Register validates and adds a workflow. An action type already present is
// only replaced by a strictly newer version; registering the same or an
// older version is a no-op, so reloading unchanged documents never fails
// and stale documents never downgrade.
func (r *Registry) Register(w Workflow) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("register %q: %w", w.ActionType, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.workflows[w.ActionType]; ok && existing.Version >= w.Version {
		return nil
	}
	r.workflows[w.ActionType] = w
	return nil
}

// Lookup returns the workflow for an action type.
func (r *Registry) Lookup(actionType string) (Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[actionType]
	return w, ok
}

// Types returns the registered action types, unordered.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.workflows))
	for t := range r.workflows {
		types = append(types, t)
	}
	return types
}
