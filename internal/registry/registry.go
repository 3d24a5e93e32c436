// Package registry implements the AgentRegistry: the exclusive owner of
// every Agent record, looked up by id or by tag in stable insertion
// order.
package registry

import (
	"fmt"
	"sync"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/errs"
)

// Registry holds agent records; lookup by id and by tag.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent
	order  []string // insertion order, for stable getAll/getByTag
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{agents: make(map[string]*agent.Agent)}
}

// Register adds a new agent. It fails if the id is already present.
func (r *Registry) Register(a *agent.Agent) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("registry: register: %w: agent id is empty", errs.ErrValidationFailed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.ID]; exists {
		return fmt.Errorf("registry: register %s: %w", a.ID, errs.ErrDuplicate)
	}
	if a.Permissions == nil {
		a.Permissions = make(map[agent.Permission]struct{})
	}
	if a.State == "" {
		a.State = agent.StateUninitialized
	}
	r.agents[a.ID] = a
	r.order = append(r.order, a.ID)
	return nil
}

// Get returns the agent registered under id.
func (r *Registry) Get(id string) (*agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("registry: get %s: %w", id, errs.ErrNotFound)
	}
	return a, nil
}

// GetByTag returns every agent whose tag list contains tag, in
// registration order.
func (r *Registry) GetByTag(tag string) []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*agent.Agent
	for _, id := range r.order {
		a, ok := r.agents[id]
		if !ok {
			continue
		}
		if a.HasTag(tag) {
			matched = append(matched, a)
		}
	}
	return matched
}

// GetAll returns every registered agent, in registration order.
func (r *Registry) GetAll() []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*agent.Agent, 0, len(r.order))
	for _, id := range r.order {
		if a, ok := r.agents[id]; ok {
			all = append(all, a)
		}
	}
	return all
}

// Unregister removes an agent from the registry. It is not an error to
// unregister an id that is not present.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; !ok {
		return
	}
	delete(r.agents, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// SetState transitions an agent's lifecycle state. Used by the kernel on
// start/stop and by Kernel.WatchAgentActivity while a handler is running.
func (r *Registry) SetState(id string, state agent.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("registry: set state %s: %w", id, errs.ErrNotFound)
	}
	a.State = state
	return nil
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
