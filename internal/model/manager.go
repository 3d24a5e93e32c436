package model

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentrt/runtime/internal/errs"
)

// RoutingRule picks a primary backend by name when condition matches,
// falling back through Fallbacks in order if the primary is not
// registered.
type RoutingRule struct {
	Name      string
	Condition func(agentID, taskType string) bool
	Fallbacks []string
}

// Manager is the ModelManager: a named backend registry with routing
// rules and fallback-aware generation.
type Manager struct {
	mu          sync.Mutex
	backends    map[string]Backend
	order       []string
	defaultName string
	rules       []RoutingRule
	stats       map[string]*Stats
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{
		backends: make(map[string]Backend),
		stats:    make(map[string]*Stats),
	}
}

// Register adds a backend, marking it the default if isDefault is true
// or it is the first backend registered.
func (m *Manager) Register(b Backend, isDefault bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.backends[b.Name()]; !exists {
		m.order = append(m.order, b.Name())
	}
	m.backends[b.Name()] = b
	m.stats[b.Name()] = &Stats{}
	if isDefault || m.defaultName == "" {
		m.defaultName = b.Name()
	}
}

// AddRoutingRule appends a routing rule, evaluated in the order added.
func (m *Manager) AddRoutingRule(r RoutingRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, r)
}

// SelectModel picks a backend name for agentID/taskType: the first
// matching routing rule's registered primary or fallback, else (if
// preferLocal) the first local/ollama backend in registration order,
// else the default. Errors if no default is configured and no other
// rule matched.
func (m *Manager) SelectModel(agentID, taskType string, preferLocal bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rule := range m.rules {
		if !rule.Condition(agentID, taskType) {
			continue
		}
		if _, ok := m.backends[rule.Name]; ok {
			return rule.Name, nil
		}
		for _, fb := range rule.Fallbacks {
			if _, ok := m.backends[fb]; ok {
				return fb, nil
			}
		}
		break
	}

	if preferLocal {
		for _, name := range m.order {
			t := m.backends[name].Type()
			if t == "local" || t == "ollama" {
				return name, nil
			}
		}
	}

	if m.defaultName == "" {
		return "", fmt.Errorf("model: no default backend configured: %w", errs.ErrNotFound)
	}
	return m.defaultName, nil
}

// Generate resolves agentID/taskType to a backend via SelectModel and
// invokes it directly, recording stats.
func (m *Manager) Generate(ctx context.Context, opts GenerationOptions, agentID, taskType string) (GenerationResult, error) {
	name, err := m.SelectModel(agentID, taskType, false)
	if err != nil {
		return GenerationResult{}, err
	}
	return m.generateOn(ctx, name, opts)
}

// GenerateWithFallback tries backends ordered by descending
// TotalRequests (warm preferred), skipping unhealthy ones, returning
// the first successful generation. It raises the last error if every
// backend fails.
func (m *Manager) GenerateWithFallback(ctx context.Context, opts GenerationOptions, agentID, taskType string) (GenerationResult, error) {
	m.mu.Lock()
	names := append([]string(nil), m.order...)
	sort.SliceStable(names, func(i, j int) bool {
		return m.stats[names[i]].TotalRequests > m.stats[names[j]].TotalRequests
	})
	m.mu.Unlock()

	var lastErr error
	for _, name := range names {
		m.mu.Lock()
		b := m.backends[name]
		m.mu.Unlock()
		if b == nil || !b.IsHealthy(ctx) {
			continue
		}
		res, err := m.generateOn(ctx, name, opts)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("model: no healthy backend available: %w", errs.ErrNotFound)
	}
	return GenerationResult{}, lastErr
}

func (m *Manager) generateOn(ctx context.Context, name string, opts GenerationOptions) (GenerationResult, error) {
	m.mu.Lock()
	b, ok := m.backends[name]
	stats := m.stats[name]
	m.mu.Unlock()
	if !ok {
		return GenerationResult{}, fmt.Errorf("model: unknown backend %q: %w", name, errs.ErrNotFound)
	}

	start := time.Now()
	res, err := b.Generate(ctx, opts)
	latency := time.Since(start)

	m.mu.Lock()
	stats.record(latency, res.TokensUsed, err != nil)
	m.mu.Unlock()

	return res, err
}

// Stats returns a snapshot of name's aggregate stats.
func (m *Manager) Stats(name string) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[name]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}
