package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentrt/runtime/internal/audit"
	"github.com/agentrt/runtime/internal/errs"
	"github.com/agentrt/runtime/internal/events"
)

// Manager is the ToolManager: it gates, rate-limits, times out, and
// audits every tool invocation.
type Manager struct {
	mu               sync.Mutex
	tools            map[string]Tool
	toolPermissions  map[string]map[string]struct{} // agentID -> set of granted tool names
	limiters         map[string]*rate.Limiter
	stats            map[string]*Stats
	auditor          *audit.Logger
	eventBus         *events.Bus
}

// NewManager constructs an empty Manager. auditor and eventBus may be
// nil.
func NewManager(auditor *audit.Logger, eventBus *events.Bus) *Manager {
	return &Manager{
		tools:           make(map[string]Tool),
		toolPermissions: make(map[string]map[string]struct{}),
		limiters:        make(map[string]*rate.Limiter),
		stats:           make(map[string]*Stats),
		auditor:         auditor,
		eventBus:        eventBus,
	}
}

// Register adds a tool, replacing any prior tool of the same name.
func (m *Manager) Register(t Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools[t.Name()] = t
	m.stats[t.Name()] = &Stats{}
	if limit := t.RateLimitPerMinute(); limit > 0 {
		m.limiters[t.Name()] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(limit)), limit)
	}
}

// Grant explicitly grants agentID permission to call toolName.
func (m *Manager) Grant(agentID, toolName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.toolPermissions[agentID]
	if !ok {
		set = make(map[string]struct{})
		m.toolPermissions[agentID] = set
	}
	set[toolName] = struct{}{}
}

// Revoke removes agentID's permission to call toolName.
func (m *Manager) Revoke(agentID, toolName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.toolPermissions[agentID]; ok {
		delete(set, toolName)
	}
}

func (m *Manager) isGranted(agentID, toolName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.toolPermissions[agentID]
	if !ok {
		return false
	}
	_, granted := set[toolName]
	return granted
}

// Stats returns a snapshot of toolName's aggregate stats.
func (m *Manager) Stats(toolName string) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[toolName]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}

func (m *Manager) audit(eventType, agentID, toolName, details string) {
	if m.auditor == nil {
		return
	}
	m.auditor.Record(audit.Event{EventType: eventType, AgentID: agentID, ToolName: toolName, Details: details})
}

// CallTool runs toolName on behalf of agentID, enforcing permission
// grant, per-tool rate limit, argument validation, and timeout, in
// that order, recording stats and an audit trail either way.
func (m *Manager) CallTool(ctx context.Context, agentID, toolName string, args map[string]any, timeoutOverride time.Duration) (Result, error) {
	m.mu.Lock()
	t, ok := m.tools[toolName]
	limiter := m.limiters[toolName]
	stats := m.stats[toolName]
	m.mu.Unlock()

	if !ok {
		return Result{}, fmt.Errorf("tool: unknown tool %q: %w", toolName, errs.ErrNotFound)
	}

	if !m.isGranted(agentID, toolName) {
		m.audit("permission-denied", agentID, toolName, "tool not granted to agent")
		return Result{}, fmt.Errorf("tool: %s not granted tool %q: %w", agentID, toolName, errs.ErrPermissionDenied)
	}

	if limiter != nil && !limiter.Allow() {
		m.audit("rate-limit", agentID, toolName, "tool rate limit exceeded")
		return Result{}, fmt.Errorf("tool: %q rate limit exceeded: %w", toolName, errs.ErrRateLimited)
	}

	if v := t.Validate(args); !v.Valid {
		m.audit("validation-failed", agentID, toolName, strings.Join(v.Reasons, "; "))
		return Result{}, fmt.Errorf("tool: invalid args for %q (%s): %w", toolName, strings.Join(v.Reasons, "; "), errs.ErrValidationFailed)
	}

	timeout := timeoutOverride
	if timeout <= 0 && t.Timeout() > 0 {
		timeout = time.Duration(t.Timeout()) * time.Millisecond
	}
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m.publish(events.KindToolCalled, agentID, toolName, nil)
	start := time.Now()
	result, err := t.Execute(callCtx, args)
	latency := time.Since(start)

	failed := err != nil
	m.mu.Lock()
	stats.record(latency, failed)
	m.mu.Unlock()

	if err != nil {
		if callCtx.Err() != nil {
			m.audit("tool-timeout", agentID, toolName, err.Error())
			m.publish(events.KindToolDone, agentID, toolName, map[string]any{"ok": false, "timeout": true})
			return result, fmt.Errorf("tool: %q timed out: %w", toolName, errs.ErrTimeout)
		}
		m.audit("tool-error", agentID, toolName, err.Error())
		m.publish(events.KindToolDone, agentID, toolName, map[string]any{"ok": false})
		return result, fmt.Errorf("tool: %q execution failed: %w", toolName, err)
	}

	m.audit("tool-call", agentID, toolName, "")
	m.publish(events.KindToolDone, agentID, toolName, map[string]any{"ok": true, "latency_ms": latency.Milliseconds()})
	return result, nil
}

func (m *Manager) publish(kind, agentID, toolName string, extra map[string]any) {
	if m.eventBus == nil {
		return
	}
	data := map[string]any{"agent_id": agentID, "tool": toolName}
	for k, v := range extra {
		data[k] = v
	}
	m.eventBus.Publish(events.Event{Source: events.SourceTool, Kind: kind, Data: data})
}
