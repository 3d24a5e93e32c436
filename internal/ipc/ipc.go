// Package ipc implements the IPCManager: permissioned, rate-limited,
// ACL-filtered message routing between agents.
package ipc

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/bus"
	"github.com/agentrt/runtime/internal/errs"
)

// AgentLookup is the read-only view the IPCManager needs of the
// registry, kept narrow so package ipc never depends on package kernel.
type AgentLookup interface {
	Get(id string) (*agent.Agent, error)
	GetByTag(tag string) []*agent.Agent
}

// Config controls the default sender rate-limit window.
type Config struct {
	MaxPerWindow int
	WindowMs     int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{MaxPerWindow: 100, WindowMs: 60_000}
}

// tagACL is the per-recipient allow/deny list for tag-based delivery.
type tagACL struct {
	allowed map[string]struct{}
	denied  map[string]struct{}
}

func newTagACL() *tagACL {
	return &tagACL{allowed: make(map[string]struct{}), denied: make(map[string]struct{})}
}

// Manager is the IPCManager: it owns per-recipient inboxes, per-sender
// rate-limit state, per-recipient tag ACLs, and routes messages onto the
// MessageBus.
type Manager struct {
	cfg      Config
	registry AgentLookup
	bus      *bus.MessageBus

	mu      sync.Mutex
	inboxes map[string][]agent.IPCMessage
	limits  map[string]*rate.Limiter
	acls    map[string]*tagACL
}

// New builds an IPCManager bound to reg for permission/ACL lookups and
// bus for publish fan-out.
func New(reg AgentLookup, b *bus.MessageBus, cfg Config) *Manager {
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = DefaultConfig().MaxPerWindow
	}
	if cfg.WindowMs <= 0 {
		cfg.WindowMs = DefaultConfig().WindowMs
	}
	return &Manager{
		cfg:      cfg,
		registry: reg,
		bus:      b,
		inboxes:  make(map[string][]agent.IPCMessage),
		limits:   make(map[string]*rate.Limiter),
		acls:     make(map[string]*tagACL),
	}
}

func (m *Manager) limiterFor(sender string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limits[sender]
	if !ok {
		window := time.Duration(m.cfg.WindowMs) * time.Millisecond
		l = rate.NewLimiter(rate.Every(window/time.Duration(m.cfg.MaxPerWindow)), m.cfg.MaxPerWindow)
		m.limits[sender] = l
	}
	return l
}

// consumeRateLimit reports whether the sender has a free slot right now.
// "system" is exempt from rate limiting entirely.
func (m *Manager) consumeRateLimit(sender string) bool {
	if sender == "system" {
		return true
	}
	return m.limiterFor(sender).Allow()
}

func hasAnyPermission(a *agent.Agent, perms []agent.Permission) bool {
	return a.HasPermission(perms...)
}

// SendToAgent delivers a message directly from one agent to another. See
// spec.md §4.3 for the full contract; requiredSenderPerms defaults to
// [ipc:send] and requireReceive defaults to true via SendOption.
func (m *Manager) SendToAgent(from, to, msgType string, payload agent.Payload, opts ...SendOption) (*agent.IPCMessage, error) {
	cfg := sendConfig{requiredSenderPerms: []agent.Permission{agent.PermIPCSend}, requireReceive: true}
	for _, o := range opts {
		o(&cfg)
	}

	if from != "system" {
		sender, err := m.registry.Get(from)
		if err != nil {
			return nil, fmt.Errorf("ipc: send from %s: %w", from, errs.ErrPermissionDenied)
		}
		if !hasAnyPermission(sender, cfg.requiredSenderPerms) {
			return nil, fmt.Errorf("ipc: %s lacks permission to send: %w", from, errs.ErrPermissionDenied)
		}
	}

	if !m.consumeRateLimit(from) {
		return nil, fmt.Errorf("ipc: sender %s: %w", from, errs.ErrRateLimited)
	}

	receiver, err := m.registry.Get(to)
	receiverExists := err == nil
	if receiverExists && !receiver.HasPermission(agent.PermIPCReceive) {
		if cfg.requireReceive {
			return nil, fmt.Errorf("ipc: receiver %s: %w", to, errs.ErrPermissionDenied)
		}
		return nil, nil
	}

	msg := agent.IPCMessage{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	m.inboxes[to] = append(m.inboxes[to], msg)
	m.mu.Unlock()

	if m.bus != nil {
		_ = m.bus.Publish(bus.TopicAgent(to), msg)
	}

	return &msg, nil
}

// canReceiveTag applies the ACL semantics of spec.md §4.3 for one
// recipient and one tag.
func (m *Manager) canReceiveTag(agentID, tag string) bool {
	m.mu.Lock()
	acl, ok := m.acls[agentID]
	m.mu.Unlock()
	if !ok {
		return true
	}
	if _, denied := acl.denied[tag]; denied {
		return false
	}
	if len(acl.allowed) == 0 {
		return true
	}
	_, allowed := acl.allowed[tag]
	return allowed
}

// SendToTag fans a message out to every registered agent carrying tag,
// in the registry's stable insertion order, skipping recipients whose
// ACL rejects the tag. The sender never receives its own fan-out.
func (m *Manager) SendToTag(from, tag, msgType string, payload agent.Payload) ([]agent.IPCMessage, error) {
	if from != "system" {
		sender, err := m.registry.Get(from)
		if err != nil || !hasAnyPermission(sender, []agent.Permission{agent.PermIPCSend, agent.PermIPCSendTag}) {
			return nil, fmt.Errorf("ipc: %s lacks permission to send to tag %s: %w", from, tag, errs.ErrPermissionDenied)
		}
	}
	if !m.consumeRateLimit(from) {
		return nil, fmt.Errorf("ipc: sender %s: %w", from, errs.ErrRateLimited)
	}

	candidates := m.registry.GetByTag(tag)
	delivered := make([]agent.IPCMessage, 0, len(candidates))
	for _, recipient := range candidates {
		if recipient.ID == from {
			continue
		}
		if !m.canReceiveTag(recipient.ID, tag) {
			continue
		}
		msg, err := m.deliverWithoutRateLimit(from, recipient.ID, msgType, payload)
		if err != nil {
			continue
		}
		if msg != nil {
			delivered = append(delivered, *msg)
		}
	}

	if m.bus != nil {
		_ = m.bus.Publish(bus.TopicTag(tag), delivered)
	}
	return delivered, nil
}

// Broadcast fans a message out to every agent carrying the reserved
// "broadcast" tag — identical to SendToTag(from, "broadcast", ...) save
// for the sender permission set and an additional synthetic envelope
// published on the plain "broadcast" channel. The sender never receives
// its own broadcast.
func (m *Manager) Broadcast(from, msgType string, payload agent.Payload) ([]agent.IPCMessage, error) {
	if from != "system" {
		sender, err := m.registry.Get(from)
		if err != nil || !hasAnyPermission(sender, []agent.Permission{agent.PermIPCSend, agent.PermIPCSendBroadcast}) {
			return nil, fmt.Errorf("ipc: %s lacks permission to broadcast: %w", from, errs.ErrPermissionDenied)
		}
	}
	if !m.consumeRateLimit(from) {
		return nil, fmt.Errorf("ipc: sender %s: %w", from, errs.ErrRateLimited)
	}

	candidates := m.registry.GetByTag(agent.ReservedBroadcastTag)
	delivered := make([]agent.IPCMessage, 0, len(candidates))
	for _, recipient := range candidates {
		if recipient.ID == from {
			continue
		}
		if !m.canReceiveTag(recipient.ID, agent.ReservedBroadcastTag) {
			continue
		}
		msg, err := m.deliverWithoutRateLimit(from, recipient.ID, msgType, payload)
		if err != nil {
			continue
		}
		if msg != nil {
			delivered = append(delivered, *msg)
		}
	}

	if m.bus != nil {
		_ = m.bus.Publish(bus.TopicTag(agent.ReservedBroadcastTag), delivered)
		_ = m.bus.Publish(bus.TopicBroadcast, delivered)
	}
	return delivered, nil
}

// deliverWithoutRateLimit performs the permission + inbox-append + publish
// steps of SendToAgent without touching the sender's rate-limit slot,
// since fan-out sends consume exactly one slot per call, not one per
// recipient.
func (m *Manager) deliverWithoutRateLimit(from, to, msgType string, payload agent.Payload) (*agent.IPCMessage, error) {
	receiver, err := m.registry.Get(to)
	receiverExists := err == nil
	if receiverExists && !receiver.HasPermission(agent.PermIPCReceive) {
		return nil, nil
	}

	msg := agent.IPCMessage{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	m.inboxes[to] = append(m.inboxes[to], msg)
	m.mu.Unlock()

	if m.bus != nil {
		_ = m.bus.Publish(bus.TopicAgent(to), msg)
	}
	return &msg, nil
}

// GetInbox returns the ordered message history delivered to agentID.
func (m *Manager) GetInbox(agentID string) []agent.IPCMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	inbox := m.inboxes[agentID]
	out := make([]agent.IPCMessage, len(inbox))
	copy(out, inbox)
	return out
}

// GrantTagPermission allows agentID to receive messages tagged tag,
// inserting it into the allowlist and removing it from the denylist.
func (m *Manager) GrantTagPermission(agentID, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acl := m.aclFor(agentID)
	acl.allowed[tag] = struct{}{}
	delete(acl.denied, tag)
}

// RevokeTagPermission removes agentID from tag's allowlist only.
func (m *Manager) RevokeTagPermission(agentID, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acl, ok := m.acls[agentID]; ok {
		delete(acl.allowed, tag)
	}
}

// DenyTag adds agentID to tag's denylist and removes it from the
// allowlist.
func (m *Manager) DenyTag(agentID, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acl := m.aclFor(agentID)
	acl.denied[tag] = struct{}{}
	delete(acl.allowed, tag)
}

// UndenyTag removes agentID from tag's denylist.
func (m *Manager) UndenyTag(agentID, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acl, ok := m.acls[agentID]; ok {
		delete(acl.denied, tag)
	}
}

// ClearTagACL removes agentID's entire ACL entry, reverting to
// accept-all.
func (m *Manager) ClearTagACL(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.acls, agentID)
}

func (m *Manager) aclFor(agentID string) *tagACL {
	acl, ok := m.acls[agentID]
	if !ok {
		acl = newTagACL()
		m.acls[agentID] = acl
	}
	return acl
}

type sendConfig struct {
	requiredSenderPerms []agent.Permission
	requireReceive      bool
}

// SendOption customizes a SendToAgent call.
type SendOption func(*sendConfig)

// WithRequiredSenderPerms overrides the permission set checked on the
// sender (defaults to [ipc:send]).
func WithRequiredSenderPerms(perms ...agent.Permission) SendOption {
	return func(c *sendConfig) { c.requiredSenderPerms = perms }
}

// WithRequireReceive controls whether sending to a registered agent that
// lacks ipc:receive is a hard failure (true, default) or a silent no-op
// (false).
func WithRequireReceive(require bool) SendOption {
	return func(c *sendConfig) { c.requireReceive = require }
}
