// Package kernel wires every runtime component together: the agent
// registry, IPC, memory, tool, and model managers, the orchestrator, the
// audit logger, and the lifecycle event bus. It is the single place
// construction order matters.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/audit"
	"github.com/agentrt/runtime/internal/bus"
	"github.com/agentrt/runtime/internal/config"
	"github.com/agentrt/runtime/internal/errs"
	"github.com/agentrt/runtime/internal/events"
	"github.com/agentrt/runtime/internal/ipc"
	"github.com/agentrt/runtime/internal/memory"
	"github.com/agentrt/runtime/internal/model"
	"github.com/agentrt/runtime/internal/orchestrator"
	"github.com/agentrt/runtime/internal/registry"
	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/internal/tool"
	"github.com/agentrt/runtime/internal/vault"
	"github.com/google/uuid"
)

// storeAuditAdapter bridges internal/store.Store's AppendAuditEvent
// (store.AuditEvent) to audit.Store's AppendAuditEvent (audit.StoreEvent):
// the two types are field-for-field identical but distinct named types,
// so Go's nominal interface satisfaction needs this conversion shim.
type storeAuditAdapter struct {
	s *store.Store
}

func (a storeAuditAdapter) AppendAuditEvent(e audit.StoreEvent) error {
	return a.s.AppendAuditEvent(store.AuditEvent(e))
}

// storeSecretResolver bridges internal/vault + internal/store into the
// SecretResolver surface internal/model.RemoteBackend uses to fetch its
// API key.
type storeSecretResolver struct {
	s *store.Store
	v *vault.Vault
}

func (r storeSecretResolver) ResolveSecret(ctx context.Context, name string) (string, error) {
	secrets, err := r.s.ListSecrets()
	if err != nil {
		return "", fmt.Errorf("kernel: list secrets: %w", err)
	}
	var id string
	for _, sec := range secrets {
		if sec.Name == name {
			id = sec.ID
			break
		}
	}
	if id == "" {
		return "", fmt.Errorf("kernel: secret %q: %w", name, errs.ErrNotFound)
	}
	sec, err := r.s.GetSecret(id)
	if err != nil || sec == nil {
		return "", fmt.Errorf("kernel: secret %q: %w", name, errs.ErrNotFound)
	}
	plaintext, err := r.v.DecryptString(sec.Value, sec.Nonce)
	if err != nil {
		return "", fmt.Errorf("kernel: decrypt secret %q: %w", name, err)
	}
	return plaintext, nil
}

// Kernel is the top-level runtime: every request the embedding
// application makes (register an agent, dispatch a task, send an IPC
// message) flows through it.
type Kernel struct {
	Store        *store.Store
	Vault        *vault.Vault
	BusServer    *bus.Server
	Bus          *bus.MessageBus
	Registry     *registry.Registry
	IPC          *ipc.Manager
	Memory       *memory.Manager
	Tools        *tool.Manager
	Models       *model.Manager
	Orchestrator *orchestrator.Orchestrator
	Audit        *audit.Logger
	Events       *events.Bus

	activity *agent.ActivityTracker

	inboxMu sync.Mutex
	inboxes map[string]func() error
}

// New constructs a Kernel in dependency order: store -> vault -> bus ->
// registry -> managers -> orchestrator.
func New(cfg *config.Config) (*Kernel, error) {
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("kernel: open store: %w", err)
	}

	v := vault.New(cfg.VaultPassphrase)

	busServer, err := bus.NewServer(bus.ServerConfig{Port: cfg.NATS.Port, DataDir: cfg.NATS.DataDir})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("kernel: start embedded message bus: %w", err)
	}
	messageBus, err := bus.New(busServer)
	if err != nil {
		busServer.Close()
		_ = st.Close()
		return nil, fmt.Errorf("kernel: connect message bus: %w", err)
	}

	reg := registry.New()

	eventBus := events.New()

	var auditStore audit.Store
	if cfg.Audit.PersistToStore {
		auditStore = storeAuditAdapter{s: st}
	}
	auditLogger := audit.New(cfg.Audit.MaxEvents, auditStore)

	ipcMgr := ipc.New(reg, messageBus, ipc.Config{MaxPerWindow: cfg.IPC.MaxPerWindow, WindowMs: cfg.IPC.WindowMs})

	embedder := memory.NewHashEmbedder(0)
	memMgr := memory.NewManager(cfg.Memory.MaxShortTermSize, cfg.Memory.EnableVectorSearch, embedder)

	toolMgr := tool.NewManager(auditLogger, eventBus)

	modelMgr := model.NewManager()
	resolver := storeSecretResolver{s: st, v: v}
	for _, bc := range cfg.ModelBackends {
		modelMgr.Register(newBackendFromConfig(bc, resolver), bc.IsDefault)
	}

	orchCfg := orchestrator.Config{
		AtomicTimeout: time.Duration(cfg.Orchestrator.AtomicTimeoutMs) * time.Millisecond,
		RetryBase:     time.Duration(cfg.Orchestrator.RetryBaseMs) * time.Millisecond,
		RetryCap:      time.Duration(cfg.Orchestrator.RetryCapMs) * time.Millisecond,
	}
	orch := orchestrator.New(reg, orchCfg, eventBus, auditLogger)

	return &Kernel{
		Store:        st,
		Vault:        v,
		BusServer:    busServer,
		Bus:          messageBus,
		Registry:     reg,
		IPC:          ipcMgr,
		Memory:       memMgr,
		Tools:        toolMgr,
		Models:       modelMgr,
		Orchestrator: orch,
		Audit:        auditLogger,
		Events:       eventBus,
		activity:     agent.NewActivityTracker(),
		inboxes:      make(map[string]func() error),
	}, nil
}

// newBackendFromConfig builds a stub backend from a ModelBackendConfig.
// Concrete wire protocols are left to the embedding application; this
// wires the name/routing surface so ModelManager has something to
// select and GenerateWithFallback has something to call.
func newBackendFromConfig(bc config.ModelBackendConfig, resolver model.SecretResolver) model.Backend {
	if bc.APIKeySecret != "" {
		return &model.RemoteBackend{
			NameValue:        bc.Name,
			ModelValue:       bc.Model,
			Endpoint:         bc.Endpoint,
			APIKeySecretName: bc.APIKeySecret,
			Resolver:         resolver,
		}
	}
	return &model.LocalBackend{
		NameValue:  bc.Name,
		TypeValue:  bc.Type,
		ModelValue: bc.Model,
	}
}

// RegisterAgent builds and registers an Agent from its static config
// plus a caller-supplied handler and grants it its declared tools.
// Activity tracking begins in StartAgent.
func (k *Kernel) RegisterAgent(id string, ac config.AgentConfig, handler agent.HandlerFunc, onMessage agent.MessageFunc) (*agent.Agent, error) {
	perms := make(map[agent.Permission]struct{}, len(ac.Permissions))
	for _, p := range ac.Permissions {
		perms[agent.Permission(p)] = struct{}{}
	}

	a := &agent.Agent{
		ID:          id,
		Name:        ac.Name,
		Model:       ac.Model,
		State:       agent.StateUninitialized,
		Tags:        ac.Tags,
		Permissions: perms,
		Handler:     handler,
		OnMessage:   onMessage,
		Metadata:    agent.Metadata{Capabilities: ac.Capabilities},
	}

	if err := k.Registry.Register(a); err != nil {
		return nil, fmt.Errorf("kernel: register agent %s: %w", id, err)
	}
	for _, toolName := range ac.AllowedTools {
		k.Tools.Grant(id, toolName)
	}
	return a, nil
}

// PutSecret encrypts plaintext under the Kernel's Vault and persists it
// under name, creating or overwriting the named secret. ModelManager
// backends and future tool credentials resolve it back by name through
// storeSecretResolver.
func (k *Kernel) PutSecret(name, kind, plaintext string, global bool) error {
	ciphertext, nonce, err := k.Vault.EncryptString(plaintext)
	if err != nil {
		return fmt.Errorf("kernel: encrypt secret %q: %w", name, err)
	}

	existing, err := k.Store.ListSecrets()
	if err != nil {
		return fmt.Errorf("kernel: list secrets: %w", err)
	}
	id := uuid.NewString()
	for _, sec := range existing {
		if sec.Name == name {
			id = sec.ID
			break
		}
	}

	if err := k.Store.SaveSecret(&store.Secret{
		ID: id, Name: name, Kind: kind, Value: ciphertext, Nonce: nonce, Global: global,
	}); err != nil {
		return fmt.Errorf("kernel: save secret %q: %w", name, err)
	}
	return nil
}

// StartAgent transitions an agent to idle, subscribes its IPC inbox
// (agent.<id> on the message bus) to its OnMessage handler, and begins
// tracking its activity for idle reaping.
func (k *Kernel) StartAgent(id string) error {
	a, err := k.Registry.Get(id)
	if err != nil {
		return fmt.Errorf("kernel: start agent %s: %w", id, err)
	}
	if err := k.Registry.SetState(id, agent.StateIdle); err != nil {
		return fmt.Errorf("kernel: start agent %s: %w", id, err)
	}
	k.activity.Start(id)

	if a.OnMessage != nil {
		unsubscribe, err := k.Bus.Subscribe(bus.TopicAgent(id), func(msg bus.Message) {
			var envelope agent.IPCMessage
			if err := msg.Unmarshal(&envelope); err != nil {
				slog.Error("kernel: failed to decode inbox message", "agent_id", id, "error", err)
				return
			}
			k.activity.Touch(id)
			a.OnMessage(context.Background(), envelope)
		})
		if err != nil {
			return fmt.Errorf("kernel: subscribe inbox for agent %s: %w", id, err)
		}
		k.inboxMu.Lock()
		k.inboxes[id] = unsubscribe
		k.inboxMu.Unlock()
	}

	k.Events.Publish(events.Event{Source: events.SourceAgent, Kind: events.KindAgentStateChanged, Data: map[string]any{"agentId": id, "state": string(agent.StateIdle)}})
	return nil
}

// StopAgent transitions an agent to stopped, unsubscribes its IPC
// inbox, and drops its activity record.
func (k *Kernel) StopAgent(id string) error {
	if err := k.Registry.SetState(id, agent.StateStopped); err != nil {
		return fmt.Errorf("kernel: stop agent %s: %w", id, err)
	}
	k.activity.Remove(id)

	k.inboxMu.Lock()
	unsubscribe, ok := k.inboxes[id]
	delete(k.inboxes, id)
	k.inboxMu.Unlock()
	if ok {
		if err := unsubscribe(); err != nil {
			slog.Warn("kernel: failed to unsubscribe agent inbox", "agent_id", id, "error", err)
		}
	}

	k.Events.Publish(events.Event{Source: events.SourceAgent, Kind: events.KindAgentStateChanged, Data: map[string]any{"agentId": id, "state": string(agent.StateStopped)}})
	return nil
}

// WatchAgentActivity subscribes to the orchestrator's lifecycle events
// and flips an agent's registry state between busy and idle as its
// atomic tasks start and finish, so /api/agents reports live status
// without the orchestrator needing a direct registry dependency beyond
// AgentLookup. Runs until ctx is cancelled.
func (k *Kernel) WatchAgentActivity(ctx context.Context) {
	ch := k.Events.Subscribe(256)
	defer k.Events.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Source != events.SourceOrchestrator {
				continue
			}
			agentID, _ := e.Data["agentId"].(string)
			if agentID == "" {
				continue
			}
			k.activity.Touch(agentID)
			switch e.Kind {
			case events.KindTaskStarted:
				_ = k.Registry.SetState(agentID, agent.StateBusy)
			case events.KindTaskCompleted, events.KindTaskFailed, events.KindTaskCancelled:
				_ = k.Registry.SetState(agentID, agent.StateIdle)
			}
		}
	}
}

// ReapIdleAgents stops every agent inactive for longer than timeout,
// returning the ids stopped.
func (k *Kernel) ReapIdleAgents(timeout time.Duration) []string {
	idle := k.activity.ListIdle(timeout)
	for _, id := range idle {
		if err := k.StopAgent(id); err != nil {
			slog.Warn("kernel: failed to reap idle agent", "agent_id", id, "error", err)
		}
	}
	return idle
}

// DispatchTask submits a task tree as a new workflow and runs it,
// touching the activity of every agent named in the tree once, before
// the run starts.
func (k *Kernel) DispatchTask(ctx context.Context, wf *orchestrator.Workflow) (*orchestrator.Outcome, error) {
	k.Orchestrator.Submit(wf)
	k.Events.Publish(events.Event{Source: events.SourceOrchestrator, Kind: events.KindWorkflowFired, Data: map[string]any{"workflowId": wf.ID}})
	touchTree(k.activity, wf.Root)
	return k.Orchestrator.Run(ctx, wf)
}

func touchTree(tracker *agent.ActivityTracker, t *orchestrator.Task) {
	if t == nil {
		return
	}
	if t.AgentID != "" {
		tracker.Touch(t.AgentID)
	}
	for _, sub := range t.Subtasks {
		touchTree(tracker, sub)
	}
}

// Close releases the store, vault-adjacent resources, and embedded
// message bus, in reverse construction order.
func (k *Kernel) Close() error {
	k.Bus.Close()
	k.BusServer.Close()
	return k.Store.Close()
}
