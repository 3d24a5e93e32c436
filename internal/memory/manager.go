package memory

import (
	"fmt"
	"sync"

	"github.com/agentrt/runtime/internal/errs"
)

type acl struct {
	canReadFrom  map[string]struct{}
	canWriteTo   map[string]struct{}
}

func newACL(self string) *acl {
	return &acl{
		canReadFrom: map[string]struct{}{self: {}},
		canWriteTo:  map[string]struct{}{self: {}},
	}
}

// Manager wraps per-agent AgentMemory stores behind a read/write ACL
// and an optional vector index for semantic search.
type Manager struct {
	mu                 sync.Mutex
	maxShortTerm       int
	memories           map[string]*AgentMemory
	acls               map[string]*acl
	enableVectorSearch bool
	vectors            *VectorStore
	embedder           Embedder
}

// NewManager constructs a Manager. When enableVectorSearch is true,
// every write is additionally indexed into an internal VectorStore
// using embedder (a HashEmbedder is used if embedder is nil).
func NewManager(maxShortTerm int, enableVectorSearch bool, embedder Embedder) *Manager {
	if embedder == nil {
		embedder = NewHashEmbedder(0)
	}
	return &Manager{
		maxShortTerm:       maxShortTerm,
		memories:           make(map[string]*AgentMemory),
		acls:               make(map[string]*acl),
		enableVectorSearch: enableVectorSearch,
		vectors:            NewVectorStore(),
		embedder:           embedder,
	}
}

func (m *Manager) memoryFor(agentID string) *AgentMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.memories[agentID]
	if !ok {
		mem = New(agentID, m.maxShortTerm)
		m.memories[agentID] = mem
		if _, exists := m.acls[agentID]; !exists {
			m.acls[agentID] = newACL(agentID)
		}
	}
	return mem
}

func (m *Manager) aclFor(agentID string) *acl {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.acls[agentID]
	if !ok {
		a = newACL(agentID)
		m.acls[agentID] = a
	}
	return a
}

// ShareMemoryRead lets from read to's memory.
func (m *Manager) ShareMemoryRead(from, to string) {
	a := m.aclFor(to)
	m.mu.Lock()
	a.canReadFrom[from] = struct{}{}
	m.mu.Unlock()
}

// RevokeMemoryRead removes from's read access to to's memory.
func (m *Manager) RevokeMemoryRead(from, to string) {
	a := m.aclFor(to)
	m.mu.Lock()
	delete(a.canReadFrom, from)
	m.mu.Unlock()
}

// ShareMemoryWrite lets from write to to's memory.
func (m *Manager) ShareMemoryWrite(from, to string) {
	a := m.aclFor(to)
	m.mu.Lock()
	a.canWriteTo[from] = struct{}{}
	m.mu.Unlock()
}

// RevokeMemoryWrite removes from's write access to to's memory.
func (m *Manager) RevokeMemoryWrite(from, to string) {
	a := m.aclFor(to)
	m.mu.Lock()
	delete(a.canWriteTo, from)
	m.mu.Unlock()
}

func (m *Manager) checkRead(caller, target string) error {
	a := m.aclFor(target)
	m.mu.Lock()
	_, ok := a.canReadFrom[caller]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("memory: %s may not read %s's memory: %w", caller, target, errs.ErrPermissionDenied)
	}
	return nil
}

func (m *Manager) checkWrite(caller, target string) error {
	a := m.aclFor(target)
	m.mu.Lock()
	_, ok := a.canWriteTo[caller]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("memory: %s may not write %s's memory: %w", caller, target, errs.ErrPermissionDenied)
	}
	return nil
}

// RememberShort writes a short-term entry to target's memory on behalf
// of caller, subject to the write ACL.
func (m *Manager) RememberShort(caller, target, content string, typ EntryType, metadata map[string]any) (Entry, error) {
	if err := m.checkWrite(caller, target); err != nil {
		return Entry{}, err
	}
	e := m.memoryFor(target).RememberShort(content, typ, metadata)
	m.indexIfEnabled(target, e)
	return e, nil
}

// RememberLong writes a long-term entry to target's memory on behalf of
// caller, subject to the write ACL.
func (m *Manager) RememberLong(caller, target, content string, typ EntryType, metadata map[string]any) (Entry, error) {
	if err := m.checkWrite(caller, target); err != nil {
		return Entry{}, err
	}
	e := m.memoryFor(target).RememberLong(content, typ, metadata)
	m.indexIfEnabled(target, e)
	return e, nil
}

func (m *Manager) indexIfEnabled(ownerAgentID string, e Entry) {
	if !m.enableVectorSearch {
		return
	}
	m.vectors.Add(Vector{
		ID:        e.ID,
		Text:      e.Content,
		Embedding: m.embedder.Embed(e.Content),
		Metadata:  map[string]any{"ownerAgentId": ownerAgentID, "type": string(e.Type)},
	})
}

// Query applies filter to target's combined memory on behalf of
// caller, subject to the read ACL.
func (m *Manager) Query(caller, target string, f Filter) ([]Entry, error) {
	if err := m.checkRead(caller, target); err != nil {
		return nil, err
	}
	return m.memoryFor(target).QueryAll(f), nil
}

// GetContext formats target's recent memory on behalf of caller,
// subject to the read ACL.
func (m *Manager) GetContext(caller, target string, limit int) (string, error) {
	if err := m.checkRead(caller, target); err != nil {
		return "", err
	}
	return m.memoryFor(target).GetContext(limit), nil
}

// SemanticSearch embeds query, ranks every indexed vector by cosine
// similarity, filters by caller's read ACL on each vector's owning
// agent, and returns up to k hits.
func (m *Manager) SemanticSearch(caller, query string, k int) ([]ScoredVector, error) {
	qv := m.embedder.Embed(query)
	ranked, err := m.vectors.Search(qv, 0)
	if err != nil {
		return nil, err
	}

	out := make([]ScoredVector, 0, k)
	for _, sv := range ranked {
		owner, _ := sv.Metadata["ownerAgentId"].(string)
		if err := m.checkRead(caller, owner); err != nil {
			continue
		}
		out = append(out, sv)
		if k > 0 && len(out) >= k {
			break
		}
	}
	return out, nil
}

// Vectors exposes the manager's underlying VectorStore for maintenance
// and testing.
func (m *Manager) Vectors() *VectorStore { return m.vectors }
