package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultMaxShortTerm = 50

// AgentMemory is one agent's private short/long-term store. Short-term
// is a bounded FIFO; entries that overflow it move to the unbounded
// long-term list.
type AgentMemory struct {
	mu             sync.Mutex
	agentID        string
	maxShortTerm   int
	shortTerm      []Entry
	longTerm       []Entry
	idSeq          uint64
	idPrefix       string
}

// New constructs an AgentMemory for agentID with the given short-term
// capacity (0 uses the spec default of 50).
func New(agentID string, maxShortTerm int) *AgentMemory {
	if maxShortTerm <= 0 {
		maxShortTerm = defaultMaxShortTerm
	}
	return &AgentMemory{
		agentID:      agentID,
		maxShortTerm: maxShortTerm,
		idPrefix:     agentID,
	}
}

func (m *AgentMemory) nextID() string {
	m.idSeq++
	return fmt.Sprintf("%s-mem-%d", m.idPrefix, m.idSeq)
}

// RememberShort appends to short-term, demoting the oldest entry to
// long-term on overflow. Returns the stored entry.
func (m *AgentMemory) RememberShort(content string, typ EntryType, metadata map[string]any) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := Entry{ID: m.nextID(), Content: content, Type: typ, Timestamp: time.Now(), Metadata: metadata}
	m.shortTerm = append(m.shortTerm, e)
	if len(m.shortTerm) > m.maxShortTerm {
		overflow := m.shortTerm[0]
		m.shortTerm = m.shortTerm[1:]
		m.longTerm = append(m.longTerm, overflow)
	}
	return e
}

// RememberLong appends directly to the unbounded long-term list.
func (m *AgentMemory) RememberLong(content string, typ EntryType, metadata map[string]any) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := Entry{ID: m.nextID(), Content: content, Type: typ, Timestamp: time.Now(), Metadata: metadata}
	m.longTerm = append(m.longTerm, e)
	return e
}

// QueryShort applies filter to the short-term store.
func (m *AgentMemory) QueryShort(f Filter) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return applyFilter(append([]Entry(nil), m.shortTerm...), f)
}

// QueryLong applies filter to the long-term store.
func (m *AgentMemory) QueryLong(f Filter) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return applyFilter(append([]Entry(nil), m.longTerm...), f)
}

// QueryAll applies filter across long-term then short-term, in
// chronological order (long-term entries predate the current
// short-term window).
func (m *AgentMemory) QueryAll(f Filter) []Entry {
	m.mu.Lock()
	all := append(append([]Entry(nil), m.longTerm...), m.shortTerm...)
	m.mu.Unlock()
	return applyFilter(all, f)
}

// GetContext returns the last limit entries (long-term then
// short-term, chronological) formatted as "[type] content" lines.
func (m *AgentMemory) GetContext(limit int) string {
	entries := m.QueryAll(Filter{Limit: limit})
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s", e.Type, e.Content)
	}
	return b.String()
}

// ClearShortTerm discards the short-term store without touching
// long-term.
func (m *AgentMemory) ClearShortTerm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortTerm = nil
}

// ClearAll discards both stores.
func (m *AgentMemory) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortTerm = nil
	m.longTerm = nil
}

// Export snapshots both stores for persistence.
func (m *AgentMemory) Export() (short, long []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.shortTerm...), append([]Entry(nil), m.longTerm...)
}

// Import replaces both stores, e.g. after loading from the Store sink.
func (m *AgentMemory) Import(short, long []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortTerm = append([]Entry(nil), short...)
	m.longTerm = append([]Entry(nil), long...)
}
