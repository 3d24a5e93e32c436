package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// MemoryRow is one persisted long-term memory entry.
type MemoryRow struct {
	ID        string
	AgentID   string
	Content   string
	EntryType string
	Metadata  string // opaque JSON, decoded by internal/memory
	CreatedAt time.Time
}

// SaveMemoryEntry upserts one long-term memory row.
func (s *Store) SaveMemoryEntry(r MemoryRow) error {
	_, err := s.db.Exec(`
		INSERT INTO memory_entries (id, agent_id, content, entry_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content=excluded.content, entry_type=excluded.entry_type,
			metadata=excluded.metadata`,
		r.ID, r.AgentID, r.Content, r.EntryType, r.Metadata, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("save memory entry: %w", err)
	}
	return nil
}

// ListMemoryEntries returns every persisted long-term entry for agentID,
// oldest first.
func (s *Store) ListMemoryEntries(agentID string) ([]MemoryRow, error) {
	rows, err := s.db.Query(`
		SELECT id, agent_id, content, entry_type, metadata, created_at
		FROM memory_entries WHERE agent_id = ? ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list memory entries: %w", err)
	}
	defer rows.Close()

	var out []MemoryRow
	for rows.Next() {
		var r MemoryRow
		var meta sql.NullString
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Content, &r.EntryType, &meta, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory entry: %w", err)
		}
		r.Metadata = meta.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteMemoryEntries removes every persisted entry for agentID.
func (s *Store) DeleteMemoryEntries(agentID string) error {
	_, err := s.db.Exec(`DELETE FROM memory_entries WHERE agent_id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("delete memory entries: %w", err)
	}
	return nil
}

// VectorRow is one persisted embedding row.
type VectorRow struct {
	ID        string
	AgentID   string
	Text      string
	Embedding []float64
	Metadata  map[string]any
}

// SaveVector upserts one vector row, encoding the embedding and metadata
// as JSON.
func (s *Store) SaveVector(v VectorRow) error {
	embJSON, err := json.Marshal(v.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	metaJSON, err := json.Marshal(v.Metadata)
	if err != nil {
		return fmt.Errorf("marshal vector metadata: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO memory_vectors (id, agent_id, text, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text=excluded.text, embedding=excluded.embedding,
			metadata=excluded.metadata`,
		v.ID, v.AgentID, v.Text, string(embJSON), string(metaJSON), time.Now())
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

// ListVectors returns every persisted vector row for agentID.
func (s *Store) ListVectors(agentID string) ([]VectorRow, error) {
	rows, err := s.db.Query(`SELECT id, agent_id, text, embedding, metadata FROM memory_vectors WHERE agent_id = ?`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list vectors: %w", err)
	}
	defer rows.Close()

	var out []VectorRow
	for rows.Next() {
		var v VectorRow
		var embJSON, metaJSON string
		if err := rows.Scan(&v.ID, &v.AgentID, &v.Text, &embJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		if err := json.Unmarshal([]byte(embJSON), &v.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
		_ = json.Unmarshal([]byte(metaJSON), &v.Metadata)
		out = append(out, v)
	}
	return out, rows.Err()
}
