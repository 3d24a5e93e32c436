package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAuditEventCRUD(t *testing.T) {
	s := newTestStore(t)

	base := time.Now()
	for i := 0; i < 3; i++ {
		e := AuditEvent{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			EventType: "tool-call",
			AgentID:   "a1",
			ToolName:  "shell",
			Details:   "ran a command",
		}
		if err := s.AppendAuditEvent(e); err != nil {
			t.Fatalf("append audit event: %v", err)
		}
	}
	_ = s.AppendAuditEvent(AuditEvent{Timestamp: base, EventType: "permission-denied", AgentID: "a2"})

	events, err := s.ListAuditEvents("a1", "", 10)
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events for a1, got %d", len(events))
	}

	events, err = s.ListAuditEvents("", "permission-denied", 10)
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 permission-denied event, got %d", len(events))
	}
}

func TestMemoryEntryCRUD(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	rows := []MemoryRow{
		{ID: "m1", AgentID: "a1", Content: "first", EntryType: "text", CreatedAt: now},
		{ID: "m2", AgentID: "a1", Content: "second", EntryType: "insight", CreatedAt: now.Add(time.Second)},
		{ID: "m3", AgentID: "a2", Content: "other agent", EntryType: "text", CreatedAt: now},
	}
	for _, r := range rows {
		if err := s.SaveMemoryEntry(r); err != nil {
			t.Fatalf("save memory entry: %v", err)
		}
	}

	got, err := s.ListMemoryEntries("a1")
	if err != nil {
		t.Fatalf("list memory entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for a1, got %d", len(got))
	}
	if got[0].Content != "first" {
		t.Errorf("expected chronological order, got %q first", got[0].Content)
	}

	if err := s.DeleteMemoryEntries("a1"); err != nil {
		t.Fatalf("delete memory entries: %v", err)
	}
	got, _ = s.ListMemoryEntries("a1")
	if len(got) != 0 {
		t.Fatalf("expected 0 entries after delete, got %d", len(got))
	}
}

func TestVectorCRUD(t *testing.T) {
	s := newTestStore(t)

	v := VectorRow{
		ID:        "v1",
		AgentID:   "a1",
		Text:      "hello world",
		Embedding: []float64{0.1, 0.2, 0.3},
		Metadata:  map[string]any{"ownerAgentId": "a1", "type": "text"},
	}
	if err := s.SaveVector(v); err != nil {
		t.Fatalf("save vector: %v", err)
	}

	got, err := s.ListVectors("a1")
	if err != nil {
		t.Fatalf("list vectors: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(got))
	}
	if len(got[0].Embedding) != 3 {
		t.Fatalf("expected embedding of length 3, got %d", len(got[0].Embedding))
	}
	if got[0].Metadata["type"] != "text" {
		t.Errorf("expected metadata type=text, got %v", got[0].Metadata["type"])
	}
}

func TestSecretCRUD(t *testing.T) {
	s := newTestStore(t)

	sec := &Secret{
		ID:     "s1",
		Name:   "model-api-key",
		Kind:   "env",
		Value:  []byte("ciphertext"),
		Nonce:  []byte("nonce"),
		Global: true,
	}
	if err := s.SaveSecret(sec); err != nil {
		t.Fatalf("save secret: %v", err)
	}

	got, err := s.GetSecret("s1")
	if err != nil {
		t.Fatalf("get secret: %v", err)
	}
	if got == nil || got.Name != "model-api-key" {
		t.Fatalf("expected secret model-api-key, got %+v", got)
	}

	if err := s.DeleteSecret("s1"); err != nil {
		t.Fatalf("delete secret: %v", err)
	}
	got, _ = s.GetSecret("s1")
	if got != nil {
		t.Fatal("expected secret to be deleted")
	}
}
