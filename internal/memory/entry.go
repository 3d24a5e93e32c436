// Package memory implements per-agent short/long-term memory with an
// ACL-gated manager and an optional cosine-similarity vector index.
package memory

import (
	"strings"
	"time"
)

// EntryType classifies a MemoryEntry.
type EntryType string

const (
	EntryText   EntryType = "text"
	EntryInsight EntryType = "insight"
	EntryError  EntryType = "error"
	EntryResult EntryType = "result"
)

// Entry is one unit of agent memory.
type Entry struct {
	ID        string
	Content   string
	Type      EntryType
	Timestamp time.Time
	Metadata  map[string]any
}

// Filter composes independently applied predicates over a list of
// entries; all set fields are ANDed together, and Limit keeps the last
// (most recent) N matches.
type Filter struct {
	Type    EntryType
	Since   time.Time
	Keyword string
	Limit   int
}

func (f Filter) matches(e Entry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if f.Keyword != "" && !strings.Contains(strings.ToLower(e.Content), strings.ToLower(f.Keyword)) {
		return false
	}
	return true
}

func applyFilter(entries []Entry, f Filter) []Entry {
	var out []Entry
	for _, e := range entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}
