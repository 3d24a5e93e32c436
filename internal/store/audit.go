package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AuditEvent is one persisted row behind the AuditLogger's optional
// Store sink.
type AuditEvent struct {
	Timestamp time.Time
	EventType string
	AgentID   string
	ToolName  string
	TaskID    string
	Details   string
}

// AppendAuditEvent persists one audit event. Called from audit.Logger's
// Record, through internal/kernel's storeAuditAdapter, when persistence
// is enabled.
func (s *Store) AppendAuditEvent(e AuditEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_events (timestamp, event_type, agent_id, tool_name, task_id, details)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Timestamp, e.EventType, nullableString(e.AgentID), nullableString(e.ToolName),
		nullableString(e.TaskID), nullableString(e.Details))
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns persisted events filtered by agent id and/or
// event type, newest-last, bounded by limit.
func (s *Store) ListAuditEvents(agentID, eventType string, limit int) ([]AuditEvent, error) {
	query := `SELECT timestamp, event_type, agent_id, tool_name, task_id, details FROM audit_events WHERE 1=1`
	var args []any
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY timestamp ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var agentCol, toolCol, taskCol, detailsCol sql.NullString
		if err := rows.Scan(&e.Timestamp, &e.EventType, &agentCol, &toolCol, &taskCol, &detailsCol); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.AgentID = agentCol.String
		e.ToolName = toolCol.String
		e.TaskID = taskCol.String
		e.Details = detailsCol.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
