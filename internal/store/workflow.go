package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ScheduledWorkflow is one persisted cron/interval/once task-tree
// schedule. TaskTree holds the serialized (JSON) task tree dispatched on
// each fire.
type ScheduledWorkflow struct {
	ID         string
	Name       string
	Schedule   string
	TaskTree   string
	Status     string
	NextRunAt  time.Time
	LastRunAt  *time.Time
	LastStatus string
	LastError  string
	CreatedAt  time.Time
}

// SaveScheduledWorkflow inserts or replaces a schedule definition.
func (s *Store) SaveScheduledWorkflow(w *ScheduledWorkflow) error {
	_, err := s.db.Exec(`
		INSERT INTO scheduled_workflows (id, name, schedule, task_tree, status, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, schedule=excluded.schedule, task_tree=excluded.task_tree,
			status=excluded.status, next_run_at=excluded.next_run_at`,
		w.ID, w.Name, w.Schedule, w.TaskTree, nonEmptyOr(w.Status, "active"), w.NextRunAt)
	if err != nil {
		return fmt.Errorf("save scheduled workflow: %w", err)
	}
	return nil
}

// ListDueScheduledWorkflows returns every active schedule whose
// next_run_at is at or before asOf.
func (s *Store) ListDueScheduledWorkflows(asOf time.Time) ([]ScheduledWorkflow, error) {
	rows, err := s.db.Query(`
		SELECT id, name, schedule, task_tree, status, next_run_at, last_run_at, last_status, last_error, created_at
		FROM scheduled_workflows
		WHERE status = 'active' AND next_run_at <= ?
		ORDER BY next_run_at ASC`, asOf)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled workflows: %w", err)
	}
	defer rows.Close()
	return scanScheduledWorkflows(rows)
}

// ListScheduledWorkflows returns every schedule regardless of status.
func (s *Store) ListScheduledWorkflows() ([]ScheduledWorkflow, error) {
	rows, err := s.db.Query(`
		SELECT id, name, schedule, task_tree, status, next_run_at, last_run_at, last_status, last_error, created_at
		FROM scheduled_workflows ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled workflows: %w", err)
	}
	defer rows.Close()
	return scanScheduledWorkflows(rows)
}

func scanScheduledWorkflows(rows *sql.Rows) ([]ScheduledWorkflow, error) {
	var out []ScheduledWorkflow
	for rows.Next() {
		var w ScheduledWorkflow
		var lastRun sql.NullTime
		var lastStatus, lastError sql.NullString
		if err := rows.Scan(&w.ID, &w.Name, &w.Schedule, &w.TaskTree, &w.Status, &w.NextRunAt,
			&lastRun, &lastStatus, &lastError, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled workflow: %w", err)
		}
		if lastRun.Valid {
			t := lastRun.Time
			w.LastRunAt = &t
		}
		w.LastStatus = lastStatus.String
		w.LastError = lastError.String
		out = append(out, w)
	}
	return out, rows.Err()
}

// RecordScheduledWorkflowRun updates a schedule's last-run bookkeeping
// and advances next_run_at.
func (s *Store) RecordScheduledWorkflowRun(id string, ranAt, nextRunAt time.Time, status, runErr string) error {
	_, err := s.db.Exec(`
		UPDATE scheduled_workflows
		SET last_run_at = ?, last_status = ?, last_error = ?, next_run_at = ?
		WHERE id = ?`,
		ranAt, status, nullableString(runErr), nextRunAt, id)
	if err != nil {
		return fmt.Errorf("record scheduled workflow run: %w", err)
	}
	return nil
}

// SetScheduledWorkflowStatus pauses or resumes a schedule.
func (s *Store) SetScheduledWorkflowStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE scheduled_workflows SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set scheduled workflow status: %w", err)
	}
	return nil
}

// DeleteScheduledWorkflow removes a schedule permanently.
func (s *Store) DeleteScheduledWorkflow(id string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete scheduled workflow: %w", err)
	}
	return nil
}

func nonEmptyOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
