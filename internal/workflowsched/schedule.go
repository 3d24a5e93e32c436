// Package workflowsched polls persisted schedules and re-dispatches
// their saved task trees through the kernel, the same cron/interval/once
// vocabulary as an interactive dispatch but fired on a timer instead of
// an inbound request.
package workflowsched

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// Schedule is the deserialized form of a ScheduledWorkflow's Schedule
// column: "cron", "interval", or "once".
type Schedule struct {
	Kind       string `json:"kind"`
	CronExpr   string `json:"cron_expr,omitempty"`
	IntervalMs int64  `json:"interval_ms,omitempty"`
	AtMs       int64  `json:"at_ms,omitempty"`
}

// ParseSchedule decodes a schedule JSON document.
func ParseSchedule(raw string) (*Schedule, error) {
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("workflowsched: parse schedule: %w", err)
	}
	return &s, nil
}

// CalculateNextRun returns the next fire time for a schedule JSON
// document, or nil when the schedule has no further runs (an
// already-elapsed "once", or an invalid document).
func CalculateNextRun(scheduleJSON string) *time.Time {
	s, err := ParseSchedule(scheduleJSON)
	if err != nil {
		return nil
	}

	now := time.Now()
	var next time.Time
	switch s.Kind {
	case "cron":
		nextTime, err := gronx.NextTick(s.CronExpr, false)
		if err != nil {
			return nil
		}
		next = nextTime
	case "interval":
		if s.IntervalMs <= 0 {
			return nil
		}
		next = now.Add(time.Duration(s.IntervalMs) * time.Millisecond)
	case "once":
		t := time.UnixMilli(s.AtMs)
		if !t.After(now) {
			return nil
		}
		next = t
	default:
		return nil
	}
	return &next
}

// NormalizeSchedule accepts either a plain cron expression or a full
// Schedule JSON document and returns the canonical JSON form, validating
// as it goes.
func NormalizeSchedule(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err == nil && s.Kind != "" {
		switch s.Kind {
		case "cron":
			if !gronx.New().IsValid(s.CronExpr) {
				return "", fmt.Errorf("workflowsched: invalid cron expression %q", s.CronExpr)
			}
		case "interval":
			if s.IntervalMs <= 0 {
				return "", fmt.Errorf("workflowsched: interval_ms must be positive")
			}
		case "once":
			if s.AtMs <= 0 {
				return "", fmt.Errorf("workflowsched: at_ms must be positive")
			}
		default:
			return "", fmt.Errorf("workflowsched: unknown schedule kind %q", s.Kind)
		}
		return raw, nil
	}

	if !gronx.New().IsValid(raw) {
		return "", fmt.Errorf("workflowsched: not valid JSON or cron expression: %s", raw)
	}
	data, err := json.Marshal(Schedule{Kind: "cron", CronExpr: raw})
	if err != nil {
		return "", fmt.Errorf("workflowsched: marshal normalized schedule: %w", err)
	}
	return string(data), nil
}
