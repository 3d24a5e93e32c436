// Package orchestrator expands and executes task trees: atomic leaves
// invoke an agent's handler, composite nodes sequence, fan out, or
// branch over their children.
package orchestrator

import (
	"context"
	"time"

	"github.com/agentrt/runtime/internal/agent"
)

// Kind discriminates a Task's tagged union.
type Kind string

const (
	KindAtomic      Kind = "atomic"
	KindSequential  Kind = "sequential"
	KindParallel    Kind = "parallel"
	KindConditional Kind = "conditional"
)

// State is a task node's lifecycle state. Transitions are monotonic:
// pending -> running -> {completed | failed | cancelled}.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

const (
	defaultAtomicTimeout = 30 * time.Second
	defaultRetryBase     = 200 * time.Millisecond
	defaultRetryCap      = 5 * time.Second
)

// Task is one node of a workflow's task tree.
type Task struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	// atomic
	AgentID string             `json:"agentId,omitempty"`
	Input   agent.HandlerInput `json:"input,omitempty"`
	Timeout time.Duration      `json:"timeout,omitempty"`
	Retries int                `json:"retries,omitempty"`

	// sequential / parallel
	Subtasks []*Task `json:"subtasks,omitempty"`

	// conditional: Subtasks[0] is the true branch, Subtasks[1] the false
	// branch (optional). Condition is supplied by the registering code,
	// never deserialized from a persisted task tree.
	Condition func(ctx context.Context) bool `json:"-"`

	state State
}

// Outcome is a task node's execution result. For composite nodes,
// Output is a map[string]any keyed by child task id (spec-mandated
// Open Question ruling: always by id, never by slice index).
type Outcome struct {
	Success bool
	Output  any
	Err     error
}
