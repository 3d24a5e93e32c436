package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/audit"
	"github.com/agentrt/runtime/internal/errs"
	"github.com/agentrt/runtime/internal/events"
)

// AgentLookup is the narrow surface the orchestrator needs from the
// registry.
type AgentLookup interface {
	Get(id string) (*agent.Agent, error)
}

// Config controls the orchestrator's default atomic-node timeout and
// retry backoff.
type Config struct {
	AtomicTimeout time.Duration
	RetryBase     time.Duration
	RetryCap      time.Duration
}

// DefaultConfig returns spec.md's defaults: 30s atomic timeout, 200ms
// retry base, 5s retry cap.
func DefaultConfig() Config {
	return Config{AtomicTimeout: defaultAtomicTimeout, RetryBase: defaultRetryBase, RetryCap: defaultRetryCap}
}

// Orchestrator executes task trees single-threaded-cooperatively per
// workflow, invoking agent handlers through AgentLookup.
type Orchestrator struct {
	mu        sync.Mutex
	workflows map[string]*Workflow
	registry  AgentLookup
	cfg       Config
	eventBus  *events.Bus
	auditor   *audit.Logger
	idSeq     uint64
}

// New constructs an Orchestrator. eventBus and auditor may be nil.
func New(registry AgentLookup, cfg Config, eventBus *events.Bus, auditor *audit.Logger) *Orchestrator {
	if cfg.AtomicTimeout <= 0 {
		cfg.AtomicTimeout = defaultAtomicTimeout
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = defaultRetryCap
	}
	return &Orchestrator{
		workflows: make(map[string]*Workflow),
		registry:  registry,
		cfg:       cfg,
		eventBus:  eventBus,
		auditor:   auditor,
	}
}

func (o *Orchestrator) nextID(prefix string) string {
	o.mu.Lock()
	o.idSeq++
	id := fmt.Sprintf("%s-%d", prefix, o.idSeq)
	o.mu.Unlock()
	return id
}

// Submit registers wf (assigning an id if empty) and returns it without
// starting execution.
func (o *Orchestrator) Submit(wf *Workflow) *Workflow {
	if wf.ID == "" {
		wf.ID = o.nextID("wf")
	}
	wf.Status = WorkflowPending
	o.mu.Lock()
	o.workflows[wf.ID] = wf
	o.mu.Unlock()
	return wf
}

// Get returns a previously submitted workflow.
func (o *Orchestrator) Get(id string) (*Workflow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	wf, ok := o.workflows[id]
	if !ok {
		return nil, fmt.Errorf("orchestrator: workflow %q: %w", id, errs.ErrNotFound)
	}
	return wf, nil
}

// Cancel marks wf cancelled and signals its cancellation token. Tasks
// already completed are unaffected; the currently running handler
// observes cancellation at its next suspension point.
func (o *Orchestrator) Cancel(id string) error {
	wf, err := o.Get(id)
	if err != nil {
		return err
	}
	o.mu.Lock()
	wf.Status = WorkflowCancelled
	cancel := wf.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Run executes wf's root task to completion (or cancellation) and
// stores the result on the workflow.
func (o *Orchestrator) Run(ctx context.Context, wf *Workflow) (*Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	wf.cancel = cancel
	wf.Status = WorkflowRunning
	o.mu.Unlock()
	defer cancel()

	o.emit(events.KindTaskStarted, wf.ID, wf.Root.ID, "", nil)
	outcome := o.execute(runCtx, wf, wf.Root)

	o.mu.Lock()
	wf.Result = &outcome
	if wf.Status != WorkflowCancelled {
		if outcome.Success {
			wf.Status = WorkflowCompleted
		} else {
			wf.Status = WorkflowFailed
		}
	}
	status := wf.Status
	o.mu.Unlock()

	switch status {
	case WorkflowCompleted:
		o.emit(events.KindTaskCompleted, wf.ID, wf.Root.ID, "", nil)
	case WorkflowCancelled:
		o.emit(events.KindTaskCancelled, wf.ID, wf.Root.ID, "", nil)
	default:
		detail := ""
		if outcome.Err != nil {
			detail = outcome.Err.Error()
		}
		o.emit(events.KindTaskFailed, wf.ID, wf.Root.ID, "", map[string]any{"error": detail})
	}

	return &outcome, outcome.Err
}

func (o *Orchestrator) execute(ctx context.Context, wf *Workflow, t *Task) Outcome {
	if ctx.Err() != nil {
		t.state = StateCancelled
		return Outcome{Err: fmt.Errorf("orchestrator: task %q: %w", t.ID, errs.ErrCancelled)}
	}

	t.state = StateRunning
	var out Outcome
	switch t.Kind {
	case KindAtomic:
		out = o.executeAtomic(ctx, wf, t)
	case KindSequential:
		out = o.executeSequential(ctx, wf, t)
	case KindParallel:
		out = o.executeParallel(ctx, wf, t)
	case KindConditional:
		out = o.executeConditional(ctx, wf, t)
	default:
		out = Outcome{Err: fmt.Errorf("orchestrator: unknown task kind %q", t.Kind)}
	}

	if ctx.Err() != nil && !out.Success {
		t.state = StateCancelled
	} else if out.Success {
		t.state = StateCompleted
	} else {
		t.state = StateFailed
	}
	return out
}

func (o *Orchestrator) executeAtomic(ctx context.Context, wf *Workflow, t *Task) Outcome {
	a, err := o.registry.Get(t.AgentID)
	if err != nil {
		return Outcome{Err: fmt.Errorf("orchestrator: atomic task %q: agent not found: %w", t.ID, errs.ErrNotFound)}
	}
	if a.Handler == nil {
		return Outcome{Err: fmt.Errorf("orchestrator: agent %q has no handler: %w", a.ID, errs.ErrValidationFailed)}
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = o.cfg.AtomicTimeout
	}

	retries := t.Retries
	attempt := 0
	var lastErr error
	for {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		o.emit(events.KindTaskStarted, wf.ID, t.ID, a.ID, map[string]any{"attempt": attempt})
		result, err := a.Handler(callCtx, t.Input)
		cancel()

		if err == nil && result.OK {
			o.emit(events.KindTaskCompleted, wf.ID, t.ID, a.ID, nil)
			return Outcome{Success: true, Output: result.Result}
		}

		if err == nil {
			err = fmt.Errorf("orchestrator: handler for %q returned ok=false: %w", a.ID, errs.ErrExecution)
		}
		if callCtx.Err() != nil {
			err = fmt.Errorf("orchestrator: task %q timed out: %w", t.ID, errs.ErrTimeout)
		}
		lastErr = err
		o.audit("execution-error", a.ID, t.ID, err.Error())

		if retries <= 0 || ctx.Err() != nil {
			break
		}
		retries--
		backoff := o.cfg.RetryBase * time.Duration(1<<uint(attempt))
		if backoff > o.cfg.RetryCap {
			backoff = o.cfg.RetryCap
		}
		o.emit(events.KindTaskRetry, wf.ID, t.ID, a.ID, map[string]any{"attempt": attempt, "backoff_ms": backoff.Milliseconds()})
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			lastErr = fmt.Errorf("orchestrator: task %q: %w", t.ID, errs.ErrCancelled)
		}
		attempt++
	}

	return Outcome{Err: lastErr}
}

func (o *Orchestrator) executeSequential(ctx context.Context, wf *Workflow, t *Task) Outcome {
	collected := make(map[string]any, len(t.Subtasks))
	var prevOutput any
	for _, child := range t.Subtasks {
		if prevOutput != nil {
			if child.Input.Context == nil {
				child.Input.Context = map[string]any{}
			}
			child.Input.Context["previousOutput"] = prevOutput
		}
		out := o.execute(ctx, wf, child)
		if !out.Success {
			return Outcome{Success: false, Output: collected, Err: fmt.Errorf("orchestrator: sequential task %q: child %q failed: %w", t.ID, child.ID, out.Err)}
		}
		collected[child.ID] = out.Output
		prevOutput = out.Output
	}
	return Outcome{Success: true, Output: collected}
}

func (o *Orchestrator) executeParallel(ctx context.Context, wf *Workflow, t *Task) Outcome {
	outcomes := make(map[string]Outcome, len(t.Subtasks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	_ = gctx // children share ctx, not gctx: siblings are not cancelled on first failure
	for _, child := range t.Subtasks {
		child := child
		g.Go(func() error {
			out := o.execute(ctx, wf, child)
			mu.Lock()
			outcomes[child.ID] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	collected := make(map[string]any, len(outcomes))
	var firstErr error
	for _, child := range t.Subtasks {
		out := outcomes[child.ID]
		collected[child.ID] = out.Output
		if !out.Success && firstErr == nil {
			firstErr = out.Err
		}
	}
	if firstErr != nil {
		return Outcome{Success: false, Output: collected, Err: fmt.Errorf("orchestrator: parallel task %q: %w", t.ID, firstErr)}
	}
	return Outcome{Success: true, Output: collected}
}

func (o *Orchestrator) executeConditional(ctx context.Context, wf *Workflow, t *Task) Outcome {
	if t.Condition == nil {
		return Outcome{Err: fmt.Errorf("orchestrator: conditional task %q has no condition: %w", t.ID, errs.ErrValidationFailed)}
	}
	branchIdx := 1
	if t.Condition(ctx) {
		branchIdx = 0
	}
	if branchIdx >= len(t.Subtasks) || t.Subtasks[branchIdx] == nil {
		return Outcome{Success: true, Output: map[string]any{}}
	}
	branch := t.Subtasks[branchIdx]
	out := o.execute(ctx, wf, branch)
	return Outcome{Success: out.Success, Output: map[string]any{branch.ID: out.Output}, Err: out.Err}
}

func (o *Orchestrator) emit(kind, workflowID, taskID, agentID string, data map[string]any) {
	if o.eventBus == nil {
		return
	}
	payload := map[string]any{"workflowId": workflowID, "taskId": taskID}
	if agentID != "" {
		payload["agentId"] = agentID
	}
	for k, v := range data {
		payload[k] = v
	}
	o.eventBus.Publish(events.Event{Source: events.SourceOrchestrator, Kind: kind, Data: payload})
}

func (o *Orchestrator) audit(eventType, agentID, taskID, details string) {
	if o.auditor == nil {
		return
	}
	o.auditor.Record(audit.Event{EventType: eventType, AgentID: agentID, TaskID: taskID, Details: details})
}
