package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/errs"
)

type fakeRegistry struct {
	agents map[string]*agent.Agent
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{agents: make(map[string]*agent.Agent)}
}

func (r *fakeRegistry) add(a *agent.Agent) { r.agents[a.ID] = a }

func (r *fakeRegistry) Get(id string) (*agent.Agent, error) {
	a, ok := r.agents[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return a, nil
}

func handlerOK(output string) agent.HandlerFunc {
	return func(ctx context.Context, input agent.HandlerInput) (agent.HandlerResult, error) {
		return agent.HandlerResult{OK: true, Result: agent.Payload{Type: agent.PayloadText, Content: output}}, nil
	}
}

func handlerErr(err error) agent.HandlerFunc {
	return func(ctx context.Context, input agent.HandlerInput) (agent.HandlerResult, error) {
		return agent.HandlerResult{}, err
	}
}

func handlerFailNTimes(n int, output string) agent.HandlerFunc {
	calls := 0
	return func(ctx context.Context, input agent.HandlerInput) (agent.HandlerResult, error) {
		calls++
		if calls <= n {
			return agent.HandlerResult{}, errors.New("transient failure")
		}
		return agent.HandlerResult{OK: true, Result: agent.Payload{Type: agent.PayloadText, Content: output}}, nil
	}
}

func handlerSleep(d time.Duration) agent.HandlerFunc {
	return func(ctx context.Context, input agent.HandlerInput) (agent.HandlerResult, error) {
		select {
		case <-time.After(d):
			return agent.HandlerResult{OK: true}, nil
		case <-ctx.Done():
			return agent.HandlerResult{}, ctx.Err()
		}
	}
}

func TestExecuteAtomicSuccess(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(&agent.Agent{ID: "a1", Handler: handlerOK("done")})
	o := New(reg, DefaultConfig(), nil, nil)

	wf := o.Submit(&Workflow{Root: &Task{ID: "t1", Kind: KindAtomic, AgentID: "a1"}})
	out, err := o.Run(context.Background(), wf)
	if err != nil || !out.Success {
		t.Fatalf("expected success, got %+v err=%v", out, err)
	}
}

func TestExecuteAtomicUnknownAgent(t *testing.T) {
	reg := newFakeRegistry()
	o := New(reg, DefaultConfig(), nil, nil)

	wf := o.Submit(&Workflow{Root: &Task{ID: "t1", Kind: KindAtomic, AgentID: "missing"}})
	out, err := o.Run(context.Background(), wf)
	if out.Success || !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %+v err=%v", out, err)
	}
}

func TestExecuteAtomicRetriesThenSucceeds(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(&agent.Agent{ID: "a1", Handler: handlerFailNTimes(2, "recovered")})
	cfg := DefaultConfig()
	cfg.RetryBase = time.Millisecond
	cfg.RetryCap = 10 * time.Millisecond
	o := New(reg, cfg, nil, nil)

	wf := o.Submit(&Workflow{Root: &Task{ID: "t1", Kind: KindAtomic, AgentID: "a1", Retries: 2}})
	out, err := o.Run(context.Background(), wf)
	if err != nil || !out.Success {
		t.Fatalf("expected eventual success, got %+v err=%v", out, err)
	}
}

func TestExecuteAtomicExhaustsRetries(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(&agent.Agent{ID: "a1", Handler: handlerErr(errors.New("always fails"))})
	cfg := DefaultConfig()
	cfg.RetryBase = time.Millisecond
	cfg.RetryCap = 5 * time.Millisecond
	o := New(reg, cfg, nil, nil)

	wf := o.Submit(&Workflow{Root: &Task{ID: "t1", Kind: KindAtomic, AgentID: "a1", Retries: 1}})
	out, err := o.Run(context.Background(), wf)
	if out.Success || err == nil {
		t.Fatalf("expected exhausted-retry failure, got %+v", out)
	}
}

func TestExecuteAtomicTimeout(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(&agent.Agent{ID: "a1", Handler: handlerSleep(50 * time.Millisecond)})
	o := New(reg, DefaultConfig(), nil, nil)

	wf := o.Submit(&Workflow{Root: &Task{ID: "t1", Kind: KindAtomic, AgentID: "a1", Timeout: 5 * time.Millisecond}})
	out, err := o.Run(context.Background(), wf)
	if out.Success || !errors.Is(err, errs.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %+v err=%v", out, err)
	}
}

func TestExecuteSequentialAbortsOnFirstFailure(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(&agent.Agent{ID: "a1", Handler: handlerOK("one")})
	reg.add(&agent.Agent{ID: "a2", Handler: handlerErr(errors.New("fails"))})
	reg.add(&agent.Agent{ID: "a3", Handler: handlerOK("never runs")})
	o := New(reg, DefaultConfig(), nil, nil)

	root := &Task{
		ID:   "seq",
		Kind: KindSequential,
		Subtasks: []*Task{
			{ID: "c1", Kind: KindAtomic, AgentID: "a1"},
			{ID: "c2", Kind: KindAtomic, AgentID: "a2"},
			{ID: "c3", Kind: KindAtomic, AgentID: "a3"},
		},
	}
	wf := o.Submit(&Workflow{Root: root})
	out, err := o.Run(context.Background(), wf)
	if out.Success || err == nil {
		t.Fatalf("expected sequential failure, got %+v", out)
	}
	collected, ok := out.Output.(map[string]any)
	if !ok || collected["c1"] == nil {
		t.Fatalf("expected c1 output preserved, got %+v", out.Output)
	}
	if _, ok := collected["c3"]; ok {
		t.Fatalf("c3 should not have run after c2 failed")
	}
}

func TestExecuteParallelAllSucceed(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(&agent.Agent{ID: "a1", Handler: handlerOK("one")})
	reg.add(&agent.Agent{ID: "a2", Handler: handlerOK("two")})
	o := New(reg, DefaultConfig(), nil, nil)

	root := &Task{
		ID:   "par",
		Kind: KindParallel,
		Subtasks: []*Task{
			{ID: "c1", Kind: KindAtomic, AgentID: "a1"},
			{ID: "c2", Kind: KindAtomic, AgentID: "a2"},
		},
	}
	wf := o.Submit(&Workflow{Root: root})
	out, err := o.Run(context.Background(), wf)
	if err != nil || !out.Success {
		t.Fatalf("expected parallel success, got %+v err=%v", out, err)
	}
	collected, ok := out.Output.(map[string]any)
	if !ok || collected["c1"] == nil || collected["c2"] == nil {
		t.Fatalf("expected both children keyed by id, got %+v", out.Output)
	}
}

func TestExecuteParallelFanOutFailureWaitsForAll(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(&agent.Agent{ID: "a1", Handler: handlerErr(errors.New("fails"))})
	reg.add(&agent.Agent{ID: "a2", Handler: handlerSleep(10 * time.Millisecond)})
	o := New(reg, DefaultConfig(), nil, nil)

	root := &Task{
		ID:   "par",
		Kind: KindParallel,
		Subtasks: []*Task{
			{ID: "c1", Kind: KindAtomic, AgentID: "a1"},
			{ID: "c2", Kind: KindAtomic, AgentID: "a2"},
		},
	}
	wf := o.Submit(&Workflow{Root: root})
	out, err := o.Run(context.Background(), wf)
	if out.Success || err == nil {
		t.Fatalf("expected parallel failure, got %+v", out)
	}
	collected, ok := out.Output.(map[string]any)
	if !ok {
		t.Fatalf("expected collected outputs even on failure, got %+v", out.Output)
	}
	if _, ok := collected["c2"]; !ok {
		t.Fatalf("expected sibling c2 to have completed before node reports failure")
	}
}

func TestExecuteConditionalTrueBranch(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(&agent.Agent{ID: "a1", Handler: handlerOK("true-branch")})
	reg.add(&agent.Agent{ID: "a2", Handler: handlerOK("false-branch")})
	o := New(reg, DefaultConfig(), nil, nil)

	root := &Task{
		ID:        "cond",
		Kind:      KindConditional,
		Condition: func(ctx context.Context) bool { return true },
		Subtasks: []*Task{
			{ID: "t", Kind: KindAtomic, AgentID: "a1"},
			{ID: "f", Kind: KindAtomic, AgentID: "a2"},
		},
	}
	wf := o.Submit(&Workflow{Root: root})
	out, err := o.Run(context.Background(), wf)
	if err != nil || !out.Success {
		t.Fatalf("expected success, got %+v err=%v", out, err)
	}
	collected := out.Output.(map[string]any)
	if _, ok := collected["t"]; !ok {
		t.Fatalf("expected true branch executed, got %+v", collected)
	}
}

func TestExecuteConditionalFalseBranchMissingIsNoop(t *testing.T) {
	reg := newFakeRegistry()
	o := New(reg, DefaultConfig(), nil, nil)

	root := &Task{
		ID:        "cond",
		Kind:      KindConditional,
		Condition: func(ctx context.Context) bool { return false },
		Subtasks: []*Task{
			{ID: "t", Kind: KindAtomic, AgentID: "unused"},
		},
	}
	wf := o.Submit(&Workflow{Root: root})
	out, err := o.Run(context.Background(), wf)
	if err != nil || !out.Success {
		t.Fatalf("expected no-op success, got %+v err=%v", out, err)
	}
}

func TestCancelPropagatesToRunningAtomicTask(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(&agent.Agent{ID: "a1", Handler: handlerSleep(200 * time.Millisecond)})
	o := New(reg, DefaultConfig(), nil, nil)

	wf := o.Submit(&Workflow{Root: &Task{ID: "t1", Kind: KindAtomic, AgentID: "a1"}})

	done := make(chan struct{})
	var out *Outcome
	go func() {
		out, _ = o.Run(context.Background(), wf)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := o.Cancel(wf.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not observe cancellation in time")
	}
	if out == nil || out.Success {
		t.Fatalf("expected cancelled run to not succeed, got %+v", out)
	}

	fresh, err := o.Get(wf.ID)
	if err != nil || fresh.Status != WorkflowCancelled {
		t.Fatalf("expected workflow status cancelled, got %+v err=%v", fresh, err)
	}
}

func TestGetUnknownWorkflow(t *testing.T) {
	o := New(newFakeRegistry(), DefaultConfig(), nil, nil)
	if _, err := o.Get("nope"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
