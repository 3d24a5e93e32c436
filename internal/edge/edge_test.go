package edge

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/orchestrator"
)

type fakeDispatcher struct {
	outcome *orchestrator.Outcome
	err     error
}

func (f *fakeDispatcher) DispatchTask(ctx context.Context, wf *orchestrator.Workflow) (*orchestrator.Outcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

type fakeAgentLister struct {
	agents []*agent.Agent
}

func (f *fakeAgentLister) GetAll() []*agent.Agent { return f.agents }

func TestSubmitAndPollTask(t *testing.T) {
	dispatcher := &fakeDispatcher{outcome: &orchestrator.Outcome{Success: true, Output: map[string]any{"root": "done"}}}
	s := New(dispatcher, &fakeAgentLister{}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/api/tasks", "application/json", strings.NewReader(`{"input":"hello","agent":"worker-1"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var submitted submitTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submitted.Status != TaskQueued || submitted.TaskID == "" {
		t.Fatalf("unexpected submit response: %+v", submitted)
	}

	deadline := 0
	var status taskStatusResponse
	for {
		resp, err := srv.Client().Get(srv.URL + "/api/tasks/" + submitted.TaskID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		_ = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if status.Status == TaskCompleted || status.Status == TaskFailed || deadline > 1000 {
			break
		}
		deadline++
	}
	if status.Status != TaskCompleted {
		t.Fatalf("expected completed status, got %+v", status)
	}
}

func TestSubmitTaskRejectsMissingFields(t *testing.T) {
	s := New(&fakeDispatcher{}, &fakeAgentLister{}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/api/tasks", "application/json", strings.NewReader(`{"input":""}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetTaskStatusUnknownID(t *testing.T) {
	s := New(&fakeDispatcher{}, &fakeAgentLister{}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/tasks/does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListAgentsMapsState(t *testing.T) {
	lister := &fakeAgentLister{agents: []*agent.Agent{
		{ID: "a1", Name: "Worker", State: agent.StateBusy},
		{ID: "a2", Name: "Idler", State: agent.StateIdle},
		{ID: "a3", Name: "Fresh", State: agent.StateUninitialized},
	}}
	s := New(&fakeDispatcher{}, lister, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/agents")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var got []agentListEntry
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 || got[0].Status != "BUSY" || got[1].Status != "IDLE" || got[2].Status != "READY" {
		t.Fatalf("unexpected agent list: %+v", got)
	}
}

func TestQueueStatusReflectsSubmissions(t *testing.T) {
	dispatcher := &fakeDispatcher{outcome: &orchestrator.Outcome{Success: true}}
	s := New(dispatcher, &fakeAgentLister{}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, _ = srv.Client().Post(srv.URL+"/api/tasks", "application/json", strings.NewReader(`{"input":"x","agent":"a"}`))

	resp, err := srv.Client().Get(srv.URL + "/api/queue")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]queueStats
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["stats"].QueueName != "tasks" {
		t.Fatalf("unexpected queue stats: %+v", body)
	}
}
