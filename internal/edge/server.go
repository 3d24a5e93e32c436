// Package edge is the runtime's HTTP+websocket ingress: task submission
// and polling, agent listing, queue status, and a websocket stream of
// EventBus lifecycle events, per spec.md's external interfaces.
package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/events"
	"github.com/agentrt/runtime/internal/orchestrator"
	"github.com/google/uuid"
)

// TaskStatus mirrors spec.md §6's task status vocabulary.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// submission tracks one externally submitted task's polling state.
type submission struct {
	Status  TaskStatus
	AgentID string
	Result  any
	Reason  string
}

// Dispatcher is the narrow kernel surface the edge server drives.
type Dispatcher interface {
	DispatchTask(ctx context.Context, wf *orchestrator.Workflow) (*orchestrator.Outcome, error)
}

// AgentLister is the narrow registry surface /api/agents reads.
type AgentLister interface {
	GetAll() []*agent.Agent
}

// Server is the edge HTTP+websocket ingress.
type Server struct {
	dispatcher Dispatcher
	agents     AgentLister
	eventBus   *events.Bus
	hub        *Hub

	mu          sync.Mutex
	submissions map[string]*submission
	startedAt   time.Time
}

// New builds a Server. eventBus may be nil (the websocket stream then
// carries nothing).
func New(dispatcher Dispatcher, agents AgentLister, eventBus *events.Bus) *Server {
	return &Server{
		dispatcher:  dispatcher,
		agents:      agents,
		eventBus:    eventBus,
		hub:         NewHub(),
		submissions: make(map[string]*submission),
		startedAt:   time.Now(),
	}
}

// Handler returns the http.Handler serving every registered route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tasks", s.submitTask)
	mux.HandleFunc("GET /api/tasks/{id}", s.getTaskStatus)
	mux.HandleFunc("GET /api/agents", s.listAgents)
	mux.HandleFunc("GET /api/queue", s.getQueueStatus)
	mux.HandleFunc("GET /api/status", s.getStatus)
	mux.HandleFunc("/api/ws", s.handleWebSocket)
	return mux
}

// Run subscribes the websocket hub to eventBus and starts it, blocking
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)
	if s.eventBus != nil {
		go s.forwardEvents(ctx)
	}

	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("edge: serve: %w", err)
	}
}

func (s *Server) forwardEvents(ctx context.Context) {
	ch := s.eventBus.Subscribe(256)
	defer s.eventBus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.hub.Broadcast(WSEvent{Type: e.Kind, Payload: e.Data})
			s.applyLifecycleEvent(e)
		}
	}
}

// applyLifecycleEvent keeps a submitted task's polling status in sync
// with the orchestrator events carrying its workflow id.
func (s *Server) applyLifecycleEvent(e events.Event) {
	workflowID, _ := e.Data["workflowId"].(string)
	if workflowID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[workflowID]
	if !ok {
		return
	}
	switch e.Kind {
	case events.KindTaskStarted:
		if sub.Status == TaskQueued {
			sub.Status = TaskInProgress
		}
	case events.KindTaskCompleted:
		sub.Status = TaskCompleted
	case events.KindTaskFailed:
		sub.Status = TaskFailed
		if reason, ok := e.Data["error"].(string); ok {
			sub.Reason = reason
		}
	case events.KindTaskCancelled:
		sub.Status = TaskFailed
		sub.Reason = "cancelled"
	}
}

type submitTaskRequest struct {
	Input string `json:"input"`
	Agent string `json:"agent,omitempty"`
}

type submitTaskResponse struct {
	TaskID string     `json:"task_id"`
	Status TaskStatus `json:"status"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Input == "" || req.Agent == "" {
		jsonError(w, "input and agent are required", http.StatusBadRequest)
		return
	}

	wf := &orchestrator.Workflow{
		ID: uuid.NewString(),
		Root: &orchestrator.Task{
			ID:      "root",
			Kind:    orchestrator.KindAtomic,
			AgentID: req.Agent,
			Input:   agent.HandlerInput{Query: req.Input},
		},
	}

	s.mu.Lock()
	s.submissions[wf.ID] = &submission{Status: TaskQueued, AgentID: req.Agent}
	s.mu.Unlock()

	go func() {
		out, err := s.dispatcher.DispatchTask(context.Background(), wf)
		s.mu.Lock()
		defer s.mu.Unlock()
		sub, ok := s.submissions[wf.ID]
		if !ok {
			return
		}
		if err != nil || out == nil || !out.Success {
			sub.Status = TaskFailed
			if err != nil {
				sub.Reason = err.Error()
			}
			return
		}
		sub.Status = TaskCompleted
		sub.Result = out.Output
	}()

	jsonResponse(w, http.StatusAccepted, submitTaskResponse{TaskID: wf.ID, Status: TaskQueued})
}

type taskStatusResponse struct {
	Status TaskStatus `json:"status"`
	Result any        `json:"result,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

func (s *Server) getTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	sub, ok := s.submissions[id]
	s.mu.Unlock()
	if !ok {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, http.StatusOK, taskStatusResponse{Status: sub.Status, Result: sub.Result, Reason: sub.Reason})
}

type agentListEntry struct {
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	CurrentTaskID string    `json:"currentTaskId,omitempty"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	all := s.agents.GetAll()
	out := make([]agentListEntry, 0, len(all))
	for _, a := range all {
		out = append(out, agentListEntry{
			Name:        a.Name,
			Status:      edgeStatus(a.State),
			LastUpdated: time.Now(),
		})
	}
	jsonResponse(w, http.StatusOK, out)
}

func edgeStatus(s agent.State) string {
	switch s {
	case agent.StateBusy:
		return "BUSY"
	case agent.StateIdle:
		return "IDLE"
	default:
		return "READY"
	}
}

type queueStats struct {
	QueueName  string `json:"queueName"`
	Waiting    int    `json:"waiting"`
	Active     int    `json:"active"`
	Failed     int    `json:"failed"`
	DeadLetter int    `json:"deadLetter"`
}

func (s *Server) getQueueStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := queueStats{QueueName: "tasks"}
	for _, sub := range s.submissions {
		switch sub.Status {
		case TaskQueued:
			stats.Waiting++
		case TaskInProgress:
			stats.Active++
		case TaskFailed:
			stats.Failed++
		}
	}
	jsonResponse(w, http.StatusOK, map[string]queueStats{"stats": stats})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"uptimeSeconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func jsonResponse(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonResponse(w, code, map[string]string{"error": msg})
}
