package workflowsched

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentrt/runtime/internal/events"
	"github.com/agentrt/runtime/internal/orchestrator"
	"github.com/agentrt/runtime/internal/store"
)

// Dispatcher is the narrow surface the scheduler needs from the kernel.
type Dispatcher interface {
	DispatchTask(ctx context.Context, wf *orchestrator.Workflow) (*orchestrator.Outcome, error)
}

// Scheduler polls the store for due scheduled workflows and redispatches
// their saved task trees through Dispatcher.
type Scheduler struct {
	store        *store.Store
	dispatcher   Dispatcher
	eventBus     *events.Bus
	pollInterval time.Duration
	reloadCh     chan struct{}
}

// New builds a Scheduler. pollInterval of 0 defaults to 30s.
func New(s *store.Store, dispatcher Dispatcher, eventBus *events.Bus, pollInterval time.Duration) *Scheduler {
	return &Scheduler{
		store:        s,
		dispatcher:   dispatcher,
		eventBus:     eventBus,
		pollInterval: pollInterval,
		reloadCh:     make(chan struct{}, 1),
	}
}

// UpdateConfig changes the poll interval and signals the run loop to
// reset its ticker immediately rather than waiting for the old period.
func (s *Scheduler) UpdateConfig(pollInterval time.Duration) {
	s.pollInterval = pollInterval
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

// Start runs the poll loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval <= 0 {
		s.pollInterval = 30 * time.Second
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("workflowsched: started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("workflowsched: stopped")
			return
		case <-s.reloadCh:
			ticker.Reset(s.pollInterval)
			slog.Info("workflowsched: poll interval reloaded", "poll_interval", s.pollInterval)
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	due, err := s.store.ListDueScheduledWorkflows(time.Now())
	if err != nil {
		slog.Error("workflowsched: list due schedules failed", "error", err)
		return
	}
	for _, w := range due {
		s.execute(ctx, w)
	}
}

func (s *Scheduler) execute(ctx context.Context, w store.ScheduledWorkflow) {
	slog.Info("workflowsched: firing schedule", "id", w.ID, "name", w.Name)

	var root orchestrator.Task
	if err := json.Unmarshal([]byte(w.TaskTree), &root); err != nil {
		s.recordRun(w, "error", fmt.Errorf("workflowsched: decode task tree: %w", err))
		return
	}

	wf := &orchestrator.Workflow{ID: fmt.Sprintf("%s-%d", w.ID, time.Now().UnixNano()), Name: w.Name, Root: &root}
	_, err := s.dispatcher.DispatchTask(ctx, wf)
	s.recordRun(w, statusFor(err), err)
	s.publishFired(w, statusFor(err))
}

func statusFor(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (s *Scheduler) recordRun(w store.ScheduledWorkflow, status string, runErr error) {
	ranAt := time.Now()
	next := CalculateNextRun(w.Schedule)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		slog.Error("workflowsched: schedule fire failed", "id", w.ID, "error", runErr)
	}

	var nextRunAt time.Time
	if next != nil {
		nextRunAt = *next
	} else {
		nextRunAt = ranAt
	}
	if err := s.store.RecordScheduledWorkflowRun(w.ID, ranAt, nextRunAt, status, errMsg); err != nil {
		slog.Error("workflowsched: record run failed", "id", w.ID, "error", err)
	}

	if next == nil {
		if err := s.store.SetScheduledWorkflowStatus(w.ID, "completed"); err != nil {
			slog.Error("workflowsched: mark completed failed", "id", w.ID, "error", err)
		}
	}
}

func (s *Scheduler) publishFired(w store.ScheduledWorkflow, status string) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(events.Event{
		Source: events.SourceScheduler,
		Kind:   events.KindWorkflowFired,
		Data:   map[string]any{"scheduleId": w.ID, "name": w.Name, "status": status},
	})
}
