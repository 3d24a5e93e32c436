package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentrt/runtime/internal/errs"
)

func echoTool(name string, rateLimit int) FuncTool {
	return FuncTool{
		Base: Base{
			NameValue:               name,
			TypeValue:               "test",
			RequiredPermissionsValue: []string{"execute"},
			RateLimitPerMinuteValue: rateLimit,
		},
		ExecuteFunc: func(ctx context.Context, args map[string]any) (Result, error) {
			return Result{Output: "ok"}, nil
		},
	}
}

func TestCallToolUnknownTool(t *testing.T) {
	m := NewManager(nil, nil)
	_, err := m.CallTool(context.Background(), "a1", "missing", nil, 0)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCallToolRequiresGrant(t *testing.T) {
	m := NewManager(nil, nil)
	m.Register(echoTool("echo", 0))

	_, err := m.CallTool(context.Background(), "a1", "echo", nil, 0)
	if !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	m.Grant("a1", "echo")
	res, err := m.CallTool(context.Background(), "a1", "echo", nil, 0)
	if err != nil {
		t.Fatalf("expected call to succeed once granted: %v", err)
	}
	if res.Output != "ok" {
		t.Fatalf("expected output ok, got %q", res.Output)
	}
}

func TestCallToolRateLimited(t *testing.T) {
	m := NewManager(nil, nil)
	m.Register(echoTool("echo", 1))
	m.Grant("a1", "echo")

	if _, err := m.CallTool(context.Background(), "a1", "echo", nil, 0); err != nil {
		t.Fatalf("expected first call to succeed: %v", err)
	}
	_, err := m.CallTool(context.Background(), "a1", "echo", nil, 0)
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on second immediate call, got %v", err)
	}
}

func TestCallToolValidationFailure(t *testing.T) {
	m := NewManager(nil, nil)
	tl := echoTool("validated", 0)
	tl.ValidateFunc = func(args map[string]any) ValidationResult {
		return ValidationResult{Valid: false, Reasons: []string{"missing field"}}
	}
	m.Register(tl)
	m.Grant("a1", "validated")

	_, err := m.CallTool(context.Background(), "a1", "validated", nil, 0)
	if !errors.Is(err, errs.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
}

func TestCallToolTimeout(t *testing.T) {
	m := NewManager(nil, nil)
	slow := FuncTool{
		Base: Base{NameValue: "slow", RequiredPermissionsValue: []string{"execute"}},
		ExecuteFunc: func(ctx context.Context, args map[string]any) (Result, error) {
			select {
			case <-time.After(50 * time.Millisecond):
				return Result{Output: "done"}, nil
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		},
	}
	m.Register(slow)
	m.Grant("a1", "slow")

	_, err := m.CallTool(context.Background(), "a1", "slow", nil, 5*time.Millisecond)
	if !errors.Is(err, errs.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCallToolRecordsStats(t *testing.T) {
	m := NewManager(nil, nil)
	m.Register(echoTool("echo", 0))
	m.Grant("a1", "echo")

	if _, err := m.CallTool(context.Background(), "a1", "echo", nil, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, ok := m.Stats("echo")
	if !ok || stats.Executions != 1 || stats.Errors != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
