package model

import (
	"context"
	"errors"
	"testing"

	"github.com/agentrt/runtime/internal/errs"
)

func stubBackend(name, typ string, healthy bool, err error) *LocalBackend {
	return &LocalBackend{
		NameValue: name,
		TypeValue: typ,
		GenerateFunc: func(ctx context.Context, opts GenerationOptions) (GenerationResult, error) {
			if err != nil {
				return GenerationResult{}, err
			}
			return GenerationResult{Content: "from " + name, Model: name, TokensUsed: 10}, nil
		},
		HealthFunc: func(ctx context.Context) bool { return healthy },
	}
}

func TestSelectModelUsesDefaultWhenNoRuleMatches(t *testing.T) {
	m := NewManager()
	m.Register(stubBackend("a", "local", true, nil), true)

	name, err := m.SelectModel("agent1", "code", false)
	if err != nil || name != "a" {
		t.Fatalf("expected default backend a, got %q err=%v", name, err)
	}
}

func TestSelectModelErrorsWithoutDefault(t *testing.T) {
	m := NewManager()
	_, err := m.SelectModel("agent1", "code", false)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSelectModelRoutingRuleWithFallback(t *testing.T) {
	m := NewManager()
	m.Register(stubBackend("fallback-backend", "local", true, nil), true)
	m.AddRoutingRule(RoutingRule{
		Name:      "primary-backend",
		Condition: func(agentID, taskType string) bool { return taskType == "code" },
		Fallbacks: []string{"fallback-backend"},
	})

	name, err := m.SelectModel("agent1", "code", false)
	if err != nil || name != "fallback-backend" {
		t.Fatalf("expected fallback-backend selected, got %q err=%v", name, err)
	}

	// non-matching task type falls through to the default (also fallback-backend here)
	name, err = m.SelectModel("agent1", "chat", false)
	if err != nil || name != "fallback-backend" {
		t.Fatalf("expected default for non-matching task, got %q err=%v", name, err)
	}
}

func TestSelectModelPreferLocal(t *testing.T) {
	m := NewManager()
	m.Register(stubBackend("remote-one", "remote", true, nil), true)
	m.Register(stubBackend("local-one", "local", true, nil), false)

	name, err := m.SelectModel("agent1", "code", true)
	if err != nil || name != "local-one" {
		t.Fatalf("expected local-one preferred, got %q err=%v", name, err)
	}
}

func TestGenerateWithFallbackSkipsUnhealthy(t *testing.T) {
	m := NewManager()
	m.Register(stubBackend("sick", "local", false, nil), false)
	m.Register(stubBackend("healthy", "local", true, nil), true)

	res, err := m.GenerateWithFallback(context.Background(), GenerationOptions{Prompt: "hi"}, "agent1", "code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Model != "healthy" {
		t.Fatalf("expected healthy backend used, got %q", res.Model)
	}
}

func TestGenerateWithFallbackTriesNextOnError(t *testing.T) {
	m := NewManager()
	m.Register(stubBackend("broken", "local", true, errors.New("boom")), false)
	m.Register(stubBackend("works", "local", true, nil), true)

	res, err := m.GenerateWithFallback(context.Background(), GenerationOptions{Prompt: "hi"}, "agent1", "code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Model != "works" {
		t.Fatalf("expected fallback to works, got %q", res.Model)
	}
}

func TestGenerateWithFallbackRaisesLastErrorWhenAllFail(t *testing.T) {
	m := NewManager()
	m.Register(stubBackend("a", "local", true, errors.New("err-a")), true)
	m.Register(stubBackend("b", "local", true, errors.New("err-b")), false)

	_, err := m.GenerateWithFallback(context.Background(), GenerationOptions{Prompt: "hi"}, "agent1", "code")
	if err == nil {
		t.Fatal("expected error when all backends fail")
	}
}

func TestGenerateRecordsStats(t *testing.T) {
	m := NewManager()
	m.Register(stubBackend("a", "local", true, nil), true)

	if _, err := m.Generate(context.Background(), GenerationOptions{Prompt: "hi"}, "agent1", "code"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, ok := m.Stats("a")
	if !ok || stats.TotalRequests != 1 || stats.TotalTokens != 10 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
