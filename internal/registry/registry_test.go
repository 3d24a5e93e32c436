package registry

import (
	"errors"
	"testing"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/errs"
)

func TestRegisterAndGet(t *testing.T) {
	reg := New()
	a := &agent.Agent{ID: "a1", Name: "Agent One"}

	if err := reg.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := reg.Get("a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != a {
		t.Fatal("expected registry.Get to return the same pointer registered")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := New()
	a := &agent.Agent{ID: "a1"}
	if err := reg.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := reg.Register(&agent.Agent{ID: "a1"})
	if !errors.Is(err, errs.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	reg := New()
	_, err := reg.Get("missing")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByTagStableOrder(t *testing.T) {
	reg := New()
	ids := []string{"a1", "a2", "a3", "a4"}
	tags := map[string][]string{
		"a1": {"team"},
		"a2": {"other"},
		"a3": {"team", "admin"},
		"a4": {"team"},
	}
	for _, id := range ids {
		if err := reg.Register(&agent.Agent{ID: id, Tags: tags[id]}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	matched := reg.GetByTag("team")
	if len(matched) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matched))
	}
	wantOrder := []string{"a1", "a3", "a4"}
	for i, a := range matched {
		if a.ID != wantOrder[i] {
			t.Errorf("position %d: expected %s, got %s", i, wantOrder[i], a.ID)
		}
	}
}

func TestGetAllStableOrder(t *testing.T) {
	reg := New()
	for _, id := range []string{"c", "a", "b"} {
		if err := reg.Register(&agent.Agent{ID: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	all := reg.GetAll()
	want := []string{"c", "a", "b"}
	for i, a := range all {
		if a.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], a.ID)
		}
	}
}

func TestUnregister(t *testing.T) {
	reg := New()
	_ = reg.Register(&agent.Agent{ID: "a1"})
	_ = reg.Register(&agent.Agent{ID: "a2"})

	reg.Unregister("a1")
	if _, err := reg.Get("a1"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected a1 gone, got %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 agent remaining, got %d", reg.Len())
	}

	// unregistering an absent id is a no-op, not an error
	reg.Unregister("does-not-exist")
}

func TestSetState(t *testing.T) {
	reg := New()
	_ = reg.Register(&agent.Agent{ID: "a1"})

	if err := reg.SetState("a1", agent.StateIdle); err != nil {
		t.Fatalf("set state: %v", err)
	}
	a, _ := reg.Get("a1")
	if a.State != agent.StateIdle {
		t.Fatalf("expected idle, got %s", a.State)
	}

	if err := reg.SetState("missing", agent.StateIdle); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
