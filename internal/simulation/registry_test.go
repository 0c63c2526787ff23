package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/graph-physics/internal/physics"
)

func TestRegistryCreateGetDelete(t *testing.T) {
	r := NewRegistry(RegistryConfig{})

	s, err := r.Create(nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.ID() == "" {
		t.Fatal("empty session id")
	}
	if s.Params() != physics.DefaultParams() {
		t.Errorf("params = %+v, want defaults", s.Params())
	}

	got, err := r.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Get() = %v, %v", got, err)
	}

	var removed []string
	r.OnRemove(func(id string) { removed = append(removed, id) })

	if err := r.Delete(s.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after delete: err = %v", err)
	}
	if err := r.Delete(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Delete: err = %v", err)
	}
	if len(removed) != 1 || removed[0] != s.ID() {
		t.Errorf("OnRemove calls = %v", removed)
	}
}

func TestRegistryCreateWithParams(t *testing.T) {
	r := NewRegistry(RegistryConfig{EngineOptions: []physics.Option{physics.WithPadding(5)}})
	p := physics.Params{Repulsion: 10, Attraction: 0.5, Damping: 0.5, Theta: 0}

	s, err := r.Create(&p)
	if err != nil {
		t.Fatal(err)
	}
	if s.Params() != p {
		t.Errorf("params = %+v, want %+v", s.Params(), p)
	}
}

func TestRegistryLimits(t *testing.T) {
	r := NewRegistry(RegistryConfig{MaxSessions: 2, MaxNodes: 1})
	s, err := r.Create(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(nil); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("third Create: err = %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d", r.Len())
	}
	if err := s.SetNodes(pair()); !errors.Is(err, ErrTooManyNodes) {
		t.Errorf("SetNodes over cap: err = %v", err)
	}
}

func TestRegistryListOrdered(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	var ids []string
	for i := 0; i < 3; i++ {
		s, err := r.Create(nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, s.ID())
		time.Sleep(time.Millisecond)
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List() len = %d", len(list))
	}
	for i, snap := range list {
		if snap.ID != ids[i] {
			t.Errorf("List()[%d] = %s, want %s", i, snap.ID, ids[i])
		}
	}
}

func TestRegistrySweep(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	idle, _ := r.Create(nil)
	watched, _ := r.Create(nil)
	unsubscribe := watched.Subscribe(func(TickEvent) {})
	defer unsubscribe()

	time.Sleep(20 * time.Millisecond)
	fresh, _ := r.Create(nil)

	if n := r.Sweep(10 * time.Millisecond); n != 1 {
		t.Errorf("Sweep() removed %d, want 1", n)
	}
	if _, err := r.Get(idle.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Error("idle session survived sweep")
	}
	for _, s := range []*Session{watched, fresh} {
		if _, err := r.Get(s.ID()); err != nil {
			t.Errorf("session %s swept: %v", s.ID(), err)
		}
	}
}

func TestRegistrySessionTotals(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	s, _ := r.Create(nil)
	if err := s.SetNodes(pair()); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEdges([]physics.Edge{{Source: "a", Target: "b", Weight: 1}}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(nil); err != nil {
		t.Fatal(err)
	}

	totals, err := r.SessionTotals(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if totals.Sessions != 2 || totals.Nodes != 2 || totals.Edges != 1 || totals.Playing != 0 {
		t.Errorf("totals = %+v", totals)
	}
}
