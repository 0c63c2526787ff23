package simulation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/metrics"
	"github.com/onnwee/graph-physics/internal/physics"
)

// RegistryConfig bounds a Registry.
type RegistryConfig struct {
	MaxSessions   int // <= 0 means unlimited
	MaxNodes      int // per session, <= 0 means unlimited
	EngineOptions []physics.Option
}

// Registry owns the live sessions of a server.
type Registry struct {
	cfg RegistryConfig

	mu       sync.RWMutex
	sessions map[string]*Session
	onRemove []func(id string)
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{cfg: cfg, sessions: map[string]*Session{}}
}

// OnRemove registers fn to run after a session is deleted or swept.
func (r *Registry) OnRemove(fn func(id string)) {
	r.mu.Lock()
	r.onRemove = append(r.onRemove, fn)
	r.mu.Unlock()
}

// Create starts a new session. params overrides the configured engine
// defaults when non-nil.
func (r *Registry) Create(params *physics.Params) (*Session, error) {
	opts := append([]physics.Option{}, r.cfg.EngineOptions...)
	if params != nil {
		opts = append(opts, physics.WithParams(*params))
	}

	r.mu.Lock()
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, r.cfg.MaxSessions)
	}
	s := NewSession(uuid.NewString(), r.cfg.MaxNodes, opts...)
	r.sessions[s.id] = s
	r.mu.Unlock()

	metrics.SessionsCreated.Inc()
	logger.WithSession(s.id).Info("session created", "params", s.Params())
	return s, nil
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete removes a session and runs the OnRemove hooks.
func (r *Registry) Delete(id string) error {
	if !r.remove(id, "deleted") {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

func (r *Registry) remove(id, reason string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		s.closed.Store(true)
	}
	delete(r.sessions, id)
	hooks := append([]func(string){}, r.onRemove...)
	r.mu.Unlock()
	if !ok {
		return false
	}
	for _, h := range hooks {
		h(id)
	}
	metrics.SessionsEvicted.WithLabelValues(reason).Inc()
	logger.WithSession(id).Info("session removed", "reason", reason)
	return true
}

// List returns snapshots of all sessions, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, len(all))
	for i, s := range all {
		out[i] = s.Snapshot()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than maxIdle that are neither
// playing nor streamed to. It returns the number removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.RLock()
	var stale []string
	for id, s := range r.sessions {
		if s.Playing() || s.Subscribers() > 0 {
			continue
		}
		if s.LastActive().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, id := range stale {
		if r.remove(id, "idle") {
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(maxIdle); n > 0 {
				logger.WithComponent("simulation").Info("swept idle sessions", "removed", n)
			}
		}
	}
}

// SessionTotals implements metrics.SessionSource.
func (r *Registry) SessionTotals(context.Context) (metrics.SessionTotals, error) {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	t := metrics.SessionTotals{Sessions: len(all)}
	for _, s := range all {
		snap := s.Snapshot()
		if snap.Playing {
			t.Playing++
		}
		t.Nodes += snap.NodeCount
		t.Edges += snap.EdgeCount
	}
	return t, nil
}
