// Package simulation hosts physics engines: sessions guarded for concurrent
// use, a bounded registry, autonomous playback and run-to-rest batches.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/metrics"
	"github.com/onnwee/graph-physics/internal/physics"
	"github.com/onnwee/graph-physics/internal/tracing"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrTooManySessions  = errors.New("too many sessions")
	ErrTooManyNodes     = errors.New("too many nodes")
	ErrInvalidTimeStep  = errors.New("time step must be finite and non-negative")
	ErrInvalidFrameRate = errors.New("invalid frame rate")
)

// Trigger labels what caused a tick.
type Trigger string

const (
	TriggerAPI    Trigger = "api"
	TriggerPlayer Trigger = "player"
	TriggerLayout Trigger = "layout"
	TriggerCLI    Trigger = "cli"
)

// TickEvent is delivered to observers after every tick.
type TickEvent struct {
	SessionID string
	Tick      uint64
	Version   uint64
	Trigger   Trigger
	Nodes     []physics.Node
	Stats     physics.Stats
}

// Observer receives tick events. It runs on the ticking goroutine and must not
// call back into the session.
type Observer func(TickEvent)

// ValidateTimeStep rejects NaN, infinite and negative dt.
func ValidateTimeStep(dt float64) error {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTimeStep, dt)
	}
	return nil
}

// Session is one engine made safe for concurrent callers.
type Session struct {
	id       string
	created  time.Time
	maxNodes int

	mu         sync.Mutex
	engine     *physics.Engine
	version    uint64
	lastActive time.Time

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int

	playing atomic.Bool
	closed  atomic.Bool
	log     *slog.Logger
}

// NewSession wraps a fresh engine. maxNodes <= 0 disables the node cap.
func NewSession(id string, maxNodes int, opts ...physics.Option) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		created:    now,
		lastActive: now,
		maxNodes:   maxNodes,
		engine:     physics.NewEngine(opts...),
		observers:  map[int]Observer{},
		log:        logger.WithSession(id),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) CreatedAt() time.Time { return s.created }

// LastActive is the time of the last mutation or tick.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Playing reports whether a Player is ticking this session.
func (s *Session) Playing() bool { return s.playing.Load() }

// Closed reports whether the session has been removed from its registry.
func (s *Session) Closed() bool { return s.closed.Load() }

// mutate runs fn under the lock and bumps the version when fn succeeds.
func (s *Session) mutate(fn func(e *physics.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.engine); err != nil {
		return err
	}
	s.version++
	s.lastActive = time.Now()
	return nil
}

// SetNodes replaces the node set.
func (s *Session) SetNodes(nodes []physics.Node) error {
	if s.maxNodes > 0 && len(nodes) > s.maxNodes {
		return fmt.Errorf("%w: %d nodes, limit %d", ErrTooManyNodes, len(nodes), s.maxNodes)
	}
	return s.mutate(func(e *physics.Engine) error { return e.SetNodes(nodes) })
}

// SetEdges replaces the edge set.
func (s *Session) SetEdges(edges []physics.Edge) error {
	return s.mutate(func(e *physics.Engine) error { return e.SetEdges(edges) })
}

// SetParams overwrites the tuning parameters.
func (s *Session) SetParams(p physics.Params) {
	_ = s.mutate(func(e *physics.Engine) error {
		e.SetParams(p)
		return nil
	})
}

// Params returns the current tuning parameters.
func (s *Session) Params() physics.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Params()
}

// Nodes returns a copy of the node set.
func (s *Session) Nodes() []physics.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Nodes()
}

// Edges returns a copy of the edge set.
func (s *Session) Edges() []physics.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Edges()
}

// Version increases on every mutation and tick.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Stats returns the engine figures for the last tick.
func (s *Session) Stats() physics.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Stats()
}

// State returns nodes with the version and tick they belong to, read atomically.
func (s *Session) State() (nodes []physics.Node, version, tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Nodes(), s.version, s.engine.Stats().Tick
}

// Snapshot is session metadata without the node payload.
type Snapshot struct {
	ID         string         `json:"id"`
	Version    uint64         `json:"version"`
	Params     physics.Params `json:"params"`
	Stats      physics.Stats  `json:"stats"`
	NodeCount  int            `json:"node_count"`
	EdgeCount  int            `json:"edge_count"`
	Playing    bool           `json:"playing"`
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
}

// Snapshot returns the session metadata.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:         s.id,
		Version:    s.version,
		Params:     s.engine.Params(),
		Stats:      s.engine.Stats(),
		NodeCount:  s.engine.Len(),
		EdgeCount:  len(s.engine.Edges()),
		Playing:    s.playing.Load(),
		CreatedAt:  s.created,
		LastActive: s.lastActive,
	}
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Session) Subscribe(o Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = o
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

// Subscribers returns the number of registered observers.
func (s *Session) Subscribers() int {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return len(s.observers)
}

// Tick advances the engine by dt and notifies observers. It fails only for a
// bad dt or a done context; in both cases the engine is not advanced.
func (s *Session) Tick(ctx context.Context, dt float64, trigger Trigger) ([]physics.Node, error) {
	if err := ValidateTimeStep(dt); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "physics.tick")
	defer span.End()

	start := time.Now()
	s.mu.Lock()
	nodes := s.engine.Tick(dt)
	stats := s.engine.Stats()
	params := s.engine.Params()
	s.version++
	version := s.version
	s.lastActive = time.Now()
	s.mu.Unlock()
	elapsed := time.Since(start)

	label := string(trigger)
	metrics.PhysicsTicksTotal.WithLabelValues(label).Inc()
	metrics.PhysicsTickDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	metrics.PhysicsTickNodes.Observe(float64(stats.Nodes))
	if stats.DanglingEdges > 0 {
		metrics.PhysicsDanglingEdges.Add(float64(stats.DanglingEdges))
	}
	if stats.DroppedBodies > 0 {
		metrics.PhysicsDroppedBodies.Add(float64(stats.DroppedBodies))
		s.log.WarnContext(ctx, "bodies outside octree root", "dropped", stats.DroppedBodies)
	}

	span.SetAttributes(
		tracing.AttrSessionID.String(s.id),
		tracing.AttrTrigger.String(label),
		tracing.AttrNodes.Int(stats.Nodes),
		tracing.AttrEdges.Int(stats.Edges),
		tracing.AttrTheta.Float64(params.Theta),
		tracing.AttrDT.Float64(dt),
		tracing.AttrTick.Int64(int64(stats.Tick)),
		tracing.AttrEnergy.Float64(stats.KineticEnergy),
	)
	s.log.DebugContext(ctx, "tick",
		"tick", stats.Tick, "trigger", label, "nodes", stats.Nodes,
		"energy", stats.KineticEnergy, "duration", elapsed)

	s.notify(TickEvent{
		SessionID: s.id,
		Tick:      stats.Tick,
		Version:   version,
		Trigger:   trigger,
		Nodes:     nodes,
		Stats:     stats,
	})
	return nodes, nil
}

func (s *Session) notify(ev TickEvent) {
	s.obsMu.RLock()
	obs := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	s.obsMu.RUnlock()
	for _, o := range obs {
		o(ev)
	}
}
