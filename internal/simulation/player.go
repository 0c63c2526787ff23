package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/onnwee/graph-physics/internal/errorreporting"
	"github.com/onnwee/graph-physics/internal/logger"
)

// Player ticks sessions autonomously, one goroutine per playing session.
type Player struct {
	maxFPS int

	mu   sync.Mutex
	runs map[string]*playback
	wg   sync.WaitGroup
}

type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
	fps    int
	dt     float64
}

// PlayState describes a running playback.
type PlayState struct {
	FPS int     `json:"fps"`
	DT  float64 `json:"dt"`
}

// NewPlayer returns a Player that refuses frame rates above maxFPS.
func NewPlayer(maxFPS int) *Player {
	if maxFPS <= 0 {
		maxFPS = 60
	}
	return &Player{maxFPS: maxFPS, runs: map[string]*playback{}}
}

// Play starts ticking s at fps frames per second with a fixed dt. Playing an
// already playing session replaces the running loop with the new settings.
// Playback stops on Pause, on StopAll or when ctx is done. A session removed
// from its registry cannot be played.
func (p *Player) Play(ctx context.Context, s *Session, fps int, dt float64) error {
	if fps <= 0 || fps > p.maxFPS {
		return fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidFrameRate, fps, p.maxFPS)
	}
	if err := ValidateTimeStep(dt); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	pb := &playback{cancel: cancel, done: make(chan struct{}), fps: fps, dt: dt}

	p.mu.Lock()
	if s.Closed() {
		p.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID())
	}
	prev := p.runs[s.ID()]
	p.runs[s.ID()] = pb
	s.playing.Store(true)
	p.wg.Add(1)
	go p.loop(ctx, s, pb)
	p.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}
	logger.WithSession(s.ID()).Info("playback started", "fps", fps, "dt", dt)
	return nil
}

func (p *Player) loop(ctx context.Context, s *Session, pb *playback) {
	defer p.wg.Done()
	defer close(pb.done)
	defer func() {
		p.mu.Lock()
		if p.runs[s.ID()] == pb {
			delete(p.runs, s.ID())
			s.playing.Store(false)
		}
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(time.Second / time.Duration(pb.fps))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx, pb.dt, TriggerPlayer); err != nil {
				if ctx.Err() == nil {
					logger.WithSession(s.ID()).Error("playback tick failed", "error", err)
					errorreporting.CaptureSessionError(err, s.ID(), "play")
				}
				return
			}
		}
	}
}

// Pause stops playback of the session and waits for its loop to exit.
// It reports whether the session was playing.
func (p *Player) Pause(id string) bool {
	p.mu.Lock()
	pb, ok := p.runs[id]
	p.mu.Unlock()
	if !ok {
		return false
	}
	pb.cancel()
	<-pb.done
	logger.WithSession(id).Info("playback stopped")
	return true
}

// Playing reports whether the session is being ticked and with which settings.
func (p *Player) Playing(id string) (PlayState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pb, ok := p.runs[id]
	if !ok {
		return PlayState{}, false
	}
	return PlayState{FPS: pb.fps, DT: pb.dt}, true
}

// StopAll cancels every playback and waits for the loops to exit.
func (p *Player) StopAll() {
	p.mu.Lock()
	for _, pb := range p.runs {
		pb.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}
