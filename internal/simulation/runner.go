package simulation

import (
	"context"
	"time"

	"github.com/onnwee/graph-physics/internal/physics"
	"github.com/onnwee/graph-physics/internal/tracing"
)

// Stepper advances a simulation by one tick.
type Stepper interface {
	Step(ctx context.Context, dt float64) ([]physics.Node, physics.Stats, error)
}

// EngineStepper drives a bare engine owned by the caller.
type EngineStepper struct{ Engine *physics.Engine }

func (e EngineStepper) Step(ctx context.Context, dt float64) ([]physics.Node, physics.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, physics.Stats{}, err
	}
	nodes := e.Engine.Tick(dt)
	return nodes, e.Engine.Stats(), nil
}

// SessionStepper drives a session, so observers and metrics see every tick.
type SessionStepper struct {
	Session *Session
	Trigger Trigger
}

func (s SessionStepper) Step(ctx context.Context, dt float64) ([]physics.Node, physics.Stats, error) {
	nodes, err := s.Session.Tick(ctx, dt, s.Trigger)
	if err != nil {
		return nil, physics.Stats{}, err
	}
	return nodes, s.Session.Stats(), nil
}

// RunConfig controls a Run.
type RunConfig struct {
	MaxTicks int
	DT       float64
	// EnergyEpsilon stops the run once kinetic energy drops below it.
	// Zero disables the check.
	EnergyEpsilon float64
	// MinTicks is the number of ticks to run before the energy check applies.
	MinTicks int
	// OnTick is called after every tick; returning false stops the run.
	OnTick func(tick int, nodes []physics.Node, stats physics.Stats) bool
}

// RunResult summarizes a Run.
type RunResult struct {
	Ticks     int
	Converged bool
	Stopped   bool
	Energy    []float64
	Final     []physics.Node
	Stats     physics.Stats
	Duration  time.Duration
}

// Run ticks st until MaxTicks, convergence, an OnTick stop or ctx is done.
// A cancelled context returns the partial result along with ctx.Err().
func Run(ctx context.Context, st Stepper, cfg RunConfig) (res RunResult, err error) {
	if err := ValidateTimeStep(cfg.DT); err != nil {
		return RunResult{}, err
	}

	ctx, span := tracing.StartSpan(ctx, "physics.run")
	defer span.End()

	start := time.Now()
	res.Energy = make([]float64, 0, max(cfg.MaxTicks, 0))
	defer func() {
		res.Duration = time.Since(start)
		span.SetAttributes(
			tracing.AttrTick.Int(res.Ticks),
			tracing.AttrDT.Float64(cfg.DT),
			tracing.AttrNodes.Int(res.Stats.Nodes),
			tracing.AttrEnergy.Float64(res.Stats.KineticEnergy),
		)
	}()

	for res.Ticks < cfg.MaxTicks {
		nodes, stats, stepErr := st.Step(ctx, cfg.DT)
		if stepErr != nil {
			return res, stepErr
		}
		res.Ticks++
		res.Final = nodes
		res.Stats = stats
		res.Energy = append(res.Energy, stats.KineticEnergy)

		if cfg.OnTick != nil && !cfg.OnTick(res.Ticks, nodes, stats) {
			res.Stopped = true
			return res, nil
		}
		if cfg.EnergyEpsilon > 0 && res.Ticks >= cfg.MinTicks && stats.KineticEnergy < cfg.EnergyEpsilon {
			res.Converged = true
			return res, nil
		}
	}
	return res, nil
}
