// Package layoutjob computes a full layout of the stored graph and writes the
// resulting coordinates back, once or on an interval.
package layoutjob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/onnwee/graph-physics/internal/circuitbreaker"
	"github.com/onnwee/graph-physics/internal/config"
	"github.com/onnwee/graph-physics/internal/errorreporting"
	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/metrics"
	"github.com/onnwee/graph-physics/internal/physics"
	"github.com/onnwee/graph-physics/internal/simulation"
	"github.com/onnwee/graph-physics/internal/store"
	"github.com/onnwee/graph-physics/internal/tracing"
)

// Store is the persistence the job needs.
type Store interface {
	LoadGraph(ctx context.Context, layout string, maxNodes int) ([]physics.Node, []physics.Edge, error)
	SaveCoords(ctx context.Context, layout string, nodes []physics.Node, t float64, batchSize int) error
	RecordRun(ctx context.Context, r store.Run) (int64, error)
}

// Config tunes a layout run.
type Config struct {
	Layout        string
	MaxNodes      int
	Ticks         int
	MinTicks      int
	DT            float64
	EnergyEpsilon float64
	BatchSize     int
	SeedRadius    float64
	Seed          int64
	StoreTimeout  time.Duration // per store call; 0 means none
	EngineOptions []physics.Option
}

// ConfigFrom builds a job Config from the service configuration.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Layout:        c.LayoutName,
		MaxNodes:      c.LayoutMaxNodes,
		Ticks:         c.LayoutTicks,
		MinTicks:      10,
		DT:            c.LayoutDT,
		EnergyEpsilon: c.LayoutEnergyEpsilon,
		BatchSize:     c.LayoutBatchSize,
		SeedRadius:    c.LayoutSeedRadius,
		Seed:          1,
		StoreTimeout:  c.DBStatementTimeout,
		EngineOptions: c.EngineOptions(),
	}
}

// Result summarizes one run.
type Result struct {
	RunID     int64
	Nodes     int
	Edges     int
	Seeded    int
	Ticks     int
	Converged bool
	Energy    float64
	Duration  time.Duration
}

// Job runs layouts against a Store. Store access goes through a circuit
// breaker so a dead database fails fast between runs.
type Job struct {
	store   Store
	cfg     Config
	breaker *circuitbreaker.CircuitBreaker
}

func New(s Store, cfg Config) *Job {
	return &Job{
		store: s,
		cfg:   cfg,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "layout_store",
			FailureThreshold: 3,
			SuccessThreshold: 1,
			Timeout:          30 * time.Second,
		}),
	}
}

// Breaker exposes the store circuit breaker.
func (j *Job) Breaker() *circuitbreaker.CircuitBreaker { return j.breaker }

func (j *Job) fail(stage string, err error) error {
	metrics.LayoutRunErrors.WithLabelValues(stage).Inc()
	if !errors.Is(err, context.Canceled) && !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		errorreporting.CaptureErrorWithContext(err,
			map[string]string{"component": "layoutjob", "stage": stage},
			map[string]any{"layout": j.cfg.Layout})
	}
	return fmt.Errorf("layout %s: %w", stage, err)
}

// call runs fn through the breaker under the store timeout.
func (j *Job) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return j.breaker.CallContext(ctx, func(ctx context.Context) error {
		if j.cfg.StoreTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, j.cfg.StoreTimeout)
			defer cancel()
		}
		return fn(ctx)
	})
}

// RunOnce loads the graph, seeds nodes without coordinates, runs the engine
// until it settles or the tick budget is spent, saves the coordinates and
// records the run.
func (j *Job) RunOnce(ctx context.Context) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "layout.run")
	defer span.End()
	span.SetAttributes(tracing.AttrLayout.String(j.cfg.Layout))

	log := logger.WithComponent("layoutjob").With("layout", j.cfg.Layout)
	started := time.Now()
	var res Result

	var (
		nodes []physics.Node
		edges []physics.Edge
	)
	err := j.call(ctx, func(ctx context.Context) error {
		var err error
		nodes, edges, err = j.store.LoadGraph(ctx, j.cfg.Layout, j.cfg.MaxNodes)
		return err
	})
	if err != nil {
		return res, j.fail("load", err)
	}
	res.Nodes, res.Edges = len(nodes), len(edges)
	errorreporting.AddBreadcrumb("layout", fmt.Sprintf("loaded %d nodes, %d edges", res.Nodes, res.Edges), sentry.LevelInfo)
	if len(nodes) == 0 {
		log.Info("no nodes to lay out")
		return res, nil
	}

	res.Seeded = simulation.SeedPositions(nodes, j.cfg.SeedRadius, j.cfg.Seed)

	engine := physics.NewEngine(j.cfg.EngineOptions...)
	if err := engine.SetNodes(nodes); err != nil {
		return res, j.fail("prepare", err)
	}
	if err := engine.SetEdges(edges); err != nil {
		return res, j.fail("prepare", err)
	}

	run, err := simulation.Run(ctx, simulation.EngineStepper{Engine: engine}, simulation.RunConfig{
		MaxTicks:      j.cfg.Ticks,
		DT:            j.cfg.DT,
		EnergyEpsilon: j.cfg.EnergyEpsilon,
		MinTicks:      j.cfg.MinTicks,
	})
	res.Ticks, res.Converged = run.Ticks, run.Converged
	res.Energy = run.Stats.KineticEnergy
	metrics.LayoutRunTicks.Observe(float64(run.Ticks))
	if err != nil {
		return res, j.fail("simulate", err)
	}
	final := run.Final
	if final == nil {
		final = engine.Nodes()
	}

	err = j.call(ctx, func(ctx context.Context) error {
		return j.store.SaveCoords(ctx, j.cfg.Layout, final, float64(run.Ticks)*j.cfg.DT, j.cfg.BatchSize)
	})
	if err != nil {
		return res, j.fail("save", err)
	}

	res.Duration = time.Since(started)
	metrics.LayoutRunDuration.Observe(res.Duration.Seconds())

	err = j.call(ctx, func(ctx context.Context) error {
		var err error
		res.RunID, err = j.store.RecordRun(ctx, store.Run{
			Layout:    j.cfg.Layout,
			Nodes:     res.Nodes,
			Edges:     res.Edges,
			Ticks:     res.Ticks,
			Converged: res.Converged,
			Duration:  res.Duration,
			Params:    engine.Params(),
			Energy:    run.Energy,
			StartedAt: started,
		})
		return err
	})
	if err != nil {
		// coordinates are already saved; a missing history row is not fatal
		log.Warn("failed to record layout run", "error", j.fail("record", err))
	}

	span.SetAttributes(
		tracing.AttrNodes.Int(res.Nodes),
		tracing.AttrEdges.Int(res.Edges),
		tracing.AttrTick.Int(res.Ticks),
		tracing.AttrEnergy.Float64(res.Energy),
	)
	log.Info("layout complete",
		"nodes", res.Nodes, "edges", res.Edges, "seeded", res.Seeded,
		"ticks", res.Ticks, "converged", res.Converged,
		"energy", res.Energy, "duration", res.Duration)
	return res, nil
}

// Start runs a layout immediately and then every interval until ctx is done.
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	log := logger.WithComponent("layoutjob")
	if _, err := j.RunOnce(ctx); err != nil {
		log.Error("layout run failed", "error", err)
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				log.Error("layout run failed", "error", err)
			}
		}
	}
}
