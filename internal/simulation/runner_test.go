package simulation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/onnwee/graph-physics/internal/physics"
)

func springEngine(t *testing.T) *physics.Engine {
	t.Helper()
	e := physics.NewEngine(physics.WithParams(physics.Params{
		Repulsion:  100,
		Attraction: 0.05,
		Damping:    0.8,
		Theta:      0.5,
	}))
	if err := e.SetNodes(pair()); err != nil {
		t.Fatal(err)
	}
	if err := e.SetEdges([]physics.Edge{{Source: "a", Target: "b", Weight: 1}}); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestRunConverges(t *testing.T) {
	e := springEngine(t)
	res, err := Run(context.Background(), EngineStepper{Engine: e}, RunConfig{
		MaxTicks:      5000,
		DT:            0.05,
		EnergyEpsilon: 1e-6,
		MinTicks:      10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Fatalf("did not converge in %d ticks, energy %g", res.Ticks, res.Stats.KineticEnergy)
	}
	if res.Ticks < 10 || res.Ticks >= 5000 {
		t.Errorf("ticks = %d", res.Ticks)
	}
	if len(res.Energy) != res.Ticks {
		t.Errorf("energy series len = %d, ticks = %d", len(res.Energy), res.Ticks)
	}
	if last := res.Energy[len(res.Energy)-1]; last >= 1e-6 {
		t.Errorf("final energy = %g", last)
	}
	for _, n := range res.Final {
		if math.IsNaN(n.X) || math.IsInf(n.X, 0) {
			t.Fatalf("non-finite position %+v", n)
		}
	}
	if res.Duration <= 0 {
		t.Error("duration not recorded")
	}
}

func TestRunMaxTicks(t *testing.T) {
	e := springEngine(t)
	res, err := Run(context.Background(), EngineStepper{Engine: e}, RunConfig{MaxTicks: 7, DT: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	if res.Ticks != 7 || res.Converged || res.Stopped {
		t.Errorf("result = %+v", res)
	}
	if e.Stats().Tick != 7 {
		t.Errorf("engine tick = %d", e.Stats().Tick)
	}
}

func TestRunOnTickStops(t *testing.T) {
	e := springEngine(t)
	res, err := Run(context.Background(), EngineStepper{Engine: e}, RunConfig{
		MaxTicks: 100,
		DT:       0.01,
		OnTick:   func(tick int, _ []physics.Node, _ physics.Stats) bool { return tick < 3 },
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Stopped || res.Ticks != 3 {
		t.Errorf("result ticks = %d stopped = %v", res.Ticks, res.Stopped)
	}
}

func TestRunCancelled(t *testing.T) {
	e := springEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	res, err := Run(ctx, EngineStepper{Engine: e}, RunConfig{
		MaxTicks: 100,
		DT:       0.01,
		OnTick: func(tick int, _ []physics.Node, _ physics.Stats) bool {
			if tick == 4 {
				cancel()
			}
			return true
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Ticks != 4 {
		t.Errorf("partial ticks = %d, want 4", res.Ticks)
	}
}

func TestRunRejectsBadTimeStep(t *testing.T) {
	e := springEngine(t)
	if _, err := Run(context.Background(), EngineStepper{Engine: e}, RunConfig{MaxTicks: 1, DT: math.NaN()}); !errors.Is(err, ErrInvalidTimeStep) {
		t.Errorf("err = %v", err)
	}
}

func TestRunSessionStepperNotifies(t *testing.T) {
	s := NewSession("s1", 0)
	if err := s.SetNodes(pair()); err != nil {
		t.Fatal(err)
	}
	var events int
	s.Subscribe(func(ev TickEvent) {
		if ev.Trigger == TriggerLayout {
			events++
		}
	})

	res, err := Run(context.Background(), SessionStepper{Session: s, Trigger: TriggerLayout}, RunConfig{MaxTicks: 5, DT: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	if res.Ticks != 5 || events != 5 {
		t.Errorf("ticks = %d, events = %d", res.Ticks, events)
	}
	if res.Stats.Tick != 5 {
		t.Errorf("stats tick = %d", res.Stats.Tick)
	}
}
