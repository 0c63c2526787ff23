package main

import (
	"fmt"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/onnwee/graph-physics/internal/bootstrap"
	"github.com/onnwee/graph-physics/internal/graphio"
	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/physics"
	"github.com/onnwee/graph-physics/internal/simulation"
)

type runOptions struct {
	params   paramFlags
	ticks    int
	minTicks int
	dt       float64
	epsilon  float64
	out      string
	plot     bool
}

func newRunCmd() *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run <graph-file>",
		Short: "Run a layout to convergence and write the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(cmd, args[0], &o)
		},
	}
	o.params.register(cmd)
	cmd.Flags().IntVar(&o.ticks, "ticks", 500, "maximum number of ticks")
	cmd.Flags().IntVar(&o.minTicks, "min-ticks", 10, "ticks before convergence is checked")
	cmd.Flags().Float64Var(&o.dt, "dt", 0.016, "time step per tick")
	cmd.Flags().Float64Var(&o.epsilon, "epsilon", 1e-3, "kinetic energy at which the layout counts as settled (0 disables)")
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "output file (.json, .yaml); defaults to stdout as JSON")
	cmd.Flags().BoolVar(&o.plot, "plot", false, "plot kinetic energy per tick")
	return cmd
}

// prepareEngine loads a graph file and builds an engine for it.
func prepareEngine(cmd *cobra.Command, path string, pf *paramFlags) (*physics.Engine, *graphio.Graph, int, error) {
	g, err := graphio.Load(path)
	if err != nil {
		return nil, nil, 0, err
	}
	seeded := simulation.SeedPositions(g.Nodes, pf.seedRadius, pf.seed)

	params := pf.resolve(cmd, g.Params)
	engine := physics.NewEngine(physics.WithParams(params))
	if err := engine.SetNodes(g.Nodes); err != nil {
		return nil, nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	if err := engine.SetEdges(g.Edges); err != nil {
		return nil, nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	logger.Info("graph loaded", "path", path, "nodes", len(g.Nodes), "edges", len(g.Edges), "seeded", seeded)
	return engine, g, seeded, nil
}

func runLayout(cmd *cobra.Command, path string, o *runOptions) error {
	if o.ticks <= 0 {
		return fmt.Errorf("--ticks must be positive")
	}
	engine, g, seeded, err := prepareEngine(cmd, path, &o.params)
	if err != nil {
		return err
	}

	ctx, stop := bootstrap.SignalContext()
	defer stop()

	res, err := simulation.Run(ctx, simulation.EngineStepper{Engine: engine}, simulation.RunConfig{
		MaxTicks:      o.ticks,
		DT:            o.dt,
		EnergyEpsilon: o.epsilon,
		MinTicks:      o.minTicks,
	})
	if err != nil {
		return err
	}

	params := engine.Params()
	out := &graphio.Graph{Nodes: engine.Nodes(), Edges: g.Edges, Params: &params}
	if o.out == "" {
		if err := graphio.Encode(cmd.OutOrStdout(), out, graphio.FormatJSON); err != nil {
			return err
		}
	} else if err := graphio.Save(o.out, out); err != nil {
		return err
	}

	// stdout carries only the graph document
	report := cmd.ErrOrStderr()
	if o.plot && len(res.Energy) > 1 {
		fmt.Fprintln(report, asciigraph.Plot(res.Energy,
			asciigraph.Height(12),
			asciigraph.Width(60),
			asciigraph.Caption("kinetic energy per tick")))
		fmt.Fprintln(report)
	}
	fmt.Fprint(report, summary("layout", [][2]string{
		{"nodes", fmt.Sprintf("%d (%d seeded)", len(g.Nodes), seeded)},
		{"edges", fmt.Sprintf("%d (%d dangling)", len(g.Edges), res.Stats.DanglingEdges)},
		{"ticks", fmt.Sprintf("%d", res.Ticks)},
		{"converged", fmt.Sprintf("%t", res.Converged)},
		{"energy", fmt.Sprintf("%.6g", res.Stats.KineticEnergy)},
		{"octree", fmt.Sprintf("%d cells, depth %d", res.Stats.Cells, res.Stats.Depth)},
		{"duration", res.Duration.String()},
	}))
	return nil
}
