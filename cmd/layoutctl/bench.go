package main

import (
	"fmt"
	"math"
	"math/rand"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/onnwee/graph-physics/internal/physics"
)

type benchOptions struct {
	nodes  []int
	thetas []float64
	seed   int64
}

func newBenchCmd() *cobra.Command {
	var o benchOptions
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare octree repulsion against the exact pairwise sum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := runBench(o)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NODES\tTHETA\tOCTREE\tEXACT\tSPEEDUP\tMEAN ERR\tMAX ERR")
			for _, r := range rows {
				fmt.Fprintf(w, "%d\t%.2f\t%s\t%s\t%.1fx\t%.2e\t%.2e\n",
					r.Nodes, r.Theta, r.Octree.Round(time.Microsecond), r.Exact.Round(time.Microsecond),
					r.Speedup(), r.MeanErr, r.MaxErr)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntSliceVar(&o.nodes, "nodes", []int{100, 1000, 4000}, "graph sizes")
	cmd.Flags().Float64SliceVar(&o.thetas, "theta", []float64{0, 0.3, 0.5, 0.8, 1.2}, "opening angles")
	cmd.Flags().Int64Var(&o.seed, "seed", 1, "random seed")
	return cmd
}

type benchRow struct {
	Nodes   int
	Theta   float64
	Octree  time.Duration
	Exact   time.Duration
	MeanErr float64
	MaxErr  float64
}

func (r benchRow) Speedup() float64 {
	if r.Octree <= 0 {
		return math.Inf(1)
	}
	return float64(r.Exact) / float64(r.Octree)
}

func randomNodes(n int, rng *rand.Rand) []physics.Node {
	nodes := make([]physics.Node, n)
	for i := range nodes {
		nodes[i] = physics.Node{
			ID:   fmt.Sprintf("n%d", i),
			X:    rng.NormFloat64() * 100,
			Y:    rng.NormFloat64() * 100,
			Z:    rng.NormFloat64() * 100,
			Mass: 1 + rng.Float64(),
		}
	}
	return nodes
}

// relativeErrors returns |approx-exact|/|exact| per node.
func relativeErrors(approx, exact []r3.Vec) []float64 {
	errs := make([]float64, len(exact))
	for i := range exact {
		norm := r3.Norm(exact[i])
		if norm == 0 {
			continue
		}
		errs[i] = r3.Norm(r3.Sub(approx[i], exact[i])) / norm
	}
	return errs
}

func runBench(o benchOptions) ([]benchRow, error) {
	if len(o.nodes) == 0 || len(o.thetas) == 0 {
		return nil, fmt.Errorf("need at least one --nodes and one --theta value")
	}
	rng := rand.New(rand.NewSource(o.seed))
	var rows []benchRow
	for _, n := range o.nodes {
		if n <= 0 {
			return nil, fmt.Errorf("invalid graph size %d", n)
		}
		nodes := randomNodes(n, rng)

		start := time.Now()
		exact := physics.DirectForces(nodes, 1)
		exactTime := time.Since(start)

		for _, theta := range o.thetas {
			if theta < 0 {
				return nil, fmt.Errorf("invalid theta %v", theta)
			}
			approx := make([]r3.Vec, n)
			start := time.Now()
			tree := physics.NewOctree(physics.BoundsOf(nodes).Pad(1).Cube(), n)
			for i, nd := range nodes {
				tree.Insert(i, nd.Position(), nd.Mass)
			}
			physics.RepulsionForces(tree, nodes, theta, 1, approx)
			octTime := time.Since(start)

			errs := relativeErrors(approx, exact)
			rows = append(rows, benchRow{
				Nodes:   n,
				Theta:   theta,
				Octree:  octTime,
				Exact:   exactTime,
				MeanErr: stat.Mean(errs, nil),
				MaxErr:  maxOf(errs),
			})
		}
	}
	return rows, nil
}

func maxOf(xs []float64) float64 {
	var m float64
	for _, x := range xs {
		m = math.Max(m, x)
	}
	return m
}
