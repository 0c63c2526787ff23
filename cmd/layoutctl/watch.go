package main

import (
	"github.com/spf13/cobra"

	"github.com/onnwee/graph-physics/internal/bootstrap"
	"github.com/onnwee/graph-physics/internal/tui"
)

func newWatchCmd() *cobra.Command {
	var (
		pf  paramFlags
		dt  float64
		fps int
	)
	cmd := &cobra.Command{
		Use:   "watch <graph-file>",
		Short: "Tick a graph live in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, _, err := prepareEngine(cmd, args[0], &pf)
			if err != nil {
				return err
			}
			ctx, stop := bootstrap.SignalContext()
			defer stop()
			return tui.Run(ctx, engine, dt, fps)
		},
	}
	pf.register(cmd)
	cmd.Flags().Float64Var(&dt, "dt", 0.016, "time step per tick")
	cmd.Flags().IntVar(&fps, "fps", 30, "ticks per second")
	return cmd
}
