package main

import (
	"flag"
	"os"
	"time"

	"github.com/onnwee/graph-physics/internal/bootstrap"
	"github.com/onnwee/graph-physics/internal/config"
	"github.com/onnwee/graph-physics/internal/layoutjob"
	"github.com/onnwee/graph-physics/internal/logger"
)

func main() {
	bootstrap.Env()
	cfg := config.Load()

	interval := flag.Duration("interval", cfg.LayoutInterval, "re-run the layout on this interval (0 runs once)")
	layout := flag.String("layout", cfg.LayoutName, "layout name written to graph_coords")
	maxNodes := flag.Int("max-nodes", cfg.LayoutMaxNodes, "maximum nodes to lay out")
	flag.Parse()

	logger.Init(cfg.LogLevel)
	closeObservability := bootstrap.Observability(cfg, "graph-physics-precalculate")
	defer closeObservability()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	st, err := bootstrap.OpenStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	jobCfg := layoutjob.ConfigFrom(cfg)
	jobCfg.Layout = *layout
	jobCfg.MaxNodes = *maxNodes
	job := layoutjob.New(st, jobCfg)

	if *interval > 0 {
		logger.Info("Starting periodic layout", "layout", *layout, "interval", *interval)
		job.Start(ctx, *interval)
		return
	}

	started := time.Now()
	res, err := job.RunOnce(ctx)
	if err != nil {
		logger.Error("Layout failed", "error", err)
		closeObservability()
		st.Close()
		os.Exit(1)
	}
	logger.Info("Layout precalculated successfully",
		"nodes", res.Nodes, "ticks", res.Ticks, "converged", res.Converged,
		"elapsed", time.Since(started).Round(time.Millisecond))
}
