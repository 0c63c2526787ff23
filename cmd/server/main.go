package main

import (
	"os"

	"github.com/onnwee/graph-physics/internal/bootstrap"
	"github.com/onnwee/graph-physics/internal/config"
	"github.com/onnwee/graph-physics/internal/errorreporting"
	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/server"
	"github.com/onnwee/graph-physics/internal/store"
)

func main() {
	bootstrap.Env()
	cfg := config.Load()

	logger.Init(cfg.LogLevel)
	logger.Info("Initializing graph physics server", "version", cfg.SentryRelease, "log_level", cfg.LogLevel)

	closeObservability := bootstrap.Observability(cfg, "graph-physics-server")
	defer closeObservability()

	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	var st *store.Store
	if cfg.DatabaseURL != "" {
		s, err := bootstrap.OpenStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		defer s.Close()
		st = s
	} else {
		logger.Info("DATABASE_URL not set; layout history disabled")
	}

	srv, err := server.New(cfg, st)
	if err != nil {
		logger.Error("Failed to build server", "error", err)
		os.Exit(1)
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error("Server exited", "error", err)
		errorreporting.CaptureError(err)
		closeObservability()
		os.Exit(1)
	}
}
