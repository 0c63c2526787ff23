// Package bootstrap wires the ambient services every command starts with.
package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/graph-physics/internal/config"
	"github.com/onnwee/graph-physics/internal/errorreporting"
	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/secrets"
	"github.com/onnwee/graph-physics/internal/store"
	"github.com/onnwee/graph-physics/internal/tracing"
)

// Env loads .env when present. Variables already set in the environment win.
func Env() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to read .env file", "error", err)
	}
}

// Observability initializes Sentry and tracing for service and returns a
// function that flushes both. Failures are logged and leave the service
// running without them.
func Observability(cfg *config.Config, service string) func() {
	var closers []func()

	err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		SampleRate:  cfg.SentrySampleRate,
	})
	if err != nil {
		logger.Warn("Failed to initialize error reporting", "dsn", secrets.MaskDSN(cfg.SentryDSN), "error", err)
	} else if errorreporting.IsSentryEnabled() {
		logger.Info("Error reporting initialized", "environment", cfg.SentryEnvironment, "dsn", secrets.MaskDSN(cfg.SentryDSN))
		closers = append(closers, func() {
			logger.Info("Flushing error reports...")
			errorreporting.Flush(2 * time.Second)
		})
	}

	shutdownTracing, err := tracing.Init(tracing.Options{
		ServiceName: service,
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		SampleRate:  cfg.OTELSampleRate,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing", "error", err)
	} else if cfg.OTELEnabled {
		logger.Info("Tracing initialized", "endpoint", cfg.OTELEndpoint, "sample_rate", cfg.OTELSampleRate)
		closers = append(closers, func() {
			logger.Info("Shutting down tracer...")
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer", "error", err)
			}
		})
	}

	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// OpenStore connects to the database and ensures the schema exists.
func OpenStore(ctx context.Context, dsn string) (*store.Store, error) {
	logger.Info("Connecting to database", "dsn", secrets.MaskDSN(dsn))
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	st, err := store.Open(openCtx, dsn)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
