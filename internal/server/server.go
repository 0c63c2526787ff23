// Package server assembles the session service: registry, playback, stream
// hub, caches, background jobs and the HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/graph-physics/internal/api"
	"github.com/onnwee/graph-physics/internal/api/handlers"
	"github.com/onnwee/graph-physics/internal/cache"
	"github.com/onnwee/graph-physics/internal/config"
	"github.com/onnwee/graph-physics/internal/layoutjob"
	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/metrics"
	"github.com/onnwee/graph-physics/internal/middleware"
	"github.com/onnwee/graph-physics/internal/simulation"
	"github.com/onnwee/graph-physics/internal/store"
)

const (
	shutdownTimeout   = 15 * time.Second
	collectorInterval = 15 * time.Second
)

type Server struct {
	cfg *config.Config

	Registry *simulation.Registry
	Player   *simulation.Player
	Hub      *handlers.Hub
	Cache    cache.Cache

	store   *store.Store // nil without DATABASE_URL
	layout  *layoutjob.Job
	limiter *middleware.RateLimiter
	httpSrv *http.Server
}

// New builds a server from cfg. st may be nil, in which case layout history
// and the periodic layout job are disabled.
func New(cfg *config.Config, st *store.Store) (*Server, error) {
	c, err := cache.NewLRU(int64(cfg.CacheMaxMB), int64(cfg.CacheMaxEntries), cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}

	reg := simulation.NewRegistry(simulation.RegistryConfig{
		MaxSessions:   cfg.SessionMax,
		MaxNodes:      cfg.SessionMaxNodes,
		EngineOptions: cfg.EngineOptions(),
	})
	s := &Server{
		cfg:      cfg,
		Registry: reg,
		Player:   simulation.NewPlayer(cfg.StreamMaxFPS),
		Hub:      handlers.NewHub(reg),
		Cache:    c,
		store:    st,
	}
	reg.OnRemove(func(id string) { s.Player.Pause(id) })
	reg.OnRemove(s.Hub.CloseSession)

	if cfg.EnableRateLimit {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst,
			cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
	}
	if st != nil {
		s.layout = layoutjob.New(st, layoutjob.ConfigFrom(cfg))
	}
	return s, nil
}

// Handler returns the HTTP handler. Playback started through it lives until
// playCtx is done.
func (s *Server) Handler(playCtx context.Context) http.Handler {
	deps := api.Deps{
		Config:      s.cfg,
		Registry:    s.Registry,
		Player:      s.Player,
		Hub:         s.Hub,
		Cache:       s.Cache,
		RateLimiter: s.limiter,
		PlayContext: playCtx,
	}
	if s.store != nil {
		deps.Runs = s.store
	}
	return api.NewRouter(deps)
}

// Run serves HTTP on the configured address and runs the background loops
// until ctx is done, then shuts everything down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logger.WithComponent("server")

	bg, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	spawn := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(bg)
		}()
	}

	spawn(s.Hub.Run)
	spawn(func(ctx context.Context) {
		s.Registry.RunSweeper(ctx, s.cfg.SweepInterval, s.cfg.SessionIdleTTL)
	})
	collector := metrics.NewCollector(s.Registry, collectorInterval)
	spawn(collector.Start)
	if s.limiter != nil {
		spawn(s.limiter.Run)
	}
	if s.layout != nil && s.cfg.LayoutInterval > 0 {
		spawn(func(ctx context.Context) { s.layout.Start(ctx, s.cfg.LayoutInterval) })
	}

	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(bg),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", s.cfg.ListenAddr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down server")
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}

	s.Player.StopAll()
	cancel()
	collector.Stop()
	wg.Wait()
	if lru, ok := s.Cache.(*cache.LRUCache); ok {
		lru.Close()
	}
	log.Info("Server stopped")
	return runErr
}
