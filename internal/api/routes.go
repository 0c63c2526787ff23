package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/graph-physics/internal/api/handlers"
	"github.com/onnwee/graph-physics/internal/cache"
	"github.com/onnwee/graph-physics/internal/config"
	"github.com/onnwee/graph-physics/internal/middleware"
	"github.com/onnwee/graph-physics/internal/simulation"
)

// Deps carries the services the router dispatches to.
type Deps struct {
	Config   *config.Config
	Registry *simulation.Registry
	Player   *simulation.Player
	Hub      *handlers.Hub
	Cache    cache.Cache

	// Runs serves layout history; nil when no database is configured.
	Runs handlers.RunReader

	// RateLimiter is applied when non-nil.
	RateLimiter *middleware.RateLimiter

	// PlayContext bounds autonomous playback started over the API.
	PlayContext context.Context
}

func NewRouter(d Deps) *mux.Router {
	cfg := d.Config
	if cfg == nil {
		cfg = config.Load()
	}

	r := mux.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RecoverWithSentry,
		middleware.SecurityHeaders,
		middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins)),
	)
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Limit)
	}
	r.Use(middleware.BodyLimit(cfg.MaxRequestBodyBytes), middleware.Metrics)

	// Preflight requests match no method-bound route. A MatcherFunc keeps
	// unknown paths at 404 instead of 405.
	r.MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
		return r.Method == http.MethodOptions
	}).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/health", handlers.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Registered ahead of the /api subrouter, which compresses responses.
	r.Handle("/api/sessions/{id}/stream", handlers.NewStreamHandler(d.Hub, d.Registry)).Methods("GET")

	sessions := handlers.NewSessionHandler(handlers.SessionHandlerConfig{
		Registry:    d.Registry,
		Player:      d.Player,
		Cache:       d.Cache,
		CacheTTL:    cfg.CacheTTL,
		MaxSessions: cfg.SessionMax,
		MaxNodes:    cfg.SessionMaxNodes,
		PlayContext: d.PlayContext,
	})
	status := handlers.NewStatusHandler(d.Registry, d.Cache, d.Runs)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.RequireJSON, middleware.Compress)

	api.Handle("/status", middleware.ETag(http.HandlerFunc(status.Status))).Methods("GET")
	api.HandleFunc("/layouts/{layout}/latest", status.LatestRun).Methods("GET")

	api.HandleFunc("/sessions", sessions.Create).Methods("POST")
	api.Handle("/sessions", middleware.ETag(http.HandlerFunc(sessions.List))).Methods("GET")
	api.Handle("/sessions/{id}", middleware.ETag(http.HandlerFunc(sessions.Get))).Methods("GET")
	api.HandleFunc("/sessions/{id}", sessions.Delete).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/nodes", sessions.SetNodes).Methods("PUT")
	api.HandleFunc("/sessions/{id}/nodes", sessions.Nodes).Methods("GET")
	api.HandleFunc("/sessions/{id}/edges", sessions.SetEdges).Methods("PUT")
	api.HandleFunc("/sessions/{id}/params", sessions.SetParams).Methods("PUT")
	api.HandleFunc("/sessions/{id}/tick", sessions.Tick).Methods("POST")
	api.HandleFunc("/sessions/{id}/play", sessions.Play).Methods("POST")
	api.HandleFunc("/sessions/{id}/pause", sessions.Pause).Methods("POST")

	return r
}
