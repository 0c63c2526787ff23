package config

import (
	"os"
	"strings"
	"time"

	"github.com/onnwee/graph-physics/internal/physics"
	"github.com/onnwee/graph-physics/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	ListenAddr string
	Env        string

	// Engine defaults for new sessions and batch layouts
	Physics         physics.Params
	PhysicsPadding  float64
	PhysicsMaxDepth int

	// Session hosting
	SessionMax      int           // maximum live sessions
	SessionMaxNodes int           // per-session node cap (0 = unlimited)
	SessionIdleTTL  time.Duration // idle sessions are swept after this long
	SweepInterval   time.Duration
	StreamMaxFPS    int // upper bound for autonomous ticking

	// Snapshot cache
	CacheMaxMB      int
	CacheMaxEntries int
	CacheTTL        time.Duration

	// Security settings
	RateLimitGlobal      float64  // requests per second globally
	RateLimitGlobalBurst int      // burst size for global rate limit
	RateLimitPerIP       float64  // requests per second per IP
	RateLimitPerIPBurst  int      // burst size for per-IP rate limit
	CORSAllowedOrigins   []string // allowed CORS origins
	EnableRateLimit      bool     // enable rate limiting middleware
	MaxRequestBodyBytes  int64

	// Batch layout
	DatabaseURL         string
	LayoutName          string  // value written to graph_coords.layout
	LayoutMaxNodes      int     // maximum nodes to include in layout computation
	LayoutTicks         int     // upper bound on ticks per run
	LayoutDT            float64 // fixed time step
	LayoutEnergyEpsilon float64 // stop once kinetic energy falls below this
	LayoutBatchSize     int     // rows per upsert transaction
	LayoutSeedRadius    float64 // ball radius for nodes without coordinates
	LayoutInterval      time.Duration
	DBStatementTimeout  time.Duration

	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
	SentryRelease     string  // Sentry release version
	SentrySampleRate  float64 // Sentry error sampling rate (0.0 to 1.0)
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		ListenAddr: utils.GetEnvAsString("LISTEN_ADDR", ":8000"),
		Env:        utils.GetEnvAsString("ENV", "development"),
		Physics: physics.Params{
			Repulsion:  utils.GetEnvAsFloat("PHYSICS_REPULSION", physics.DefaultRepulsion),
			Attraction: utils.GetEnvAsFloat("PHYSICS_ATTRACTION", physics.DefaultAttraction),
			Damping:    utils.GetEnvAsFloat("PHYSICS_DAMPING", physics.DefaultDamping),
			Theta:      utils.GetEnvAsFloat("PHYSICS_THETA", physics.DefaultTheta),
		},
		PhysicsPadding:  utils.GetEnvAsFloat("PHYSICS_PADDING", physics.DefaultPadding),
		PhysicsMaxDepth: utils.GetEnvAsInt("PHYSICS_MAX_DEPTH", physics.DefaultMaxDepth),

		SessionMax:      utils.GetEnvAsInt("SESSION_MAX", 64),
		SessionMaxNodes: utils.GetEnvAsInt("SESSION_MAX_NODES", 50000),
		SessionIdleTTL:  utils.GetEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),
		SweepInterval:   utils.GetEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		StreamMaxFPS:    utils.GetEnvAsInt("STREAM_MAX_FPS", 60),

		CacheMaxMB:      utils.GetEnvAsInt("CACHE_MAX_MB", 256),
		CacheMaxEntries: utils.GetEnvAsInt("CACHE_MAX_ENTRIES", 1000),
		CacheTTL:        utils.GetEnvAsMillis("CACHE_TTL_MS", 60*time.Second),

		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),
		CORSAllowedOrigins: utils.GetEnvAsSlice("CORS_ALLOWED_ORIGINS",
			[]string{"http://localhost:5173", "http://localhost:3000"}, ","),
		MaxRequestBodyBytes: int64(utils.GetEnvAsInt("MAX_REQUEST_BODY_MB", 10)) << 20,

		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LayoutName:          utils.GetEnvAsString("LAYOUT_NAME", "default"),
		LayoutMaxNodes:      utils.GetEnvAsInt("LAYOUT_MAX_NODES", 5000),
		LayoutTicks:         utils.GetEnvAsInt("LAYOUT_TICKS", 400),
		LayoutDT:            utils.GetEnvAsFloat("LAYOUT_DT", 0.016),
		LayoutEnergyEpsilon: utils.GetEnvAsFloat("LAYOUT_ENERGY_EPSILON", 0.01),
		LayoutBatchSize:     utils.GetEnvAsInt("LAYOUT_BATCH_SIZE", 5000),
		LayoutSeedRadius:    utils.GetEnvAsFloat("LAYOUT_SEED_RADIUS", 500),
		LayoutInterval:      utils.GetEnvAsDuration("LAYOUT_INTERVAL", 0),
		DBStatementTimeout:  utils.GetEnvAsMillis("DB_STATEMENT_TIMEOUT_MS", 25*time.Second),

		LogLevel:          strings.ToLower(utils.GetEnvAsString("LOG_LEVEL", "info")),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
		SentrySampleRate:  utils.GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
	}
	if cached.SentryEnvironment == "" {
		cached.SentryEnvironment = cached.Env
	}
	if cached.StreamMaxFPS <= 0 {
		cached.StreamMaxFPS = 60
	}
	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

// EngineOptions returns the engine options implied by the physics settings.
func (c *Config) EngineOptions() []physics.Option {
	return []physics.Option{
		physics.WithParams(c.Physics),
		physics.WithPadding(c.PhysicsPadding),
		physics.WithMaxDepth(c.PhysicsMaxDepth),
	}
}
