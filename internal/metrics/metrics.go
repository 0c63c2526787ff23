package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Physics tick metrics
	PhysicsTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "physics_ticks_total",
			Help: "Total number of engine ticks",
		},
		[]string{"trigger"}, // trigger: api, player, layout, cli
	)

	PhysicsTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "physics_tick_duration_seconds",
			Help:    "Duration of a single engine tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"trigger"},
	)

	PhysicsTickNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "physics_tick_nodes",
			Help:    "Number of nodes simulated per tick",
			Buckets: prometheus.ExponentialBuckets(10, 4, 7),
		},
	)

	PhysicsDanglingEdges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "physics_dangling_edges_total",
			Help: "Edges skipped during ticks because an endpoint was unknown",
		},
	)

	PhysicsDroppedBodies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "physics_dropped_bodies_total",
			Help: "Bodies left out of the octree because they fell outside the root volume",
		},
	)

	// Session gauges, refreshed by the Collector
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of live simulation sessions",
		},
	)

	SessionsPlaying = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_playing",
			Help: "Number of sessions ticking autonomously",
		},
	)

	SessionNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_nodes_total",
			Help: "Nodes held across all sessions",
		},
	)

	SessionEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_edges_total",
			Help: "Edges held across all sessions",
		},
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_removed_total",
			Help: "Total number of sessions removed",
		},
		[]string{"reason"}, // reason: deleted, idle
	)

	// Batch layout metrics
	LayoutRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "layout_run_duration_seconds",
			Help:    "Duration of batch layout runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	LayoutRunErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layout_run_errors_total",
			Help: "Total number of failed batch layout runs",
		},
		[]string{"stage"}, // stage: load, save, record
	)

	LayoutRunTicks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "layout_run_ticks",
			Help:    "Ticks executed per batch layout run",
			Buckets: []float64{10, 50, 100, 200, 400, 800, 1600},
		},
	)

	LayoutCoordsSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "layout_coords_saved_total",
			Help: "Total number of coordinates upserted into graph_coords",
		},
	)

	// Database operation metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	DBOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"component"},
	)

	// API cache metrics
	APICacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_hits_total",
			Help: "Total number of API cache hits",
		},
		[]string{"endpoint"},
	)

	APICacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_misses_total",
			Help: "Total number of API cache misses",
		},
		[]string{"endpoint"},
	)

	APICacheItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "api_cache_items",
			Help: "Current number of items in API cache",
		},
		[]string{"endpoint"},
	)

	APICacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"endpoint"},
	)

	// API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Metrics collection error tracking
	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"collector"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)

	WebSocketMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Messages dropped because a client's send buffer was full",
		},
	)
)
