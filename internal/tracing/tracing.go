package tracing

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Options selects the exporter. Zero values fall back to a local collector
// and a 10% sample rate.
type Options struct {
	ServiceName string
	Enabled     bool
	Endpoint    string // host:port, no scheme
	SampleRate  float64
}

var (
	mu     sync.RWMutex
	tracer trace.Tracer
)

// Init installs a global tracer provider exporting over OTLP/HTTP and returns
// its shutdown function. When tracing is disabled the shutdown is a no-op and
// spans go to the global no-op provider.
func Init(opts Options) (func(context.Context) error, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	ctx := context.Background()

	// WithEndpoint takes host:port; WithInsecure selects plain HTTP.
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			semconv.ServiceVersionKey.String(getVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	rate := opts.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 0.1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	Install(tp, opts.ServiceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// Install makes tp the global provider and the source of GetTracer. Tests use
// it with an in-memory recorder.
func Install(tp trace.TracerProvider, name string) {
	otel.SetTracerProvider(tp)
	mu.Lock()
	tracer = tp.Tracer(name)
	mu.Unlock()
}

func reset() {
	mu.Lock()
	tracer = nil
	mu.Unlock()
}

func getVersion() string {
	if v := os.Getenv("SERVICE_VERSION"); v != "" {
		return v
	}
	return "dev"
}

// GetTracer returns the installed tracer, or the global provider's tracer
// when Init has not enabled one.
func GetTracer() trace.Tracer {
	mu.RLock()
	t := tracer
	mu.RUnlock()
	if t == nil {
		return otel.Tracer("graph-physics")
	}
	return t
}

// StartSpan starts a new span with the given name
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, spanName, opts...)
}

// Attribute keys shared by tick and layout spans.
const (
	AttrSessionID = attribute.Key("physics.session_id")
	AttrTrigger   = attribute.Key("physics.trigger")
	AttrNodes     = attribute.Key("physics.nodes")
	AttrEdges     = attribute.Key("physics.edges")
	AttrTheta     = attribute.Key("physics.theta")
	AttrDT        = attribute.Key("physics.dt")
	AttrTick      = attribute.Key("physics.tick")
	AttrEnergy    = attribute.Key("physics.kinetic_energy")
	AttrLayout    = attribute.Key("layout.name")
)
