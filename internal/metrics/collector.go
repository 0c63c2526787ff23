package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/graph-physics/internal/logger"
)

// SessionTotals is a point-in-time summary of hosted sessions.
type SessionTotals struct {
	Sessions int `json:"sessions"`
	Playing  int `json:"playing"`
	Nodes    int `json:"nodes"`
	Edges    int `json:"edges"`
}

// SessionSource is implemented by the session registry.
type SessionSource interface {
	SessionTotals(ctx context.Context) (SessionTotals, error)
}

// Collector periodically samples a SessionSource into Prometheus gauges.
type Collector struct {
	source   SessionSource
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(source SessionSource, interval time.Duration) *Collector {
	return &Collector{
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called or ctx is done.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the metrics collector. It is safe to call more than once.
func (c *Collector) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Collect samples the source once.
func (c *Collector) Collect(ctx context.Context) {
	totals, err := c.source.SessionTotals(ctx)
	if err != nil {
		logger.WithComponent("metrics").Warn("session metrics collection failed", "error", err)
		MetricsCollectionErrors.WithLabelValues("sessions").Inc()
		// -1 marks the gauges as stale
		SessionsActive.Set(-1)
		SessionsPlaying.Set(-1)
		SessionNodes.Set(-1)
		SessionEdges.Set(-1)
		return
	}
	SessionsActive.Set(float64(totals.Sessions))
	SessionsPlaying.Set(float64(totals.Playing))
	SessionNodes.Set(float64(totals.Nodes))
	SessionEdges.Set(float64(totals.Edges))
}
