package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/onnwee/graph-physics/internal/apierr"
	"github.com/onnwee/graph-physics/internal/cache"
	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/metrics"
	"github.com/onnwee/graph-physics/internal/physics"
	"github.com/onnwee/graph-physics/internal/store"
)

// TotalsSource reports live session totals.
type TotalsSource interface {
	SessionTotals(ctx context.Context) (metrics.SessionTotals, error)
}

// RunReader reads batch layout history.
type RunReader interface {
	LatestRun(ctx context.Context, layout string) (store.Run, error)
}

// StatusHandler reports server and layout state.
type StatusHandler struct {
	sessions TotalsSource
	cache    cache.Cache
	runs     RunReader // nil without a database
	started  time.Time
}

func NewStatusHandler(sessions TotalsSource, c cache.Cache, runs RunReader) *StatusHandler {
	return &StatusHandler{sessions: sessions, cache: c, runs: runs, started: time.Now()}
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Uptime   string                `json:"uptime"`
	Sessions metrics.SessionTotals `json:"sessions"`
	Cache    *cache.Stats          `json:"cache,omitempty"`
	Database bool                  `json:"database"`
}

// Status handles GET /api/status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	totals, err := h.sessions.SessionTotals(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to read session totals", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal(""))
		return
	}
	resp := StatusResponse{
		Uptime:   time.Since(h.started).Round(time.Second).String(),
		Sessions: totals,
		Database: h.runs != nil,
	}
	if h.cache != nil {
		stats := h.cache.Stats()
		resp.Cache = &stats
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// LayoutRunResponse describes one batch layout run.
type LayoutRunResponse struct {
	ID         int64          `json:"id"`
	Layout     string         `json:"layout"`
	Nodes      int            `json:"nodes"`
	Edges      int            `json:"edges"`
	Ticks      int            `json:"ticks"`
	Converged  bool           `json:"converged"`
	DurationMs int64          `json:"duration_ms"`
	Params     physics.Params `json:"params"`
	Energy     []float64      `json:"energy,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at"`
}

// LatestRun handles GET /api/layouts/{layout}/latest.
func (h *StatusHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Layout history requires a database"))
		return
	}
	layout := mux.Vars(r)["layout"]
	run, err := h.runs.LatestRun(r.Context(), layout)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apierr.WriteErrorWithContext(w, r, apierr.ResourceNotFound("layout run"))
			return
		}
		logger.ErrorContext(r.Context(), "failed to read layout run", "error", err, "layout", layout)
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal("Failed to retrieve layout run"))
		return
	}
	writeJSON(w, r, http.StatusOK, LayoutRunResponse{
		ID:         run.ID,
		Layout:     run.Layout,
		Nodes:      run.Nodes,
		Edges:      run.Edges,
		Ticks:      run.Ticks,
		Converged:  run.Converged,
		DurationMs: run.Duration.Milliseconds(),
		Params:     run.Params,
		Energy:     run.Energy,
		Error:      run.Error,
		StartedAt:  run.StartedAt.Format(time.RFC3339),
		FinishedAt: run.FinishedAt.Format(time.RFC3339),
	})
}
