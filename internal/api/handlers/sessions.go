package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/onnwee/graph-physics/internal/apierr"
	"github.com/onnwee/graph-physics/internal/cache"
	"github.com/onnwee/graph-physics/internal/errorreporting"
	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/physics"
	"github.com/onnwee/graph-physics/internal/simulation"
)

const nodesEndpoint = "session_nodes"

// SessionHandler serves the session API.
type SessionHandler struct {
	registry    *simulation.Registry
	player      *simulation.Player
	cache       cache.Cache
	cacheTTL    time.Duration
	maxSessions int
	maxNodes    int
	// playCtx outlives requests; playback started by a request must not stop
	// when that request returns.
	playCtx context.Context
}

// SessionHandlerConfig carries the dependencies of a SessionHandler.
type SessionHandlerConfig struct {
	Registry    *simulation.Registry
	Player      *simulation.Player
	Cache       cache.Cache
	CacheTTL    time.Duration
	MaxSessions int
	MaxNodes    int
	PlayContext context.Context
}

func NewSessionHandler(cfg SessionHandlerConfig) *SessionHandler {
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMapCache()
	}
	if cfg.PlayContext == nil {
		cfg.PlayContext = context.Background()
	}
	return &SessionHandler{
		registry:    cfg.Registry,
		player:      cfg.Player,
		cache:       cfg.Cache,
		cacheTTL:    cfg.CacheTTL,
		maxSessions: cfg.MaxSessions,
		maxNodes:    cfg.MaxNodes,
		playCtx:     cfg.PlayContext,
	}
}

// ParamsInput is a partial Params update. Omitted fields keep their value.
type ParamsInput struct {
	Repulsion  *float64 `json:"repulsion"`
	Attraction *float64 `json:"attraction"`
	Damping    *float64 `json:"damping"`
	Theta      *float64 `json:"theta"`
}

// Apply merges the provided fields onto p and validates the result.
func (in ParamsInput) Apply(p physics.Params) (physics.Params, *apierr.Error) {
	fields := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"repulsion", in.Repulsion, &p.Repulsion},
		{"attraction", in.Attraction, &p.Attraction},
		{"damping", in.Damping, &p.Damping},
		{"theta", in.Theta, &p.Theta},
	}
	for _, f := range fields {
		if f.src == nil {
			continue
		}
		if math.IsNaN(*f.src) || math.IsInf(*f.src, 0) {
			return p, apierr.PhysicsInvalidParams(f.name, f.name+" must be finite")
		}
		*f.dst = *f.src
	}
	return p, nil
}

// CreateSessionResponse is the body of POST /api/sessions.
type CreateSessionResponse struct {
	ID     string         `json:"id"`
	Params physics.Params `json:"params"`
}

// TickRequest is the body of POST /api/sessions/{id}/tick.
type TickRequest struct {
	DT *float64 `json:"dt"`
}

// PlayRequest is the body of POST /api/sessions/{id}/play.
type PlayRequest struct {
	FPS *int     `json:"fps"`
	DT  *float64 `json:"dt"`
}

// NodesResponse carries a node set and the state it belongs to.
type NodesResponse struct {
	SessionID string         `json:"session_id"`
	Version   uint64         `json:"version"`
	Tick      uint64         `json:"tick"`
	Nodes     []physics.Node `json:"nodes"`
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*simulation.Session, bool) {
	id := mux.Vars(r)["id"]
	s, err := h.registry.Get(id)
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.SessionNotFound(id))
		return nil, false
	}
	return s, true
}

// Create handles POST /api/sessions. The body is optional; any params it
// carries override the server defaults.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in ParamsInput
	if apiErr := decodeBody(r, &in, true); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}

	var override *physics.Params
	if in != (ParamsInput{}) {
		p, apiErr := in.Apply(physics.DefaultParams())
		if apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}
		override = &p
	}

	s, err := h.registry.Create(override)
	if err != nil {
		if errors.Is(err, simulation.ErrTooManySessions) {
			apierr.WriteErrorWithContext(w, r, apierr.SessionLimit(h.maxSessions))
			return
		}
		logger.ErrorContext(r.Context(), "failed to create session", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal(""))
		return
	}
	w.Header().Set("Location", "/api/sessions/"+s.ID())
	writeJSON(w, r, http.StatusCreated, CreateSessionResponse{ID: s.ID(), Params: s.Params()})
}

// List handles GET /api/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"sessions": h.registry.List()})
}

// Get handles GET /api/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, s.Snapshot())
}

// Delete handles DELETE /api/sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.player.Pause(id)
	if err := h.registry.Delete(id); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.SessionNotFound(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetNodes handles PUT /api/sessions/{id}/nodes.
func (h *SessionHandler) SetNodes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	body, apiErr := readBody(r)
	if apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	nodes, err := physics.DecodeNodesJSON(body)
	if err == nil {
		err = s.SetNodes(nodes)
	}
	if err != nil {
		h.writeMutationError(w, r, err, len(nodes))
		return
	}
	writeJSON(w, r, http.StatusOK, s.Snapshot())
}

// SetEdges handles PUT /api/sessions/{id}/edges.
func (h *SessionHandler) SetEdges(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	body, apiErr := readBody(r)
	if apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	edges, err := physics.DecodeEdgesJSON(body)
	if err == nil {
		err = s.SetEdges(edges)
	}
	if err != nil {
		h.writeMutationError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, s.Snapshot())
}

func (h *SessionHandler) writeMutationError(w http.ResponseWriter, r *http.Request, err error, n int) {
	switch {
	case errors.Is(err, physics.ErrInvalidInput):
		apierr.WriteErrorWithContext(w, r, apierr.PhysicsInvalid(err))
	case errors.Is(err, simulation.ErrTooManyNodes):
		apierr.WriteErrorWithContext(w, r, apierr.SessionTooLarge(n, h.maxNodes))
	default:
		logger.ErrorContext(r.Context(), "session update failed", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal(""))
	}
}

// SetParams handles PUT /api/sessions/{id}/params. Omitted fields keep their
// current value.
func (h *SessionHandler) SetParams(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in ParamsInput
	if apiErr := decodeBody(r, &in, false); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	p, apiErr := in.Apply(s.Params())
	if apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	s.SetParams(p)
	writeJSON(w, r, http.StatusOK, p)
}

// Tick handles POST /api/sessions/{id}/tick and returns the updated nodes.
func (h *SessionHandler) Tick(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req TickRequest
	if apiErr := decodeBody(r, &req, false); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	if req.DT == nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("dt"))
		return
	}
	if err := simulation.ValidateTimeStep(*req.DT); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("dt", err.Error()))
		return
	}

	nodes, err := s.Tick(r.Context(), *req.DT, simulation.TriggerAPI)
	if err != nil {
		if r.Context().Err() != nil {
			apierr.WriteErrorWithContext(w, r, apierr.SystemTimeout(""))
			return
		}
		logger.ErrorContext(r.Context(), "tick failed", "error", err)
		errorreporting.CaptureSessionError(err, s.ID(), "tick")
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal(""))
		return
	}
	stats := s.Stats()
	writeJSON(w, r, http.StatusOK, map[string]any{
		"session_id": s.ID(),
		"tick":       stats.Tick,
		"stats":      stats,
		"nodes":      nodes,
	})
}

// Nodes handles GET /api/sessions/{id}/nodes. The encoded snapshot is cached
// per session version and carries a matching ETag.
func (h *SessionHandler) Nodes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	nodes, version, tick := s.State()
	etag := fmt.Sprintf(`"%s-%d"`, s.ID(), version)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	key := cache.SnapshotKey(s.ID(), version, "json")
	data, hit, err := cache.Fetch(h.cache, nodesEndpoint, key, h.cacheTTL, func() ([]byte, error) {
		return json.Marshal(NodesResponse{SessionID: s.ID(), Version: version, Tick: tick, Nodes: nodes})
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to encode nodes", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal(""))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.Header().Set("X-Session-Version", strconv.FormatUint(version, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Play handles POST /api/sessions/{id}/play.
func (h *SessionHandler) Play(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req PlayRequest
	if apiErr := decodeBody(r, &req, false); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	if req.FPS == nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("fps"))
		return
	}
	if req.DT == nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("dt"))
		return
	}

	if err := h.player.Play(h.playCtx, s, *req.FPS, *req.DT); err != nil {
		if errors.Is(err, simulation.ErrSessionNotFound) {
			apierr.WriteErrorWithContext(w, r, apierr.SessionNotFound(s.ID()))
			return
		}
		field := "dt"
		if errors.Is(err, simulation.ErrInvalidFrameRate) {
			field = "fps"
		}
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue(field, err.Error()))
		return
	}
	state, _ := h.player.Playing(s.ID())
	writeJSON(w, r, http.StatusOK, map[string]any{"playing": true, "fps": state.FPS, "dt": state.DT})
}

// Pause handles POST /api/sessions/{id}/pause.
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	was := h.player.Pause(s.ID())
	writeJSON(w, r, http.StatusOK, map[string]any{"playing": false, "was_playing": was})
}
