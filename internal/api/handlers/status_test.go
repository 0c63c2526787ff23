package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/onnwee/graph-physics/internal/apierr"
	"github.com/onnwee/graph-physics/internal/cache"
	"github.com/onnwee/graph-physics/internal/physics"
	"github.com/onnwee/graph-physics/internal/simulation"
	"github.com/onnwee/graph-physics/internal/store"
)

type fakeRuns struct {
	run store.Run
	err error
}

func (f fakeRuns) LatestRun(_ context.Context, layout string) (store.Run, error) {
	if f.err != nil {
		return store.Run{}, f.err
	}
	r := f.run
	r.Layout = layout
	return r, nil
}

func TestStatus(t *testing.T) {
	reg := simulation.NewRegistry(simulation.RegistryConfig{})
	s, _ := reg.Create(nil)
	s.SetNodes([]physics.Node{{ID: "a", Mass: 1}, {ID: "b", X: 1, Mass: 1}})

	h := NewStatusHandler(reg, cache.NewMapCache(), nil)
	rr := httptest.NewRecorder()
	h.Status(rr, httptest.NewRequest("GET", "/api/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Sessions.Sessions != 1 || out.Sessions.Nodes != 2 || out.Database || out.Cache == nil {
		t.Errorf("status = %+v", out)
	}
}

func TestLatestRun(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name   string
		runs   RunReader
		status int
		code   apierr.ErrorCode
	}{
		{"found", fakeRuns{run: store.Run{ID: 7, Nodes: 10, Ticks: 40, Converged: true,
			Duration: 1500 * time.Millisecond, Params: physics.DefaultParams(),
			StartedAt: started, FinishedAt: started.Add(2 * time.Second)}}, http.StatusOK, ""},
		{"none yet", fakeRuns{err: sql.ErrNoRows}, http.StatusNotFound, apierr.ErrResourceNotFound},
		{"db error", fakeRuns{err: errors.New("conn reset")}, http.StatusInternalServerError, apierr.ErrSystemInternal},
		{"no database", nil, http.StatusServiceUnavailable, apierr.ErrSystemUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStatusHandler(simulation.NewRegistry(simulation.RegistryConfig{}), nil, tt.runs)
			r := mux.NewRouter()
			r.HandleFunc("/api/layouts/{layout}/latest", h.LatestRun)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest("GET", "/api/layouts/main/latest", nil))
			if rr.Code != tt.status {
				t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
			}
			if tt.code != "" {
				if e := decodeAPIError(t, rr); e.Code != tt.code {
					t.Errorf("code = %s", e.Code)
				}
				return
			}
			var out LayoutRunResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
				t.Fatal(err)
			}
			if out.ID != 7 || out.Layout != "main" || out.DurationMs != 1500 || out.StartedAt != "2026-01-02T03:04:05Z" {
				t.Errorf("run = %+v", out)
			}
		})
	}
}
