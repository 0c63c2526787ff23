package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/graph-physics/internal/physics"
)

func TestMassForValue(t *testing.T) {
	tests := []struct {
		val  sql.NullInt32
		want float64
	}{
		{sql.NullInt32{}, 1},
		{sql.NullInt32{Int32: -4, Valid: true}, 1},
		{sql.NullInt32{Int32: 0, Valid: true}, 1},
		{sql.NullInt32{Int32: 1, Valid: true}, 1 + math.Log(2)},
		{sql.NullInt32{Int32: 99, Valid: true}, 1 + math.Log(100)},
	}
	for _, tt := range tests {
		if got := MassForValue(tt.val); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("MassForValue(%+v) = %v, want %v", tt.val, got, tt.want)
		}
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	prefix := uuid.NewString()[:8] + "-"
	layout := "test-" + prefix
	nodes := []physics.Node{
		{ID: prefix + "a", Mass: 1},
		{ID: prefix + "b", Mass: 1},
		{ID: prefix + "c", Mass: 1},
	}
	edges := []physics.Edge{
		{Source: prefix + "a", Target: prefix + "b", Weight: 2},
		{Source: prefix + "b", Target: prefix + "c", Weight: 1},
		{Source: prefix + "a", Target: "missing-node", Weight: 1},
	}
	t.Cleanup(func() {
		_, _ = s.DB().Exec(`DELETE FROM graph_nodes WHERE id LIKE $1`, prefix+"%")
		_, _ = s.DB().Exec(`DELETE FROM layout_runs WHERE layout = $1`, layout)
	})

	if err := s.UpsertNodes(ctx, nodes, 2); err != nil {
		t.Fatalf("UpsertNodes: %v", err)
	}
	if err := s.UpsertLinks(ctx, edges, 2); err != nil {
		t.Fatalf("UpsertLinks: %v", err)
	}

	placed := []physics.Node{{ID: prefix + "a", X: 1, Y: 2, Z: 3}}
	if err := s.SaveCoords(ctx, layout, placed, 0.5, 1); err != nil {
		t.Fatalf("SaveCoords: %v", err)
	}
	placed[0].X = 7
	if err := s.SaveCoords(ctx, layout, placed, 1.0, 1); err != nil {
		t.Fatalf("SaveCoords upsert: %v", err)
	}

	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM graph_coords WHERE layout = $1`, layout).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("graph_coords rows = %d, want 1", count)
	}

	got, gotEdges, err := s.LoadGraph(ctx, layout, 0)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	byID := map[string]physics.Node{}
	for _, n := range got {
		byID[n.ID] = n
	}
	if a := byID[prefix+"a"]; a.X != 7 || a.Y != 2 || a.Z != 3 || a.Mass != 1 {
		t.Errorf("node a = %+v", a)
	}
	if b := byID[prefix+"b"]; b.X != 0 || b.Y != 0 || b.Z != 0 {
		t.Errorf("node b = %+v", b)
	}
	var mine []physics.Edge
	for _, e := range gotEdges {
		if strings.HasPrefix(e.Source, prefix) {
			mine = append(mine, e)
		}
	}
	if len(mine) != 2 {
		t.Fatalf("edges = %+v", mine)
	}
	if mine[0].Weight != 2 {
		t.Errorf("edge weight = %v", mine[0].Weight)
	}
}

func TestRecordRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	layout := "test-run-" + uuid.NewString()[:8]
	t.Cleanup(func() { _, _ = s.DB().Exec(`DELETE FROM layout_runs WHERE layout = $1`, layout) })

	if _, err := s.LatestRun(ctx, layout); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("LatestRun on empty layout: %v", err)
	}

	run := Run{
		Layout:    layout,
		Nodes:     10,
		Edges:     4,
		Ticks:     120,
		Converged: true,
		Duration:  1500 * time.Millisecond,
		Params:    physics.DefaultParams(),
		Energy:    []float64{3, 1, 0.005},
		StartedAt: time.Now().Add(-2 * time.Second).UTC().Truncate(time.Millisecond),
	}
	id, err := s.RecordRun(ctx, run)
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	got, err := s.LatestRun(ctx, layout)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if got.ID != id || got.Ticks != 120 || !got.Converged || got.Duration != run.Duration {
		t.Errorf("run = %+v", got)
	}
	if got.Params != run.Params || len(got.Energy) != 3 || got.Energy[2] != 0.005 {
		t.Errorf("json columns = %+v %v", got.Params, got.Energy)
	}
}
