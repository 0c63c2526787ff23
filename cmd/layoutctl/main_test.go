package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/onnwee/graph-physics/internal/graphio"
	"github.com/onnwee/graph-physics/internal/physics"
)

const sampleGraph = `
nodes:
  - {id: a, x: 0, y: 0, z: 0, vx: 0, vy: 0, vz: 0, mass: 1}
  - {id: b, x: 10, y: 0, z: 0, vx: 0, vy: 0, vz: 0, mass: 1}
  - {id: c, x: 0, y: 10, z: 0, vx: 0, vy: 0, vz: 0, mass: 2}
edges:
  - {source: a, target: b, weight: 1}
  - {source: b, target: c, weight: 0.5}
params: {repulsion: 500, attraction: 0.02, damping: 0.9, theta: 0.7}
`

func writeGraph(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunWritesLayout(t *testing.T) {
	path := writeGraph(t, sampleGraph)
	out := filepath.Join(t.TempDir(), "out.json")

	_, stderr, err := execute(t, "run", path, "--ticks", "20", "--epsilon", "0", "--theta", "0.3", "-o", out, "--plot")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr, "converged") || !strings.Contains(stderr, "kinetic energy per tick") {
		t.Errorf("report missing fields:\n%s", stderr)
	}

	g, err := graphio.Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 3 || len(g.Edges) != 2 {
		t.Fatalf("output has %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}
	if g.Params == nil || g.Params.Theta != 0.3 || g.Params.Repulsion != 500 {
		t.Errorf("params = %+v", g.Params)
	}
	if g.Nodes[1].X == 10 && g.Nodes[1].Y == 0 {
		t.Error("node b did not move")
	}
}

func TestRunToStdout(t *testing.T) {
	path := writeGraph(t, sampleGraph)
	stdout, _, err := execute(t, "run", path, "--ticks", "5")
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Nodes []physics.Node `json:"nodes"`
	}
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("stdout is not a graph document: %v\n%s", err, stdout)
	}
	if len(doc.Nodes) != 3 {
		t.Errorf("nodes = %d", len(doc.Nodes))
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"run", filepath.Join(t.TempDir(), "none.json")}},
		{"no args", []string{"run"}},
		{"bad ticks", []string{"run", writeGraph(t, sampleGraph), "--ticks", "0"}},
		{"invalid graph", []string{"run", writeGraph(t, "nodes:\n  - {id: a, x: 0, y: 0, z: 0, vx: 0, vy: 0, vz: 0, mass: -1}\n")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResolveParams(t *testing.T) {
	file := &physics.Params{Repulsion: 1, Attraction: 2, Damping: 0.5, Theta: 0.1}

	var pf paramFlags
	cmd := &cobra.Command{Use: "x"}
	pf.register(cmd)
	if err := cmd.ParseFlags([]string{"--theta", "0.9"}); err != nil {
		t.Fatal(err)
	}
	want := physics.Params{Repulsion: 1, Attraction: 2, Damping: 0.5, Theta: 0.9}
	if got := pf.resolve(cmd, file); got != want {
		t.Errorf("resolve = %+v, want %+v", got, want)
	}

	var defaults paramFlags
	cmd = &cobra.Command{Use: "x"}
	defaults.register(cmd)
	if got := defaults.resolve(cmd, nil); got != physics.DefaultParams() {
		t.Errorf("resolve without file = %+v, want defaults", got)
	}
}

func TestBench(t *testing.T) {
	rows, err := runBench(benchOptions{nodes: []int{50}, thetas: []float64{0, 0.8}, seed: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].MaxErr > 1e-9 {
		t.Errorf("theta 0 should be exact, max err = %v", rows[0].MaxErr)
	}
	if rows[1].MeanErr <= 0 || rows[1].MeanErr > 0.5 {
		t.Errorf("theta 0.8 mean err = %v", rows[1].MeanErr)
	}

	stdout, _, err := execute(t, "bench", "--nodes", "20", "--theta", "0.5")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "SPEEDUP") || !strings.Contains(stdout, "0.50") {
		t.Errorf("bench table:\n%s", stdout)
	}

	if _, err := runBench(benchOptions{nodes: []int{10}, thetas: []float64{-1}}); err == nil {
		t.Error("negative theta accepted")
	}
}
