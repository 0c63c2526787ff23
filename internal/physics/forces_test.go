package physics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestSpringForce(t *testing.T) {
	tests := []struct {
		name   string
		src    Node
		dst    Node
		weight float64
		want   r3.Vec
	}{
		{
			name:   "along x",
			src:    Node{X: 0},
			dst:    Node{X: 10},
			weight: 2,
			want:   r3.Vec{X: 0.01 * 10 * 2},
		},
		{
			name:   "diagonal",
			src:    Node{X: 1, Y: 1, Z: 1},
			dst:    Node{X: 4, Y: 5, Z: 1},
			weight: 1,
			want:   r3.Vec{X: 0.01 * 3, Y: 0.01 * 4},
		},
		{
			name:   "coincident",
			src:    Node{X: 2},
			dst:    Node{X: 2},
			weight: 1,
			want:   r3.Vec{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SpringForce(tt.src, tt.dst, tt.weight, 0.01)
			if !closeVec(got, tt.want, 1e-12) {
				t.Errorf("SpringForce = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpringFloorKeepsTinyGapsFinite(t *testing.T) {
	f := SpringForce(Node{}, Node{X: 1e-9}, 1, 1)
	// the floor replaces the length but the direction still points at the target
	if math.IsNaN(f.X) || f.X <= 0 {
		t.Errorf("force = %v", f)
	}
	if math.Abs(f.X-1e-9) > 1e-15 {
		t.Errorf("force x = %g, want 1e-9", f.X)
	}
}

func TestApplySpringsNewtonThirdLaw(t *testing.T) {
	nodes := []Node{
		{ID: "a", X: 0, Y: 0, Z: 0},
		{ID: "b", X: 3, Y: -2, Z: 7},
		{ID: "c", X: -1, Y: 4, Z: 2},
	}
	index := map[string]int{"a": 0, "b": 1, "c": 2}
	edges := []Edge{
		{Source: "a", Target: "b", Weight: 1.5},
		{Source: "c", Target: "b", Weight: 0.2},
	}

	for _, e := range edges {
		out := make([]r3.Vec, len(nodes))
		ApplySprings(nodes, []Edge{e}, index, 0.05, out)
		s, tg := out[index[e.Source]], out[index[e.Target]]
		if !closeVec(s, r3.Scale(-1, tg), 1e-12) {
			t.Errorf("edge %s->%s: source %v, target %v", e.Source, e.Target, s, tg)
		}
	}

	out := make([]r3.Vec, len(nodes))
	ApplySprings(nodes, edges, index, 0.05, out)
	var sum r3.Vec
	for _, f := range out {
		sum = r3.Add(sum, f)
	}
	if r3.Norm(sum) > 1e-12 {
		t.Errorf("net spring force = %v, want zero", sum)
	}
}

func TestApplySpringsDangling(t *testing.T) {
	nodes := []Node{{ID: "a"}, {ID: "b", X: 1}}
	index := map[string]int{"a": 0, "b": 1}
	out := []r3.Vec{{X: 1, Y: 2, Z: 3}, {X: -4}}
	before := append([]r3.Vec{}, out...)

	n := ApplySprings(nodes, []Edge{
		{Source: "a", Target: "missing", Weight: 1},
		{Source: "missing", Target: "b", Weight: 1},
		{Source: "x", Target: "y", Weight: 1},
	}, index, 1, out)

	if n != 3 {
		t.Errorf("dangling = %d, want 3", n)
	}
	for i := range out {
		if out[i] != before[i] {
			t.Errorf("accumulator %d changed: %v -> %v", i, before[i], out[i])
		}
	}
}

func TestDirectForcesSkipsMassless(t *testing.T) {
	nodes := []Node{
		{ID: "a", Mass: 1},
		{ID: "b", X: 1, Mass: 0},
	}
	f := DirectForces(nodes, 1000)
	if f[0] != (r3.Vec{}) {
		t.Errorf("force from massless body = %v", f[0])
	}
	if f[1] != (r3.Vec{}) {
		t.Errorf("force on massless body = %v", f[1])
	}
}
