package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MinSpringDistance floors spring length so coincident endpoints don't
// produce a zero-length direction.
const MinSpringDistance = 0.1

// RepulsionForces writes the octree repulsion on every node, scaled by
// strength, into out. out must be at least len(nodes) long; it is overwritten.
func RepulsionForces(tree *Octree, nodes []Node, theta, strength float64, out []r3.Vec) {
	for i, n := range nodes {
		out[i] = r3.Scale(strength, tree.QueryForce(n.Position(), n.Mass, theta))
	}
}

// SpringForce returns the attraction pulling source toward target.
func SpringForce(source, target Node, weight, attraction float64) r3.Vec {
	d := r3.Sub(target.Position(), source.Position())
	dist := math.Max(r3.Norm(d), MinSpringDistance)
	mag := attraction * dist * weight
	return r3.Scale(mag/dist, d)
}

// ApplySprings adds every edge's spring force to the source accumulator and
// subtracts it from the target. Edges with an unknown endpoint are skipped
// and counted in the return value.
func ApplySprings(nodes []Node, edges []Edge, index map[string]int, attraction float64, out []r3.Vec) (dangling int) {
	for _, e := range edges {
		si, ok := index[e.Source]
		if !ok {
			dangling++
			continue
		}
		ti, ok := index[e.Target]
		if !ok {
			dangling++
			continue
		}
		f := SpringForce(nodes[si], nodes[ti], e.Weight, attraction)
		out[si] = r3.Add(out[si], f)
		out[ti] = r3.Sub(out[ti], f)
	}
	return dangling
}

// DirectForces sums the repulsion law over every pair without approximation.
func DirectForces(nodes []Node, strength float64) []r3.Vec {
	out := make([]r3.Vec, len(nodes))
	for i, a := range nodes {
		var sum r3.Vec
		for j, b := range nodes {
			if i == j || b.Mass <= 0 {
				continue
			}
			d := r3.Sub(a.Position(), b.Position())
			sum = r3.Add(sum, pairForce(d, r3.Norm2(d), a.Mass, b.Mass))
		}
		out[i] = r3.Scale(strength, sum)
	}
	return out
}
