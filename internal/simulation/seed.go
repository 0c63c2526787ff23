package simulation

import (
	"math"
	"math/rand"

	"github.com/onnwee/graph-physics/internal/physics"
)

// SeedPositions places every node sitting exactly at the origin at a
// uniformly random point inside a ball of the given radius. The same seed
// always yields the same placement. It returns the number of nodes moved.
func SeedPositions(nodes []physics.Node, radius float64, seed int64) int {
	if radius <= 0 {
		return 0
	}
	rng := rand.New(rand.NewSource(seed))
	moved := 0
	for i := range nodes {
		n := &nodes[i]
		if n.X != 0 || n.Y != 0 || n.Z != 0 {
			continue
		}
		// direction from a normalized gaussian, radius from the cube root
		// so points are uniform in volume
		var x, y, z, l float64
		for l == 0 {
			x, y, z = rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()
			l = math.Sqrt(x*x + y*y + z*z)
		}
		r := radius * math.Cbrt(rng.Float64())
		n.X, n.Y, n.Z = x/l*r, y/l*r, z/l*r
		moved++
	}
	return moved
}
