package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Softening is added to every squared distance so close encounters stay finite.
const Softening = 1.0

// DefaultMaxDepth bounds subdivision. Bodies that still share a cell at this
// depth are kept together in one leaf.
const DefaultMaxDepth = 24

const noChildren int32 = -1

type body struct {
	ref  int
	pos  r3.Vec
	mass float64
}

type cell struct {
	vol    Volume
	com    r3.Vec
	mass   float64
	first  int32 // index of the first of 8 contiguous children, or noChildren
	bodies []body
}

func (c *cell) leaf() bool { return c.first == noChildren }

// accumulate folds one body into the running mass and center of mass.
func (c *cell) accumulate(b body) {
	if b.mass <= 0 {
		return
	}
	c.mass += b.mass
	c.com = r3.Add(c.com, r3.Scale(b.mass/c.mass, r3.Sub(b.pos, c.com)))
}

// Octree is a Barnes-Hut tree over a fixed root volume. Cells live in a
// single slice and refer to their children by index.
type Octree struct {
	cells    []cell
	maxDepth int
	bodies   int
	depth    int
}

// NewOctree returns an empty tree over bounds. capacity is a hint for the
// number of bodies that will be inserted.
func NewOctree(bounds Volume, capacity int) *Octree {
	t := &Octree{
		cells:    make([]cell, 1, 1+2*capacity),
		maxDepth: DefaultMaxDepth,
	}
	t.cells[0] = cell{vol: bounds, first: noChildren}
	return t
}

// SetMaxDepth overrides DefaultMaxDepth. It must be called before the first Insert.
func (t *Octree) SetMaxDepth(d int) {
	if d > 0 {
		t.maxDepth = d
	}
}

// Insert adds body ref at pos. It returns false and leaves the tree untouched
// when pos lies outside the root volume.
func (t *Octree) Insert(ref int, pos r3.Vec, mass float64) bool {
	if !t.cells[0].vol.Contains(pos) {
		return false
	}
	t.insert(0, body{ref: ref, pos: pos, mass: mass}, 0)
	t.bodies++
	return true
}

func (t *Octree) insert(idx int32, b body, depth int) {
	if depth > t.depth {
		t.depth = depth
	}
	t.cells[idx].accumulate(b)

	if !t.cells[idx].leaf() {
		c := &t.cells[idx]
		t.insert(c.first+int32(c.vol.Octant(b.pos)), b, depth+1)
		return
	}
	if len(t.cells[idx].bodies) == 0 || depth >= t.maxDepth {
		t.cells[idx].bodies = append(t.cells[idx].bodies, b)
		return
	}

	// Split: every resident goes down together with the newcomer.
	residents := append(t.cells[idx].bodies, b)
	t.cells[idx].bodies = nil
	first := int32(len(t.cells))
	for _, v := range t.cells[idx].vol.Subdivide() {
		t.cells = append(t.cells, cell{vol: v, first: noChildren})
	}
	t.cells[idx].first = first
	vol := t.cells[idx].vol
	for _, r := range residents {
		t.insert(first+int32(vol.Octant(r.pos)), r, depth+1)
	}
}

// QueryForce returns the approximate repulsive force on a body of the given
// mass at pos. theta = 0 visits every leaf and equals direct summation.
func (t *Octree) QueryForce(pos r3.Vec, mass, theta float64) r3.Vec {
	return t.force(0, pos, mass, theta)
}

func (t *Octree) force(idx int32, pos r3.Vec, mass, theta float64) r3.Vec {
	c := &t.cells[idx]
	if c.mass == 0 {
		return r3.Vec{}
	}
	if c.leaf() && len(c.bodies) > 1 {
		// a leaf at max depth holds several bodies; each one counts on its own
		var sum r3.Vec
		for _, b := range c.bodies {
			d := r3.Sub(pos, b.pos)
			sum = r3.Add(sum, pairForce(d, r3.Norm2(d), mass, math.Max(b.mass, 0)))
		}
		return sum
	}
	d := r3.Sub(pos, c.com)
	d2 := r3.Norm2(d)
	soft := d2 + Softening
	if c.leaf() || c.vol.Width()/math.Sqrt(soft) < theta {
		return pairForce(d, d2, mass, c.mass)
	}
	var sum r3.Vec
	for i := int32(0); i < 8; i++ {
		sum = r3.Add(sum, t.force(c.first+i, pos, mass, theta))
	}
	return sum
}

// pairForce is the softened inverse-square repulsion of a body of mass m
// from a (pseudo-)body of mass M displaced by -d. Coincident points repel with zero force.
func pairForce(d r3.Vec, d2, m, M float64) r3.Vec {
	if d2 == 0 {
		return r3.Vec{}
	}
	mag := m * M / (d2 + Softening)
	return r3.Scale(mag/math.Sqrt(d2), d)
}

// Aggregate is the total mass and center of mass of a cell.
type Aggregate struct {
	Mass   float64
	Center r3.Vec
}

// Root returns the aggregate over every inserted body.
func (t *Octree) Root() Aggregate {
	return Aggregate{Mass: t.cells[0].mass, Center: t.cells[0].com}
}

// Bounds returns the root volume.
func (t *Octree) Bounds() Volume { return t.cells[0].vol }

// Cells returns the number of allocated cells including the root.
func (t *Octree) Cells() int { return len(t.cells) }

// Bodies returns the number of accepted inserts.
func (t *Octree) Bodies() int { return t.bodies }

// Depth returns the deepest level any body reached; the root is level 0.
func (t *Octree) Depth() int { return t.depth }

// LeafRefs returns the body refs stored in leaves, in cell order. Every
// accepted body appears exactly once.
func (t *Octree) LeafRefs() []int {
	refs := make([]int, 0, t.bodies)
	for i := range t.cells {
		for _, b := range t.cells[i].bodies {
			refs = append(refs, b.ref)
		}
	}
	return refs
}
