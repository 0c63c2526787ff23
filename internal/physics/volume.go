package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Volume is an axis-aligned box described by its min and max corners.
type Volume struct {
	Min, Max r3.Vec
}

// Contains reports whether p lies inside the volume. All six faces are inclusive.
func (v Volume) Contains(p r3.Vec) bool {
	return p.X >= v.Min.X && p.X <= v.Max.X &&
		p.Y >= v.Min.Y && p.Y <= v.Max.Y &&
		p.Z >= v.Min.Z && p.Z <= v.Max.Z
}

// Center returns the midpoint of the volume.
func (v Volume) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(v.Min, v.Max))
}

// Width returns the largest extent over the three axes.
func (v Volume) Width() float64 {
	return math.Max(v.Max.X-v.Min.X, math.Max(v.Max.Y-v.Min.Y, v.Max.Z-v.Min.Z))
}

// Pad grows the volume by margin on every side.
func (v Volume) Pad(margin float64) Volume {
	m := r3.Vec{X: margin, Y: margin, Z: margin}
	return Volume{Min: r3.Sub(v.Min, m), Max: r3.Add(v.Max, m)}
}

// Cube expands the shorter axes symmetrically so every extent equals Width.
func (v Volume) Cube() Volume {
	half := v.Width() / 2
	c := v.Center()
	h := r3.Vec{X: half, Y: half, Z: half}
	return Volume{Min: r3.Sub(c, h), Max: r3.Add(c, h)}
}

// Octant returns the child index that holds p after Subdivide.
// Bit 0 selects the upper X half, bit 1 upper Y, bit 2 upper Z. Points on a
// split plane belong to the lower half, which is the first child in index
// order whose inclusive volume contains them.
func (v Volume) Octant(p r3.Vec) int {
	mid := v.Center()
	oct := 0
	if p.X > mid.X {
		oct |= 1
	}
	if p.Y > mid.Y {
		oct |= 2
	}
	if p.Z > mid.Z {
		oct |= 4
	}
	return oct
}

// Subdivide splits the volume at the midpoint of each axis into 8 octants,
// indexed as described on Octant.
func (v Volume) Subdivide() [8]Volume {
	mid := v.Center()
	var out [8]Volume
	for i := range out {
		lo, hi := v.Min, mid
		if i&1 != 0 {
			lo.X, hi.X = mid.X, v.Max.X
		}
		if i&2 != 0 {
			lo.Y, hi.Y = mid.Y, v.Max.Y
		}
		if i&4 != 0 {
			lo.Z, hi.Z = mid.Z, v.Max.Z
		}
		out[i] = Volume{Min: lo, Max: hi}
	}
	return out
}

// BoundsOf returns the smallest volume containing every node position.
// An empty slice yields the zero Volume.
func BoundsOf(nodes []Node) Volume {
	if len(nodes) == 0 {
		return Volume{}
	}
	b := Volume{Min: nodes[0].Position(), Max: nodes[0].Position()}
	for _, n := range nodes[1:] {
		b.Min.X = math.Min(b.Min.X, n.X)
		b.Min.Y = math.Min(b.Min.Y, n.Y)
		b.Min.Z = math.Min(b.Min.Z, n.Z)
		b.Max.X = math.Max(b.Max.X, n.X)
		b.Max.Y = math.Max(b.Max.Y, n.Y)
		b.Max.Z = math.Max(b.Max.Z, n.Z)
	}
	return b
}
