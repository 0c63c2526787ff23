package physics

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Stats describes the most recent tick.
type Stats struct {
	Tick          uint64  `json:"tick"`
	Nodes         int     `json:"nodes"`
	Edges         int     `json:"edges"`
	DanglingEdges int     `json:"dangling_edges"`
	DroppedBodies int     `json:"dropped_bodies"`
	Cells         int     `json:"cells"`
	Depth         int     `json:"depth"`
	KineticEnergy float64 `json:"kinetic_energy"`
}

// Engine owns a node set, an edge set and the tuning parameters, and advances
// the node set one step per Tick. It is not safe for concurrent use.
type Engine struct {
	nodes    []Node
	edges    []Edge
	index    map[string]int
	params   Params
	padding  float64
	maxDepth int

	forces []r3.Vec
	stats  Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithParams sets the initial tuning parameters.
func WithParams(p Params) Option {
	return func(e *Engine) { e.params = p }
}

// WithPadding sets the margin around the node bounds used for the octree root.
func WithPadding(margin float64) Option {
	return func(e *Engine) {
		if margin >= 0 {
			e.padding = margin
		}
	}
}

// WithMaxDepth bounds octree subdivision.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// NewEngine returns an engine with no nodes, no edges and DefaultParams.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		index:    map[string]int{},
		params:   DefaultParams(),
		padding:  DefaultPadding,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetNodes replaces the node set. On error the engine is unchanged.
func (e *Engine) SetNodes(nodes []Node) error {
	if err := ValidateNodes(nodes); err != nil {
		return err
	}
	e.nodes = append(make([]Node, 0, len(nodes)), nodes...)
	e.index = make(map[string]int, len(nodes))
	for i, n := range e.nodes {
		e.index[n.ID] = i
	}
	return nil
}

// SetEdges replaces the edge set. Edges may name ids that are not (yet) nodes.
func (e *Engine) SetEdges(edges []Edge) error {
	if err := ValidateEdges(edges); err != nil {
		return err
	}
	e.edges = append(make([]Edge, 0, len(edges)), edges...)
	return nil
}

// SetNodesJSON decodes a JSON array of nodes and replaces the node set.
func (e *Engine) SetNodesJSON(data []byte) error {
	nodes, err := DecodeNodesJSON(data)
	if err != nil {
		return err
	}
	return e.SetNodes(nodes)
}

// SetEdgesJSON decodes a JSON array of edges and replaces the edge set.
func (e *Engine) SetEdgesJSON(data []byte) error {
	edges, err := DecodeEdgesJSON(data)
	if err != nil {
		return err
	}
	return e.SetEdges(edges)
}

// DecodeNodesJSON parses the node wire shape, requiring every field.
func DecodeNodesJSON(data []byte) ([]Node, error) {
	var in []NodeInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, &ValidationError{Kind: "node", Index: -1, Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return NodesFromInput(in)
}

// DecodeEdgesJSON parses the edge wire shape, requiring every field.
func DecodeEdgesJSON(data []byte) ([]Edge, error) {
	var in []EdgeInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, &ValidationError{Kind: "edge", Index: -1, Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return EdgesFromInput(in)
}

// SetParams overwrites all four tuning scalars. Values are not validated.
func (e *Engine) SetParams(p Params) { e.params = p }

// Params returns the current tuning scalars.
func (e *Engine) Params() Params { return e.params }

// Padding returns the octree root margin.
func (e *Engine) Padding() float64 { return e.padding }

// Nodes returns a copy of the node set without advancing it.
func (e *Engine) Nodes() []Node { return append([]Node{}, e.nodes...) }

// Edges returns a copy of the edge set.
func (e *Engine) Edges() []Edge { return append([]Edge{}, e.edges...) }

// Len returns the number of nodes.
func (e *Engine) Len() int { return len(e.nodes) }

// Stats returns figures for the last tick.
func (e *Engine) Stats() Stats { return e.stats }

// Tick advances the simulation by dt and returns a copy of the updated nodes.
// Velocities are damped on every call, including dt = 0.
func (e *Engine) Tick(dt float64) []Node {
	e.stats.Tick++
	e.stats.Nodes = len(e.nodes)
	e.stats.Edges = len(e.edges)
	if len(e.nodes) == 0 {
		e.stats.DanglingEdges = len(e.edges)
		e.stats.DroppedBodies, e.stats.Cells, e.stats.Depth = 0, 0, 0
		e.stats.KineticEnergy = 0
		return []Node{}
	}

	tree := NewOctree(BoundsOf(e.nodes).Pad(e.padding).Cube(), len(e.nodes))
	tree.SetMaxDepth(e.maxDepth)
	dropped := 0
	for i, n := range e.nodes {
		if !tree.Insert(i, n.Position(), n.Mass) {
			dropped++
		}
	}

	if cap(e.forces) < len(e.nodes) {
		e.forces = make([]r3.Vec, len(e.nodes))
	}
	forces := e.forces[:len(e.nodes)]
	RepulsionForces(tree, e.nodes, e.params.Theta, e.params.Repulsion, forces)
	dangling := ApplySprings(e.nodes, e.edges, e.index, e.params.Attraction, forces)

	var kinetic float64
	for i := range e.nodes {
		n := &e.nodes[i]
		f := forces[i]
		n.VX = (n.VX + f.X*dt) * e.params.Damping
		n.VY = (n.VY + f.Y*dt) * e.params.Damping
		n.VZ = (n.VZ + f.Z*dt) * e.params.Damping
		n.X += n.VX * dt
		n.Y += n.VY * dt
		n.Z += n.VZ * dt
		kinetic += 0.5 * n.Mass * r3.Norm2(n.Velocity())
	}

	e.stats.DanglingEdges = dangling
	e.stats.DroppedBodies = dropped
	e.stats.Cells = tree.Cells()
	e.stats.Depth = tree.Depth()
	e.stats.KineticEnergy = kinetic
	return e.Nodes()
}

// KineticEnergy returns Σ ½·m·|v|² over the current node set.
func (e *Engine) KineticEnergy() float64 {
	var k float64
	for _, n := range e.nodes {
		k += 0.5 * n.Mass * r3.Norm2(n.Velocity())
	}
	return k
}
