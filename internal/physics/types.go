package physics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Node is a simulated body. Field names match the wire shape
// {id, x, y, z, vx, vy, vz, mass}.
type Node struct {
	ID   string  `json:"id" yaml:"id"`
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Z    float64 `json:"z" yaml:"z"`
	VX   float64 `json:"vx" yaml:"vx"`
	VY   float64 `json:"vy" yaml:"vy"`
	VZ   float64 `json:"vz" yaml:"vz"`
	Mass float64 `json:"mass" yaml:"mass"`
}

// Position returns the node position as a vector.
func (n Node) Position() r3.Vec { return r3.Vec{X: n.X, Y: n.Y, Z: n.Z} }

// Velocity returns the node velocity as a vector.
func (n Node) Velocity() r3.Vec { return r3.Vec{X: n.VX, Y: n.VY, Z: n.VZ} }

// Edge is a weighted spring between two node ids.
type Edge struct {
	Source string  `json:"source" yaml:"source"`
	Target string  `json:"target" yaml:"target"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Params are the four tuning scalars of an Engine.
type Params struct {
	Repulsion  float64 `json:"repulsion" yaml:"repulsion"`
	Attraction float64 `json:"attraction" yaml:"attraction"`
	Damping    float64 `json:"damping" yaml:"damping"`
	Theta      float64 `json:"theta" yaml:"theta"`
}

const (
	DefaultRepulsion  = 1000.0
	DefaultAttraction = 0.01
	DefaultDamping    = 0.8
	DefaultTheta      = 0.5
	// DefaultPadding is the margin added around the node bounding box before the
	// octree is built. It must exceed the largest expected per-tick displacement.
	DefaultPadding = 100.0
)

// DefaultParams returns the stock tuning values.
func DefaultParams() Params {
	return Params{
		Repulsion:  DefaultRepulsion,
		Attraction: DefaultAttraction,
		Damping:    DefaultDamping,
		Theta:      DefaultTheta,
	}
}

// ErrInvalidInput is matched by every ValidationError via errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError reports why a node or edge set was rejected.
type ValidationError struct {
	Kind   string // "node" or "edge"
	Index  int    // position in the input, -1 when the whole payload is malformed
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid %s payload: %s", e.Kind, e.Reason)
	}
	if e.Field == "" {
		return fmt.Sprintf("invalid %s at index %d: %s", e.Kind, e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid %s at index %d: field %q %s", e.Kind, e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NodeInput mirrors Node with pointer fields so decoders can tell a missing
// field from a zero value.
type NodeInput struct {
	ID   *string  `json:"id" yaml:"id"`
	X    *float64 `json:"x" yaml:"x"`
	Y    *float64 `json:"y" yaml:"y"`
	Z    *float64 `json:"z" yaml:"z"`
	VX   *float64 `json:"vx" yaml:"vx"`
	VY   *float64 `json:"vy" yaml:"vy"`
	VZ   *float64 `json:"vz" yaml:"vz"`
	Mass *float64 `json:"mass" yaml:"mass"`
}

// EdgeInput mirrors Edge with pointer fields.
type EdgeInput struct {
	Source *string  `json:"source" yaml:"source"`
	Target *string  `json:"target" yaml:"target"`
	Weight *float64 `json:"weight" yaml:"weight"`
}

// nodeFields names the numeric node fields in wire order.
var nodeFields = [...]string{"x", "y", "z", "vx", "vy", "vz", "mass"}

// NodesFromInput converts decoded records into nodes, rejecting any record
// with a missing field.
func NodesFromInput(in []NodeInput) ([]Node, error) {
	out := make([]Node, len(in))
	for i, r := range in {
		fields := []struct {
			name string
			src  *float64
			dst  *float64
		}{
			{"x", r.X, &out[i].X},
			{"y", r.Y, &out[i].Y},
			{"z", r.Z, &out[i].Z},
			{"vx", r.VX, &out[i].VX},
			{"vy", r.VY, &out[i].VY},
			{"vz", r.VZ, &out[i].VZ},
			{"mass", r.Mass, &out[i].Mass},
		}
		if r.ID == nil {
			return nil, &ValidationError{Kind: "node", Index: i, Field: "id", Reason: "is missing"}
		}
		out[i].ID = *r.ID
		for _, f := range fields {
			if f.src == nil {
				return nil, &ValidationError{Kind: "node", Index: i, Field: f.name, Reason: "is missing"}
			}
			*f.dst = *f.src
		}
	}
	return out, nil
}

// EdgesFromInput converts decoded records into edges, rejecting any record
// with a missing field.
func EdgesFromInput(in []EdgeInput) ([]Edge, error) {
	out := make([]Edge, len(in))
	for i, r := range in {
		switch {
		case r.Source == nil:
			return nil, &ValidationError{Kind: "edge", Index: i, Field: "source", Reason: "is missing"}
		case r.Target == nil:
			return nil, &ValidationError{Kind: "edge", Index: i, Field: "target", Reason: "is missing"}
		case r.Weight == nil:
			return nil, &ValidationError{Kind: "edge", Index: i, Field: "weight", Reason: "is missing"}
		}
		out[i] = Edge{Source: *r.Source, Target: *r.Target, Weight: *r.Weight}
	}
	return out, nil
}

// ValidateNodes checks ids are present and unique, every number is finite and
// no mass is negative. Zero mass is allowed.
func ValidateNodes(nodes []Node) error {
	seen := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			return &ValidationError{Kind: "node", Index: i, Field: "id", Reason: "is empty"}
		}
		if prev, dup := seen[n.ID]; dup {
			return &ValidationError{Kind: "node", Index: i, Field: "id",
				Reason: fmt.Sprintf("duplicates index %d", prev)}
		}
		seen[n.ID] = i
		values := [...]float64{n.X, n.Y, n.Z, n.VX, n.VY, n.VZ, n.Mass}
		for j, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &ValidationError{Kind: "node", Index: i, Field: nodeFields[j], Reason: "is not finite"}
			}
		}
		if n.Mass < 0 {
			return &ValidationError{Kind: "node", Index: i, Field: "mass", Reason: "is negative"}
		}
	}
	return nil
}

// ValidateEdges checks every weight is finite. Unknown endpoint ids are fine.
func ValidateEdges(edges []Edge) error {
	for i, e := range edges {
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
			return &ValidationError{Kind: "edge", Index: i, Field: "weight", Reason: "is not finite"}
		}
	}
	return nil
}
