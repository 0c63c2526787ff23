// Package graphio reads and writes graph files in JSON or YAML.
//
// A graph file holds the same node and edge shapes the HTTP API accepts,
// plus optional engine parameters:
//
//	nodes:
//	  - {id: a, x: 0, y: 0, z: 0, vx: 0, vy: 0, vz: 0, mass: 1}
//	edges:
//	  - {source: a, target: b, weight: 1}
//	params: {repulsion: 1000, attraction: 0.01, damping: 0.8, theta: 0.5}
package graphio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/onnwee/graph-physics/internal/physics"
)

// Format names a file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown graph file format")

// Graph is the content of a graph file.
type Graph struct {
	Nodes  []physics.Node  `json:"nodes" yaml:"nodes"`
	Edges  []physics.Edge  `json:"edges" yaml:"edges"`
	Params *physics.Params `json:"params,omitempty" yaml:"params,omitempty"`
}

type graphInput struct {
	Nodes  []physics.NodeInput `json:"nodes" yaml:"nodes"`
	Edges  []physics.EdgeInput `json:"edges" yaml:"edges"`
	Params *physics.Params     `json:"params" yaml:"params"`
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// Load reads and validates the graph file at path.
func Load(path string) (*Graph, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph file: %w", err)
	}
	defer f.Close()

	g, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Decode parses a graph from r. Every node and edge field must be present and
// the result must pass physics validation.
func Decode(r io.Reader, format Format) (*Graph, error) {
	var in graphInput
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	nodes, err := physics.NodesFromInput(in.Nodes)
	if err != nil {
		return nil, err
	}
	if err := physics.ValidateNodes(nodes); err != nil {
		return nil, err
	}
	edges, err := physics.EdgesFromInput(in.Edges)
	if err != nil {
		return nil, err
	}
	if err := physics.ValidateEdges(edges); err != nil {
		return nil, err
	}
	return &Graph{Nodes: nodes, Edges: edges, Params: in.Params}, nil
}

// Encode writes g to w.
func Encode(w io.Writer, g *Graph, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(g); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Save writes g to path in the format its extension names.
func Save(path string, g *Graph) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, g, format); err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write graph file: %w", err)
	}
	return nil
}
