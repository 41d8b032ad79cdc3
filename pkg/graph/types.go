package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/stackforge/pkg/dag"
)

// Metadata keys the registry attaches to graph elements.
const (
	MetaVersion  = "version"
	MetaRequired = "required"
	MetaRange    = "range"
)

// Graph is the serialized form of a dependency graph.
type Graph struct {
	Nodes []Node `json:"nodes" bson:"nodes"`
	Edges []Edge `json:"edges" bson:"edges"`
}

// Node is one generator.
type Node struct {
	ID      string         `json:"id" bson:"id"`
	Version string         `json:"version,omitempty" bson:"version,omitempty"`
	Row     int            `json:"row,omitempty" bson:"row,omitempty"`
	Meta    map[string]any `json:"meta,omitempty" bson:"meta,omitempty"`
}

// Edge points from a dependent to its dependency.
type Edge struct {
	From     string `json:"from" bson:"from"`
	To       string `json:"to" bson:"to"`
	Required bool   `json:"required" bson:"required"`
	Range    string `json:"range,omitempty" bson:"range,omitempty"`
}

// FromDAG converts g. The version moves from metadata to Node.Version;
// other metadata is kept as is.
func FromDAG(g *dag.DAG) Graph {
	out := Graph{Nodes: []Node{}, Edges: []Edge{}}
	for _, n := range g.Nodes() {
		node := Node{ID: n.ID, Row: n.Row}
		meta := maps.Clone(n.Meta)
		if v, ok := meta[MetaVersion].(string); ok {
			node.Version = v
			delete(meta, MetaVersion)
		}
		if len(meta) > 0 {
			node.Meta = meta
		}
		out.Nodes = append(out.Nodes, node)
	}

	for _, e := range g.Edges() {
		required, _ := e.Meta[MetaRequired].(bool)
		rng, _ := e.Meta[MetaRange].(string)
		out.Edges = append(out.Edges, Edge{From: e.From, To: e.To, Required: required, Range: rng})
	}
	slices.SortFunc(out.Edges, func(a, b Edge) int {
		if a.From != b.From {
			return strings.Compare(a.From, b.From)
		}
		return strings.Compare(a.To, b.To)
	})
	return out
}

// ToDAG rebuilds a DAG from a decoded graph. Edges must reference known
// nodes and the result must be acyclic.
func ToDAG(data Graph) (*dag.DAG, error) {
	g := dag.New(nil)
	for _, n := range data.Nodes {
		meta := maps.Clone(n.Meta)
		if meta == nil {
			meta = dag.Metadata{}
		}
		if n.Version != "" {
			meta[MetaVersion] = n.Version
		}
		if err := g.AddNode(dag.Node{ID: n.ID, Row: n.Row, Meta: meta}); err != nil {
			return nil, fmt.Errorf("node %q: %w", n.ID, err)
		}
	}
	for _, e := range data.Edges {
		meta := dag.Metadata{MetaRequired: e.Required}
		if e.Range != "" {
			meta[MetaRange] = e.Range
		}
		if err := g.AddEdge(dag.Edge{From: e.From, To: e.To, Meta: meta}); err != nil {
			return nil, fmt.Errorf("edge %s -> %s: %w", e.From, e.To, err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
