// Package graph is the JSON interchange format for generator dependency
// graphs.
//
// The registry keeps its graph as a [dag.DAG]. This package converts that
// graph to and from a flat node/edge document used by the API, by
// `stackforge graph --format json` and by renderers that work from an
// exported file instead of a live registry.
//
//	g := reg.Graph()
//	g.AssignRows()
//	data, err := graph.MarshalGraph(g)
//
// Nodes carry their row and metadata (the registry sets "version");
// edges carry whether the dependency is required. Output is sorted by id so
// exports are stable across runs.
package graph
