// Package dag provides the directed graph that backs generator dependency
// resolution.
//
// # Overview
//
// Every registered generator is a node; an edge A→B records that A depends
// on B. The graph is derived from descriptors and never persisted. It must
// stay acyclic under any subset of nodes: cycles are hard errors and are
// never silently broken.
//
// # Basic Usage
//
//	g := dag.New(nil)
//	g.AddNode(dag.Node{ID: "api"})
//	g.AddNode(dag.Node{ID: "model"})
//	g.AddEdge(dag.Edge{From: "api", To: "model"})
//
//	order, err := g.TopoSort() // [model api]
//
// # Cycles
//
// Cycle detection is a depth-first search with white/gray/black colouring.
// Reaching a gray node means the current path loops back on itself; the
// path slice from that node onward, closed with the node again, is returned
// as the chain. [DAG.FindCycle] scans the whole graph, [DAG.CycleFrom]
// checks only what is reachable from one node, and [DAG.Validate] and
// [DAG.TopoSort] wrap the chain in a [*CycleError].
//
// # Ordering
//
// [DAG.TopoSort] and [DAG.TopoSortFrom] emit a post-order: each node appears
// after all of its dependencies, and each node appears once. Roots are
// visited in the order given (ID order for TopoSort), and children in edge
// insertion order, so results are deterministic.
//
// [DAG.AssignRows] assigns each node a layer by longest path from the
// sources. Rows are used to print execution plans and to rank nodes in
// rendered graphs.
//
// # Concurrency
//
// DAG instances are not safe for concurrent use. The registry guards its
// graph with its own lock and hands out clones.
package dag
