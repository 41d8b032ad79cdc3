package dag

import (
	"errors"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrInvalidNodeID is returned by [DAG.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [DAG.AddNode] when a node with the
	// same ID already exists in the graph.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownSourceNode is returned by [DAG.AddEdge] when the From node
	// does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [DAG.AddEdge] when the To node
	// does not exist in the graph.
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrInvalidEdgeEndpoint is returned by [DAG.Validate] when an edge
	// references a node that doesn't exist. This indicates graph corruption.
	ErrInvalidEdgeEndpoint = errors.New("invalid edge endpoint")

	// ErrGraphHasCycle is returned by [DAG.Validate] and [DAG.TopoSort] when a
	// cycle is detected. The concrete error is a [*CycleError] carrying the
	// offending chain.
	ErrGraphHasCycle = errors.New("graph contains a cycle")
)

// CycleError describes a directed cycle. Chain starts and ends with the
// same node ID, e.g. [a b c a].
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return ErrGraphHasCycle.Error() + ": " + strings.Join(e.Chain, " -> ")
}

// Is makes errors.Is(err, ErrGraphHasCycle) hold for every CycleError.
func (e *CycleError) Is(target error) bool { return target == ErrGraphHasCycle }

// Metadata stores arbitrary key-value pairs attached to nodes or the graph.
// Metadata maps are never nil - they are initialized to empty maps when needed.
type Metadata map[string]any

// Node represents a generator in the dependency graph.
//
// Row is the node's layer: 0 for nodes nothing depends on, increasing toward
// the leaves. It is only meaningful after [DAG.AssignRows].
type Node struct {
	ID   string   // Unique identifier (generator id)
	Row  int      // Layer assignment (0 = top, increasing toward dependencies)
	Meta Metadata // Arbitrary key-value metadata (never nil after AddNode)
}

// Edge represents a directed dependency: From depends on To.
type Edge struct {
	From string   // Dependent node ID
	To   string   // Dependency node ID
	Meta Metadata // Arbitrary key-value metadata (never nil after AddEdge)
}

// DAG is a directed graph of generator dependencies. Edges point from a
// dependent to its dependency, so [DAG.Children] lists what a node needs and
// [DAG.Parents] lists who needs it.
//
// The zero value is not usable - use New to create a valid DAG instance.
// DAG is not safe for concurrent use without external synchronization.
type DAG struct {
	nodes    map[string]*Node
	edges    []Edge
	outgoing map[string][]string // nodeID -> dependency IDs
	incoming map[string][]string // nodeID -> dependent IDs
	meta     Metadata
}

// New creates an empty DAG with optional graph-level metadata.
func New(meta Metadata) *DAG {
	if meta == nil {
		meta = Metadata{}
	}
	return &DAG{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		meta:     meta,
	}
}

// Meta returns the graph-level metadata map.
func (d *DAG) Meta() Metadata { return d.meta }

// AddNode adds a node to the graph.
// Returns ErrInvalidNodeID if the node ID is empty, or ErrDuplicateNodeID
// if a node with the same ID already exists.
func (d *DAG) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := d.nodes[n.ID]; exists {
		return ErrDuplicateNodeID
	}
	if n.Meta == nil {
		n.Meta = Metadata{}
	}
	d.nodes[n.ID] = &n
	return nil
}

// AddEdge adds a directed edge between two existing nodes. Adding an edge
// that already exists is a no-op.
func (d *DAG) AddEdge(e Edge) error {
	if _, ok := d.nodes[e.From]; !ok {
		return ErrUnknownSourceNode
	}
	if _, ok := d.nodes[e.To]; !ok {
		return ErrUnknownTargetNode
	}
	if slices.Contains(d.outgoing[e.From], e.To) {
		return nil
	}
	if e.Meta == nil {
		e.Meta = Metadata{}
	}
	d.edges = append(d.edges, e)
	d.outgoing[e.From] = append(d.outgoing[e.From], e.To)
	d.incoming[e.To] = append(d.incoming[e.To], e.From)
	return nil
}

// RemoveEdge removes the edge from→to if it exists.
func (d *DAG) RemoveEdge(from, to string) {
	d.edges = slices.DeleteFunc(d.edges, func(e Edge) bool { return e.From == from && e.To == to })
	d.outgoing[from] = slices.DeleteFunc(d.outgoing[from], func(s string) bool { return s == to })
	d.incoming[to] = slices.DeleteFunc(d.incoming[to], func(s string) bool { return s == from })
}

// RemoveNode removes a node together with every edge touching it.
// Removing an unknown node is a no-op.
func (d *DAG) RemoveNode(id string) {
	if _, ok := d.nodes[id]; !ok {
		return
	}
	for _, child := range slices.Clone(d.outgoing[id]) {
		d.RemoveEdge(id, child)
	}
	for _, parent := range slices.Clone(d.incoming[id]) {
		d.RemoveEdge(parent, id)
	}
	delete(d.outgoing, id)
	delete(d.incoming, id)
	delete(d.nodes, id)
}

// Nodes returns all nodes sorted by ID.
func (d *DAG) Nodes() []*Node {
	nodes := make([]*Node, 0, len(d.nodes))
	for _, id := range d.NodeIDs() {
		nodes = append(nodes, d.nodes[id])
	}
	return nodes
}

// NodeIDs returns all node IDs in sorted order.
func (d *DAG) NodeIDs() []string {
	return slices.Sorted(maps.Keys(d.nodes))
}

// Edges returns a copy of all edges in insertion order.
func (d *DAG) Edges() []Edge { return slices.Clone(d.edges) }

// NodeCount returns the number of nodes in the graph.
func (d *DAG) NodeCount() int { return len(d.nodes) }

// EdgeCount returns the number of edges in the graph.
func (d *DAG) EdgeCount() int { return len(d.edges) }

// Children returns the IDs this node depends on, in edge insertion order.
// The returned slice should not be modified.
func (d *DAG) Children(id string) []string { return d.outgoing[id] }

// Parents returns the IDs of nodes that depend on this node.
// The returned slice should not be modified.
func (d *DAG) Parents(id string) []string { return d.incoming[id] }

// OutDegree returns the number of outgoing edges from the node.
func (d *DAG) OutDegree(id string) int { return len(d.outgoing[id]) }

// InDegree returns the number of incoming edges to the node.
func (d *DAG) InDegree(id string) int { return len(d.incoming[id]) }

// Node returns the node with the given ID and true, or nil and false if not found.
func (d *DAG) Node(id string) (*Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// Sources returns nodes nothing depends on, sorted by ID.
func (d *DAG) Sources() []*Node {
	var sources []*Node
	for _, n := range d.Nodes() {
		if len(d.incoming[n.ID]) == 0 {
			sources = append(sources, n)
		}
	}
	return sources
}

// Sinks returns nodes without dependencies, sorted by ID.
func (d *DAG) Sinks() []*Node {
	var sinks []*Node
	for _, n := range d.Nodes() {
		if len(d.outgoing[n.ID]) == 0 {
			sinks = append(sinks, n)
		}
	}
	return sinks
}

// Validate checks graph integrity: every edge must join existing nodes and
// the graph must be acyclic. A cycle is reported as a [*CycleError].
func (d *DAG) Validate() error {
	for _, e := range d.edges {
		_, okS := d.nodes[e.From]
		_, okD := d.nodes[e.To]
		if !okS || !okD {
			return ErrInvalidEdgeEndpoint
		}
	}
	if chain := d.FindCycle(); chain != nil {
		return &CycleError{Chain: chain}
	}
	return nil
}

const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // finished
)

// FindCycle returns the first cycle found by a depth-first search over the
// nodes in ID order, or nil if the graph is acyclic.
func (d *DAG) FindCycle() []string {
	color := make(map[string]int, len(d.nodes))
	for _, id := range d.NodeIDs() {
		if color[id] != white {
			continue
		}
		if chain := d.cycleDFS(id, color, nil); chain != nil {
			return chain
		}
	}
	return nil
}

// CycleFrom returns a cycle reachable from start, or nil if none exists.
// Used to check a single newly inserted node without rescanning the graph.
func (d *DAG) CycleFrom(start string) []string {
	if _, ok := d.nodes[start]; !ok {
		return nil
	}
	return d.cycleDFS(start, make(map[string]int), nil)
}

func (d *DAG) cycleDFS(id string, color map[string]int, path []string) []string {
	color[id] = gray
	path = append(path, id)
	for _, child := range d.outgoing[id] {
		switch color[child] {
		case white:
			if chain := d.cycleDFS(child, color, path); chain != nil {
				return chain
			}
		case gray:
			start := slices.Index(path, child)
			chain := slices.Clone(path[start:])
			return append(chain, child)
		}
	}
	color[id] = black
	return nil
}

// TopoSort returns node IDs ordered so that every dependency appears before
// its dependents. The order is the DFS post-order over nodes visited in ID
// order, so it is deterministic for a given graph.
func (d *DAG) TopoSort() ([]string, error) {
	return d.postOrder(d.NodeIDs())
}

// TopoSortFrom returns the post-order of everything reachable from roots,
// dependencies first, each ID once.
func (d *DAG) TopoSortFrom(roots ...string) ([]string, error) {
	for _, r := range roots {
		if _, ok := d.nodes[r]; !ok {
			return nil, ErrUnknownSourceNode
		}
	}
	return d.postOrder(roots)
}

func (d *DAG) postOrder(roots []string) ([]string, error) {
	color := make(map[string]int, len(d.nodes))
	order := make([]string, 0, len(d.nodes))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		color[id] = gray
		path = append(path, id)
		for _, child := range d.outgoing[id] {
			switch color[child] {
			case white:
				if err := visit(child, path); err != nil {
					return err
				}
			case gray:
				start := slices.Index(path, child)
				return &CycleError{Chain: append(slices.Clone(path[start:]), child)}
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, id := range roots {
		if color[id] == white {
			if err := visit(id, nil); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// Subgraph returns a new graph restricted to the given IDs and the edges
// among them. Unknown IDs are ignored. Node metadata maps are shared.
func (d *DAG) Subgraph(ids []string) *DAG {
	sub := New(maps.Clone(d.meta))
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		if n, ok := d.nodes[id]; ok && !keep[id] {
			keep[id] = true
			_ = sub.AddNode(*n)
		}
	}
	for _, e := range d.edges {
		if keep[e.From] && keep[e.To] {
			_ = sub.AddEdge(e)
		}
	}
	return sub
}

// Clone returns a structural copy of the graph.
func (d *DAG) Clone() *DAG {
	return d.Subgraph(d.NodeIDs())
}

// Ancestors returns every node that transitively depends on id, sorted.
func (d *DAG) Ancestors(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, p := range d.incoming[n] {
			if !seen[p] {
				seen[p] = true
				walk(p)
			}
		}
	}
	walk(id)
	return slices.Sorted(maps.Keys(seen))
}

// AssignRows places each node one row below the deepest node that depends
// on it, using a longest-path traversal (Kahn's algorithm). Sources end up in
// row 0. Nodes on a cycle keep row 0; call [DAG.Validate] first.
func (d *DAG) AssignRows() {
	inDegree := make(map[string]int, len(d.nodes))
	rows := make(map[string]int, len(d.nodes))
	var queue []string

	for _, id := range d.NodeIDs() {
		inDegree[id] = len(d.incoming[id])
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, child := range d.outgoing[curr] {
			if row := rows[curr] + 1; row > rows[child] {
				rows[child] = row
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	for id, n := range d.nodes {
		n.Row = rows[id]
	}
}

// Rows groups node IDs by row, each row sorted by ID.
func (d *DAG) Rows() [][]string {
	maxRow := -1
	for _, n := range d.nodes {
		maxRow = max(maxRow, n.Row)
	}
	rows := make([][]string, maxRow+1)
	for _, id := range d.NodeIDs() {
		r := d.nodes[id].Row
		rows[r] = append(rows[r], id)
	}
	return rows
}
