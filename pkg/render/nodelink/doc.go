// Package nodelink renders generator dependency graphs as node-link
// diagrams: one rounded box per generator, one arrow per dependency,
// pointing from the dependent to what it needs.
//
//	g := reg.Graph()
//	dot := nodelink.ToDOT(g, nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// Optional dependencies are drawn dashed. With Detailed set, labels carry
// the version and row of each node; call [dag.DAG.AssignRows] first.
//
// Rendering uses [github.com/goccy/go-graphviz], which runs Graphviz in
// process, so no system install is needed for SVG.
package nodelink
