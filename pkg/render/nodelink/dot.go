package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/stackforge/pkg/dag"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/graph"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds the version, row and other metadata to node labels and
	// the version range to dependency edges.
	Detailed bool

	// Highlight marks generators, e.g. the root of a dependency query.
	Highlight []string
}

const dotHeader = `digraph G {
  rankdir=TB;
  bgcolor="transparent";
  ranksep=0.5;
  nodesep=0.3;
  node [shape=box, style="rounded,filled", fillcolor=white, fontsize=24, margin="0.2,0.1"];
`

// ToDOT converts a dependency graph to Graphviz DOT. Namespaced generators
// ("go/model") are boxed in one cluster per namespace; optional
// dependencies are dashed.
func ToDOT(g *dag.DAG, opts Options) string {
	var b strings.Builder
	b.WriteString(dotHeader)

	groups := map[string][]*dag.Node{}
	for _, n := range g.Nodes() {
		ns, _ := namespace(n.ID)
		groups[ns] = append(groups[ns], n)
	}
	for _, ns := range slices.Sorted(maps.Keys(groups)) {
		indent := "  "
		if ns != "" {
			fmt.Fprintf(&b, "\n  subgraph %q {\n    label=%q;\n    style=\"rounded,dashed\";\n", "cluster_"+ns, ns)
			indent = "    "
		}
		for _, n := range groups[ns] {
			fmt.Fprintf(&b, "%s%q [%s];\n", indent, n.ID, nodeAttrs(*n, opts))
		}
		if ns != "" {
			b.WriteString("  }\n")
		}
	}

	b.WriteString("\n")
	for _, e := range g.Edges() {
		attrs := edgeAttrs(e, opts.Detailed)
		if len(attrs) == 0 {
			fmt.Fprintf(&b, "  %q -> %q;\n", e.From, e.To)
			continue
		}
		fmt.Fprintf(&b, "  %q -> %q [%s];\n", e.From, e.To, strings.Join(attrs, ", "))
	}

	b.WriteString("}\n")
	return b.String()
}

// namespace splits "go/model" into "go" and "model". Ids without a slash
// have no namespace.
func namespace(id string) (string, string) {
	if i := strings.LastIndexByte(id, '/'); i > 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

func nodeAttrs(n dag.Node, opts Options) string {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(n, opts.Detailed))}
	if slices.Contains(opts.Highlight, n.ID) {
		attrs = append(attrs, `fillcolor="#fde68a"`, "penwidth=2")
	}
	return strings.Join(attrs, ", ")
}

func edgeAttrs(e dag.Edge, detailed bool) []string {
	var attrs []string
	if required, ok := e.Meta[graph.MetaRequired].(bool); ok && !required {
		attrs = append(attrs, "style=dashed")
	}
	if rng, _ := e.Meta[graph.MetaRange].(string); detailed && rng != "" {
		attrs = append(attrs, fmt.Sprintf("label=%q", rng), "fontsize=16")
	}
	return attrs
}

// fmtLabel shows the short id inside a namespace cluster. Detailed labels
// list the version first, then the row, then remaining metadata by key.
func fmtLabel(n dag.Node, detailed bool) string {
	_, name := namespace(n.ID)
	if !detailed {
		return name
	}

	lines := []string{name}
	if v, ok := n.Meta[graph.MetaVersion]; ok {
		lines = append(lines, fmt.Sprintf("v%v", v))
	}
	lines = append(lines, fmt.Sprintf("row: %d", n.Row))
	for _, k := range slices.Sorted(maps.Keys(n.Meta)) {
		if k != graph.MetaVersion {
			lines = append(lines, fmt.Sprintf("%s: %v", k, n.Meta[k]))
		}
	}
	return strings.Join(lines, "\n")
}

// RenderSVG renders DOT source to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "render SVG")
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the image scales from a
// zero-origin viewBox.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(root))
}
