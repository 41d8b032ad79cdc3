package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackforge/pkg/dag"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/graph"
	"github.com/matzehuels/stackforge/pkg/render"
	"github.com/matzehuels/stackforge/pkg/render/nodelink"
)

const (
	formatDOT  = "dot"
	formatSVG  = "svg"
	formatJSON = "json"
	formatPDF  = "pdf"
	formatPNG  = "png"
)

// validFormats is the set of supported graph output formats.
var validFormats = []string{formatDOT, formatSVG, formatJSON, formatPDF, formatPNG}

// graphOpts holds the command-line flags for the graph command.
type graphOpts struct {
	input     string   // read a graph JSON file instead of the registry
	output    string   // output file; empty writes to stdout (dot/json) or graph.<format>
	format    string   // dot, svg, json, pdf or png
	root      string   // restrict the graph to root and its dependencies
	detailed  bool     // show version and metadata in node labels
	highlight []string // generator ids to emphasize
	scale     float64  // PNG scale factor
}

// graphCommand creates the graph export command.
func (c *CLI) graphCommand() *cobra.Command {
	opts := graphOpts{format: formatDOT, scale: 2}

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the generator dependency graph",
		Long: `Export the dependency graph of registered generators (and manifests in the
generators directory) as Graphviz DOT, SVG, JSON, PDF or PNG.

PDF and PNG output require rsvg-convert on the PATH.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.format) {
				return fmt.Errorf("invalid format: %s (must be one of %s)", opts.format, strings.Join(validFormats, ", "))
			}
			return c.runGraph(cmd.Context(), &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "graph JSON file to render instead of the registry")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file")
	cmd.Flags().StringVarP(&opts.format, "format", "f", opts.format, "output format: dot (default), svg, json, pdf, png")
	cmd.Flags().StringVar(&opts.root, "root", "", "only include this generator and its dependencies")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show versions and metadata in labels")
	cmd.Flags().StringSliceVar(&opts.highlight, "highlight", nil, "generator ids to highlight")
	cmd.Flags().Float64Var(&opts.scale, "scale", opts.scale, "PNG scale factor")

	return cmd
}

func (c *CLI) runGraph(ctx context.Context, opts *graphOpts) error {
	logger := loggerFromContext(ctx)
	timer := startStopwatch(logger)

	g, err := c.loadGraph(ctx, opts.input)
	if err != nil {
		return err
	}
	if opts.root != "" {
		if _, ok := g.Node(opts.root); !ok {
			return &errors.NotFoundError{ID: opts.root}
		}
		ids, err := g.TopoSortFrom(opts.root)
		if err != nil {
			return err
		}
		g = g.Subgraph(ids)
		if len(opts.highlight) == 0 {
			opts.highlight = []string{opts.root}
		}
	}
	g.AssignRows()

	data, err := renderGraph(ctx, g, opts)
	if err != nil {
		return err
	}

	output := opts.output
	if output == "" && (opts.format == formatSVG || opts.format == formatPDF || opts.format == formatPNG) {
		output = "graph." + opts.format
	}
	if output == "" {
		_, err := stdout.Write(data)
		return err
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	timer.done("rendered graph", "generators", g.NodeCount(), "format", opts.format)
	printFile(output)
	return nil
}

// loadGraph reads a graph JSON file, or builds the registry graph.
func (c *CLI) loadGraph(ctx context.Context, input string) (*dag.DAG, error) {
	if input != "" {
		return graph.ReadGraphFile(input)
	}
	e, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer e.Close(ctx)
	e.loadManifests(ctx)
	return e.reg.Graph(), nil
}

func renderGraph(ctx context.Context, g *dag.DAG, opts *graphOpts) ([]byte, error) {
	if opts.format == formatJSON {
		return graph.MarshalGraph(g)
	}

	dot := nodelink.ToDOT(g, nodelink.Options{Detailed: opts.detailed, Highlight: opts.highlight})
	if opts.format == formatDOT {
		return []byte(dot), nil
	}

	svg, err := nodelink.RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	switch opts.format {
	case formatPDF:
		return render.ToPDF(ctx, svg)
	case formatPNG:
		return render.ToPNG(ctx, svg, opts.scale)
	}
	return svg, nil
}
