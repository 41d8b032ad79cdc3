// Package render turns generator dependency graphs into images.
//
// The [nodelink] subpackage produces Graphviz DOT and SVG. ToPDF and ToPNG
// convert any SVG further using the external rsvg-convert tool (librsvg):
//
//	svg, err := nodelink.RenderSVG(ctx, nodelink.ToDOT(g, nodelink.Options{}))
//	pdf, err := render.ToPDF(ctx, svg)
//	png, err := render.ToPNG(ctx, svg, 2.0) // 2x scale
//
// A missing rsvg-convert yields an UNSUPPORTED error.
package render
