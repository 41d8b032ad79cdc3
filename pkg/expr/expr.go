// Package expr evaluates generator conditions.
//
// Conditions use HCL expression syntax restricted to literals, attribute
// and index access, comparison, arithmetic, boolean operators and the
// ternary operator. Two root names are in scope:
//
//	variables.database == "postgres" && !variables.skip_tests
//	results.model.success
//	length(results) > 0             // rejected: no functions
//
// Function calls, for expressions and splats are rejected at compile time,
// and the evaluation context carries no functions, so a condition can only
// read the values it is given.
package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Root names visible to conditions.
const (
	RootVariables = "variables"
	RootResults   = "results"
)

// Scope holds the values a condition can read.
type Scope struct {
	Variables map[string]any
	Results   map[string]any
}

// Condition is a compiled condition expression.
type Condition struct {
	src  string
	expr hclsyntax.Expression
}

// Compile parses src and checks that it stays within the allowed grammar.
func Compile(src string) (*Condition, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty condition")
	}
	e, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse condition %q: %s", src, diags.Error())
	}
	if err := checkSyntax(e); err != nil {
		return nil, fmt.Errorf("condition %q: %w", src, err)
	}
	for _, t := range e.Variables() {
		root := t.RootName()
		if root != RootVariables && root != RootResults {
			return nil, fmt.Errorf("condition %q: unknown name %q (use %s.* or %s.*)", src, root, RootVariables, RootResults)
		}
	}
	return &Condition{src: src, expr: e}, nil
}

// String returns the condition source.
func (c *Condition) String() string { return c.src }

// References returns the dotted paths the condition reads, sorted.
func (c *Condition) References() []string {
	seen := make(map[string]bool)
	for _, t := range c.expr.Variables() {
		seen[traversalPath(t)] = true
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Eval evaluates the condition against scope. The result must convert to
// a known, non-null bool.
func (c *Condition) Eval(scope Scope) (bool, error) {
	vars, err := ToValue(scope.Variables)
	if err != nil {
		return false, fmt.Errorf("variables: %w", err)
	}
	results, err := ToValue(scope.Results)
	if err != nil {
		return false, fmt.Errorf("results: %w", err)
	}
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			RootVariables: objectOrEmpty(vars),
			RootResults:   objectOrEmpty(results),
		},
	}

	v, diags := c.expr.Value(ctx)
	if diags.HasErrors() {
		return false, fmt.Errorf("evaluate %q: %s", c.src, diags.Error())
	}
	v, err = convert.Convert(v, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: result is not a bool: %w", c.src, err)
	}
	if v.IsNull() || !v.IsKnown() {
		return false, fmt.Errorf("evaluate %q: result is null", c.src)
	}
	return v.True(), nil
}

// Evaluate compiles and evaluates src. Any error yields false together
// with the error, so callers can log it and treat the condition as unmet.
func Evaluate(src string, scope Scope) (bool, error) {
	c, err := Compile(src)
	if err != nil {
		return false, err
	}
	return c.Eval(scope)
}

func objectOrEmpty(v cty.Value) cty.Value {
	if v.IsNull() {
		return cty.EmptyObjectVal
	}
	return v
}

// checkSyntax rejects expression kinds outside the condition grammar.
func checkSyntax(e hclsyntax.Expression) error {
	var err error
	hclsyntax.VisitAll(e, func(n hclsyntax.Node) hcl.Diagnostics {
		if err != nil {
			return nil
		}
		switch x := n.(type) {
		case *hclsyntax.FunctionCallExpr:
			err = fmt.Errorf("function calls are not allowed (%s)", x.Name)
		case *hclsyntax.ForExpr:
			err = fmt.Errorf("for expressions are not allowed")
		case *hclsyntax.SplatExpr:
			err = fmt.Errorf("splat expressions are not allowed")
		}
		return nil
	})
	return err
}

func traversalPath(t hcl.Traversal) string {
	var b strings.Builder
	for _, step := range t {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			b.WriteString(s.Name)
		case hcl.TraverseAttr:
			b.WriteString("." + s.Name)
		case hcl.TraverseIndex:
			switch s.Key.Type() {
			case cty.String:
				fmt.Fprintf(&b, "[%q]", s.Key.AsString())
			case cty.Number:
				fmt.Fprintf(&b, "[%s]", s.Key.AsBigFloat().Text('f', -1))
			}
		}
	}
	return b.String()
}
