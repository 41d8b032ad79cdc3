package specfile

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/matzehuels/stackforge/pkg/compose"
	"github.com/matzehuels/stackforge/pkg/expr"
)

type hclFile struct {
	Name          string         `hcl:"name,optional"`
	Execution     string         `hcl:"execution,optional"`
	ErrorHandling string         `hcl:"error_handling,optional"`
	Rollback      string         `hcl:"rollback,optional"`
	Variables     hcl.Expression `hcl:"variables,optional"`
	Generators    []hclGenerator `hcl:"generator,block"`
}

type hclGenerator struct {
	ID        string         `hcl:"id,label"`
	Version   string         `hcl:"version,optional"`
	Order     int            `hcl:"order,optional"`
	Parallel  bool           `hcl:"parallel,optional"`
	Optional  bool           `hcl:"optional,optional"`
	Condition hcl.Expression `hcl:"condition,optional"`
	Options   hcl.Expression `hcl:"options,optional"`
}

func decodeHCL(data []byte, filename string) (*compose.Spec, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, diags
	}

	vars, err := staticMap(parsed.Variables)
	if err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	spec := &compose.Spec{
		Name:          parsed.Name,
		Execution:     compose.Strategy(parsed.Execution),
		ErrorHandling: compose.ErrorPolicy(parsed.ErrorHandling),
		Rollback:      compose.RollbackStrategy(parsed.Rollback),
		Variables:     vars,
	}

	for _, g := range parsed.Generators {
		options, err := staticMap(g.Options)
		if err != nil {
			return nil, fmt.Errorf("generator %s options: %w", g.ID, err)
		}
		spec.Refs = append(spec.Refs, compose.Ref{
			ID:        g.ID,
			Version:   g.Version,
			Order:     g.Order,
			Parallel:  g.Parallel,
			Optional:  g.Optional,
			Condition: conditionSource(g.Condition, data),
			Options:   options,
		})
	}
	return spec, nil
}

// staticMap evaluates an object attribute without variables or functions.
// An absent attribute yields nil.
func staticMap(e hcl.Expression) (map[string]any, error) {
	if e == nil {
		return nil, nil
	}
	v, diags := e.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("want an object, got %s", v.Type().FriendlyName())
	}
	out, err := expr.FromValue(v)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

// conditionSource returns a condition as text. Quoted strings are used as
// is; bare expressions are taken verbatim from the source.
func conditionSource(e hcl.Expression, src []byte) string {
	if e == nil {
		return ""
	}
	if v, diags := e.Value(nil); !diags.HasErrors() {
		if v.IsNull() {
			return ""
		}
		if v.Type() == cty.String && v.IsKnown() {
			return v.AsString()
		}
	}
	rng := e.Range()
	if rng.Start.Byte < 0 || rng.End.Byte > len(src) || rng.Start.Byte >= rng.End.Byte {
		return ""
	}
	return string(src[rng.Start.Byte:rng.End.Byte])
}
