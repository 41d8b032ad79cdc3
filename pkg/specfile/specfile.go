// Package specfile reads composition specs from disk.
//
// A spec file lists the generators to run and how to run them. YAML, TOML
// and JSON files map onto [compose.Spec] field by field:
//
//	name: service
//	execution: pipeline
//	error_handling: fail-fast
//	rollback: files
//	variables:
//	  framework: gin
//	generators:
//	  - id: model
//	    order: 1
//	  - id: api
//	    order: 2
//	    condition: variables.framework == "gin"
//
// HCL files use one labeled block per generator, and conditions may be
// written as bare expressions:
//
//	execution = "pipeline"
//
//	generator "api" {
//	  order     = 2
//	  condition = variables.framework == "gin"
//	  options   = { style = "rest" }
//	}
package specfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stackforge/pkg/compose"
	"github.com/matzehuels/stackforge/pkg/errors"
)

// Format decodes one spec file format.
type Format string

const (
	YAML Format = "yaml"
	TOML Format = "toml"
	JSON Format = "json"
	HCL  Format = "hcl"
)

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	case ".json":
		return JSON, nil
	case ".hcl":
		return HCL, nil
	}
	return "", errors.New(errors.ErrCodeInvalidSpec, "unsupported spec file %s (want .yaml, .yml, .toml, .json or .hcl)", filepath.Base(path))
}

// Load reads, decodes and validates the spec at path. Policy defaults are
// applied.
func Load(path string) (*compose.Spec, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "spec file %s not found", path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data, format, path)
}

// Parse decodes data in the given format. name labels diagnostics and is
// the spec's default name (without extension) when the file sets none.
func Parse(data []byte, format Format, name string) (*compose.Spec, error) {
	var (
		spec *compose.Spec
		err  error
	)
	switch format {
	case YAML:
		spec, err = decodeYAML(data)
	case TOML:
		spec, err = decodeTOML(data)
	case JSON:
		spec, err = decodeJSON(data)
	case HCL:
		spec, err = decodeHCL(data, name)
	default:
		return nil, errors.New(errors.ErrCodeInvalidSpec, "unknown spec format %q", format)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidSpec, err, "parse %s", name)
	}

	if spec.Name == "" && name != "" {
		base := filepath.Base(name)
		spec.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	spec.SetDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func decodeYAML(data []byte) (*compose.Spec, error) {
	var spec compose.Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func decodeTOML(data []byte) (*compose.Spec, error) {
	var spec compose.Spec
	md, err := toml.Decode(string(data), &spec)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys: %v", undecoded)
	}
	return &spec, nil
}

func decodeJSON(data []byte) (*compose.Spec, error) {
	var spec compose.Spec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}
