package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stackforge/pkg/registry"
)

// Format decodes one manifest file format.
type Format interface {
	// Type returns the format identifier (e.g. "toml").
	Type() string
	// Supports reports whether this format handles the given filename.
	Supports(filename string) bool
	// Decode parses manifest bytes into a descriptor.
	Decode(data []byte) (*registry.Descriptor, error)
}

// Formats lists the supported manifest formats in lookup order.
var Formats = []Format{TOML{}, YAML{}, JSON{}}

// Filenames lists the manifest filenames probed in each generator directory.
var Filenames = []string{"generator.toml", "generator.yaml", "generator.yml", "generator.json"}

// DetectFormat finds a format that supports the given file path.
func DetectFormat(path string, formats ...Format) (Format, error) {
	if len(formats) == 0 {
		formats = Formats
	}
	name := filepath.Base(path)
	for _, f := range formats {
		if f.Supports(name) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("unsupported manifest: %s", name)
}

// TOML decodes generator.toml manifests.
type TOML struct{}

func (TOML) Type() string { return "toml" }
func (TOML) Supports(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".toml")
}

func (TOML) Decode(data []byte) (*registry.Descriptor, error) {
	var d registry.Descriptor
	md, err := toml.Decode(string(data), &d)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys: %v", undecoded)
	}
	return &d, nil
}

// YAML decodes generator.yaml and generator.yml manifests.
type YAML struct{}

func (YAML) Type() string { return "yaml" }
func (YAML) Supports(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func (YAML) Decode(data []byte) (*registry.Descriptor, error) {
	var d registry.Descriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// JSON decodes generator.json manifests.
type JSON struct{}

func (JSON) Type() string { return "json" }
func (JSON) Supports(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}

func (JSON) Decode(data []byte) (*registry.Descriptor, error) {
	var d registry.Descriptor
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}
