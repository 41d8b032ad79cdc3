package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/stackforge/pkg/errors"
)

// Dependency names another generator a descriptor needs.
type Dependency struct {
	ID       string `json:"id" yaml:"id" toml:"id" bson:"id"`
	Range    string `json:"range,omitempty" yaml:"range,omitempty" toml:"range,omitempty" bson:"range,omitempty"`
	Required bool   `json:"required" yaml:"required" toml:"required" bson:"required"`
}

// Descriptor is the registered metadata of a generator unit. Descriptors
// are treated as immutable once registered; the registry hands out copies.
type Descriptor struct {
	ID           string       `json:"id" yaml:"id" toml:"id" bson:"_id"`
	Name         string       `json:"name" yaml:"name" toml:"name" bson:"name"`
	Version      string       `json:"version" yaml:"version" toml:"version" bson:"version"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty" bson:"description,omitempty"`
	Runtime      string       `json:"runtime,omitempty" yaml:"runtime,omitempty" toml:"runtime,omitempty" bson:"runtime,omitempty"`
	Run          string       `json:"run,omitempty" yaml:"run,omitempty" toml:"run,omitempty" bson:"run,omitempty"`
	Outputs      []string     `json:"outputs,omitempty" yaml:"outputs,omitempty" toml:"outputs,omitempty" bson:"outputs,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty" bson:"dependencies,omitempty"`
	Conflicts    []string     `json:"conflicts,omitempty" yaml:"conflicts,omitempty" toml:"conflicts,omitempty" bson:"conflicts,omitempty"`
	Tags         []string     `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty" bson:"tags,omitempty"`
}

// Fingerprint is a content hash of every field of d. Two descriptors with
// the same fingerprint run the same generator the same way.
func (d *Descriptor) Fingerprint() string {
	if d == nil {
		return ""
	}
	data, _ := json.Marshal(d)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Validate checks the fields every registered descriptor must carry: a safe
// id, a display name, a semantic version and syntactically valid ranges.
func (d *Descriptor) Validate() error {
	if d == nil {
		return errors.Validation("descriptor is nil")
	}
	if err := errors.ValidateGeneratorID(d.ID); err != nil {
		return err
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.Validation("generator %s: name is required", d.ID)
	}
	if _, err := semver.StrictNewVersion(d.Version); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "generator %s: version %q is not a semantic version", d.ID, d.Version)
	}

	seen := make(map[string]bool, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if err := errors.ValidateGeneratorID(dep.ID); err != nil {
			return errors.Wrap(errors.ErrCodeValidation, err, "generator %s: invalid dependency", d.ID)
		}
		if dep.ID == d.ID {
			return errors.Validation("generator %s: cannot depend on itself", d.ID)
		}
		if seen[dep.ID] {
			return errors.Validation("generator %s: duplicate dependency %s", d.ID, dep.ID)
		}
		seen[dep.ID] = true
		if _, err := ParseRange(dep.Range); err != nil {
			return errors.Wrap(errors.ErrCodeValidation, err, "generator %s: dependency %s", d.ID, dep.ID)
		}
	}

	for _, c := range d.Conflicts {
		if c == d.ID {
			return errors.Validation("generator %s: cannot conflict with itself", d.ID)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.Outputs = slices.Clone(d.Outputs)
	c.Dependencies = slices.Clone(d.Dependencies)
	c.Conflicts = slices.Clone(d.Conflicts)
	c.Tags = slices.Clone(d.Tags)
	return &c
}

// DependsOn reports whether d lists id as a dependency.
func (d *Descriptor) DependsOn(id string) bool {
	return slices.ContainsFunc(d.Dependencies, func(dep Dependency) bool { return dep.ID == id })
}

// ConflictsWith reports whether d lists id as a conflict.
func (d *Descriptor) ConflictsWith(id string) bool {
	return slices.Contains(d.Conflicts, id)
}

// ParseRange parses a version range. The empty string and "*" match any
// version and yield a nil constraint.
func ParseRange(r string) (*semver.Constraints, error) {
	r = strings.TrimSpace(r)
	if r == "" || r == "*" {
		return nil, nil
	}
	c, err := semver.NewConstraint(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "invalid version range %q", r)
	}
	return c, nil
}

// Satisfies reports whether d's version is within the range r.
// The range must already be valid; see ParseRange.
func (d *Descriptor) Satisfies(r string) (bool, error) {
	c, err := ParseRange(r)
	if err != nil {
		return false, err
	}
	if c == nil {
		return true, nil
	}
	v, err := semver.NewVersion(d.Version)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeValidation, err, "generator %s: version %q is not a semantic version", d.ID, d.Version)
	}
	return c.Check(v), nil
}
