package compose

import (
	"encoding/json"
	"maps"
	"slices"
	"sort"

	"github.com/matzehuels/stackforge/pkg/cache"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/expr"
)

// Strategy selects how a composition runs its refs.
type Strategy string

const (
	Sequential  Strategy = "sequential"
	Parallel    Strategy = "parallel"
	Conditional Strategy = "conditional"
	Pipeline    Strategy = "pipeline"
)

// Strategies lists every valid strategy.
var Strategies = []Strategy{Sequential, Parallel, Conditional, Pipeline}

// ErrorPolicy decides what a unit failure does to the rest of a run.
type ErrorPolicy string

const (
	FailFast ErrorPolicy = "fail-fast"
	Continue ErrorPolicy = "continue"
	Rollback ErrorPolicy = "rollback"
	Skip     ErrorPolicy = "skip"
)

// ErrorPolicies lists every valid error policy.
var ErrorPolicies = []ErrorPolicy{FailFast, Continue, Rollback, Skip}

// RollbackStrategy selects which compensating actions are recorded and
// replayed when a run fails.
type RollbackStrategy string

const (
	RollbackNone   RollbackStrategy = "none"
	RollbackFiles  RollbackStrategy = "files"
	RollbackFull   RollbackStrategy = "full"
	RollbackCustom RollbackStrategy = "custom"
)

// RollbackStrategies lists every valid rollback strategy.
var RollbackStrategies = []RollbackStrategy{RollbackNone, RollbackFiles, RollbackFull, RollbackCustom}

// Predicate is a typed alternative to a Condition string.
type Predicate func(c *Context) bool

// Ref requests one generator in a composition.
type Ref struct {
	ID        string         `json:"id" yaml:"id" toml:"id"`
	Version   string         `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Options   map[string]any `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
	Order     int            `json:"order" yaml:"order" toml:"order"`
	Parallel  bool           `json:"parallel,omitempty" yaml:"parallel,omitempty" toml:"parallel,omitempty"`
	Optional  bool           `json:"optional,omitempty" yaml:"optional,omitempty" toml:"optional,omitempty"`
	Condition string         `json:"condition,omitempty" yaml:"condition,omitempty" toml:"condition,omitempty"`

	Predicate Predicate `json:"-" yaml:"-" toml:"-"`

	// Synthesized marks refs the composer added for implicit dependencies.
	Synthesized bool `json:"synthesized,omitempty" yaml:"-" toml:"-"`
}

// HasCondition reports whether the ref carries a condition or predicate.
func (r *Ref) HasCondition() bool {
	return r.Condition != "" || r.Predicate != nil
}

func (r Ref) clone() Ref {
	r.Options = maps.Clone(r.Options)
	return r
}

// Spec is a composition request.
type Spec struct {
	Name          string           `json:"name" yaml:"name" toml:"name"`
	Refs          []Ref            `json:"generators" yaml:"generators" toml:"generators"`
	Execution     Strategy         `json:"execution" yaml:"execution" toml:"execution"`
	ErrorHandling ErrorPolicy      `json:"error_handling" yaml:"error_handling" toml:"error_handling"`
	Rollback      RollbackStrategy `json:"rollback" yaml:"rollback" toml:"rollback"`
	Variables     map[string]any   `json:"variables,omitempty" yaml:"variables,omitempty" toml:"variables,omitempty"`
}

// SetDefaults fills empty policy fields: sequential execution, fail-fast,
// no rollback.
func (s *Spec) SetDefaults() {
	if s.Execution == "" {
		s.Execution = Sequential
	}
	if s.ErrorHandling == "" {
		s.ErrorHandling = FailFast
	}
	if s.Rollback == "" {
		s.Rollback = RollbackNone
	}
	if s.Name == "" {
		s.Name = "composition"
	}
}

// Validate checks the spec's shape without consulting the registry:
// known policy values, at least one ref, unique valid ids and conditions
// that compile.
func (s *Spec) Validate() error {
	if !slices.Contains(Strategies, s.Execution) {
		return errors.Validation("unknown execution strategy %q", s.Execution)
	}
	if !slices.Contains(ErrorPolicies, s.ErrorHandling) {
		return errors.Validation("unknown error handling %q", s.ErrorHandling)
	}
	if !slices.Contains(RollbackStrategies, s.Rollback) {
		return errors.Validation("unknown rollback strategy %q", s.Rollback)
	}
	if len(s.Refs) == 0 {
		return errors.Validation("composition %s requests no generators", s.Name)
	}

	seen := make(map[string]bool, len(s.Refs))
	for _, r := range s.Refs {
		if err := errors.ValidateGeneratorID(r.ID); err != nil {
			return err
		}
		if seen[r.ID] {
			return errors.Validation("generator %s requested twice", r.ID)
		}
		seen[r.ID] = true
		if r.Condition != "" {
			if _, err := expr.Compile(r.Condition); err != nil {
				return errors.Wrap(errors.ErrCodeValidation, err, "generator %s", r.ID)
			}
		}
	}
	return nil
}

// Clone returns a copy whose refs, options and variables can be modified
// without affecting s.
func (s *Spec) Clone() *Spec {
	c := *s
	c.Refs = make([]Ref, len(s.Refs))
	for i, r := range s.Refs {
		c.Refs[i] = r.clone()
	}
	c.Variables = maps.Clone(s.Variables)
	return &c
}

// Hash returns a content hash of the serializable parts of the spec.
// Predicates are not part of it.
func (s *Spec) Hash() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return cache.Hash(data)
}

// sortByOrder returns refs stably sorted by Order.
func sortByOrder(refs []Ref) []Ref {
	out := slices.Clone(refs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
