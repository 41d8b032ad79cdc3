// Package pkg provides the core libraries for Stackforge generator composition.
//
// # Overview
//
// Stackforge keeps a registry of code generators, each described by a
// manifest that names its version, its dependencies on other generators and
// the conditions under which it applies. A composition picks a set of
// generators, and Stackforge runs them in dependency order, collects the
// files they produce and rolls everything back when a step fails.
//
// # Architecture
//
// The typical data flow through Stackforge:
//
//	Generator manifests (TOML/YAML/JSON)
//	         ↓
//	    [manifest] package (load and validate descriptors)
//	         ↓
//	    [registry] package (dependency graph, version ranges, conflicts)
//	         ↓
//	    [compose] package (plan, execute, rollback)
//	         ↓
//	    [unit] package (invoke generator units)
//
// # Quick Start
//
// Register generators and run a composition:
//
//	reg := registry.New(registry.Options{})
//	_ = reg.Register(ctx, model)
//	_ = reg.Register(ctx, api)
//
//	c, _ := compose.New(compose.Options{
//	    Resolver: reg,
//	    Factory:  unit.NewRuntimes(unit.Config{}),
//	})
//	spec, _ := specfile.Load("compose.yaml")
//	outcome, err := c.Execute(ctx, spec)
//
// # Main Packages
//
// ## Composition
//
// [registry] - Registered generator descriptors, version range resolution,
// dependency and dependent queries, and conflict detection.
//
// [compose] - Composition planning and execution with sequential, parallel
// and dependency-ordered strategies, plus batch execution.
//
// [unit] - Runtimes that invoke generator units (in-process functions and
// shell commands).
//
// [expr] - Condition evaluation for generators that only apply to some
// compositions.
//
// ## Inputs
//
// [manifest] - Loads descriptors from a manifest directory and watches it
// for changes.
//
// [specfile] - Reads composition specs from YAML, JSON or HCL.
//
// ## Graphs
//
// [dag] - The directed graph behind the registry's dependency queries.
//
// [graph] - JSON interchange format for dependency graphs.
//
// [render] - DOT, SVG, PDF and PNG output for dependency graphs.
//
// ## Infrastructure
//
// [storage] - Persistence for registered descriptors (file, SQLite, MongoDB).
//
// [cache] - Byte caching with memory, file and Redis backends.
//
// [events] - Lifecycle signals from the registry and the composer.
//
// [observability] - Hooks for metrics and tracing, with an OpenTelemetry
// implementation in observability/tracing.
//
// [errors] - Structured error codes shared by every package.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/registry/...           # Specific package
//	go test -run Example                 # Examples only
//
// Redis and MongoDB backends are tested against live servers when
// STACKFORGE_TEST_REDIS_ADDR and STACKFORGE_TEST_MONGO_URI are set.
//
// [registry]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/registry
// [compose]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/compose
// [unit]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/unit
// [expr]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/expr
// [manifest]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/manifest
// [specfile]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/specfile
// [dag]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/dag
// [graph]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/graph
// [render]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/render
// [storage]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/storage
// [cache]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/cache
// [events]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/events
// [observability]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/stackforge/pkg/errors
package pkg
