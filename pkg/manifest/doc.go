// Package manifest loads generator descriptors from a directory of
// manifest files.
//
// Each generator lives in its own directory named after its id; namespaced
// ids ("go/model") use one level of nesting. The directory holds exactly one
// manifest in any supported format:
//
//	generators/
//	  model/generator.toml
//	  api/generator.yaml
//	  go/handler/generator.json
//
// A manifest carries the same fields as [registry.Descriptor]:
//
//	id = "api"
//	name = "REST API"
//	version = "1.2.0"
//	runtime = "shell"
//	run = "./gen-api.sh"
//
//	[[dependencies]]
//	id = "model"
//	range = "^1.0.0"
//	required = true
//
// [Loader] implements [registry.Loader], so a registry consults the
// directory for ids it does not hold. Parsed manifests are cached keyed by
// path, modification time and size; an edited manifest is re-read.
//
// [Watcher] reports changes below the directory with debouncing so
// long-running processes can pick up new generators.
package manifest
