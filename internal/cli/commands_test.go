package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/stackforge/pkg/compose"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/registry"
)

// sandbox isolates config lookup, the cache and the default file store in
// a temp directory that becomes the working directory.
func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Chdir(dir)
	return dir
}

// runCLI executes the root command and returns what it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	prevOut, prevErr := stdout, stderr
	stdout, stderr = &out, io.Discard
	defer func() { stdout, stderr = prevOut, prevErr }()

	root := New(io.Discard, LogInfo).RootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const modelManifest = `
id = "model"
name = "Model"
version = "1.0.0"
description = "data models"
run = "echo generated > model.txt"
outputs = ["model.txt"]
`

const apiManifest = `
id = "api"
name = "API"
version = "1.1.0"
run = "echo generated > api.txt"
outputs = ["api.txt"]

[[dependencies]]
id = "model"
range = "^1.0.0"
required = true
`

func addGenerators(t *testing.T, dir string) {
	t.Helper()
	model := writeFile(t, filepath.Join(dir, "manifests", "model.toml"), modelManifest)
	api := writeFile(t, filepath.Join(dir, "manifests", "api.toml"), apiManifest)
	_, err := runCLI(t, "generator", "add", model, api)
	require.NoError(t, err)
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell runtime needs sh")
	}
}

func TestGeneratorLifecycle(t *testing.T) {
	dir := sandbox(t)
	addGenerators(t, dir)

	out, err := runCLI(t, "generator", "list", "--json")
	require.NoError(t, err)
	var ds []*registry.Descriptor
	require.NoError(t, json.Unmarshal([]byte(out), &ds))
	require.Equal(t, []string{"api", "model"}, registry.IDs(ds))

	out, err = runCLI(t, "generator", "show", "api", "--json")
	require.NoError(t, err)
	var api registry.Descriptor
	require.NoError(t, json.Unmarshal([]byte(out), &api))
	require.Equal(t, "1.1.0", api.Version)

	out, err = runCLI(t, "generator", "deps", "api")
	require.NoError(t, err)
	require.Less(t, strings.Index(out, "model"), strings.Index(out, "api"), out)

	out, err = runCLI(t, "generator", "dependents", "model")
	require.NoError(t, err)
	require.Equal(t, "api\n", out)

	_, err = runCLI(t, "generator", "remove", "model")
	require.True(t, errors.Is(err, errors.ErrCodeDependentsExist), "err = %v", err)

	_, err = runCLI(t, "generator", "remove", "api")
	require.NoError(t, err)
	_, err = runCLI(t, "generator", "remove", "model")
	require.NoError(t, err)

	out, err = runCLI(t, "generator", "list")
	require.NoError(t, err)
	require.Contains(t, out, "No generators registered")
}

func TestGeneratorAddRejectsConflict(t *testing.T) {
	dir := sandbox(t)
	addGenerators(t, dir)

	gorm := writeFile(t, filepath.Join(dir, "manifests", "gorm.toml"), `
id = "gorm"
name = "GORM"
version = "1.0.0"
run = "true"
conflicts = ["model"]
`)
	_, err := runCLI(t, "generator", "add", gorm)
	require.True(t, errors.Is(err, errors.ErrCodeConflict), "err = %v", err)
}

func TestGeneratorListIncludesManifestDir(t *testing.T) {
	dir := sandbox(t)
	writeFile(t, filepath.Join(dir, "generators", "model", "generator.toml"), modelManifest)

	out, err := runCLI(t, "generator", "list")
	require.NoError(t, err)
	require.Contains(t, out, "model")
	require.Contains(t, out, "data models")
}

func TestGraphCommand(t *testing.T) {
	dir := sandbox(t)
	addGenerators(t, dir)

	out, err := runCLI(t, "graph")
	require.NoError(t, err)
	require.Contains(t, out, `"api" -> "model"`)

	out, err = runCLI(t, "graph", "-f", "json", "-o", "out/graph.json")
	require.NoError(t, err)
	require.Contains(t, out, "out/graph.json")

	out, err = runCLI(t, "graph", "--input", "out/graph.json", "--detailed")
	require.NoError(t, err)
	require.Contains(t, out, `"api" -> "model"`)
	require.Contains(t, out, "v1.1.0")

	out, err = runCLI(t, "graph", "--root", "model")
	require.NoError(t, err)
	require.NotContains(t, out, `"api"`)

	_, err = runCLI(t, "graph", "-f", "gif")
	require.Error(t, err)
	_, err = runCLI(t, "graph", "--root", "absent")
	require.True(t, errors.Is(err, errors.ErrCodeNotFound), "err = %v", err)
}

func TestComposeRun(t *testing.T) {
	skipWithoutShell(t)
	dir := sandbox(t)
	addGenerators(t, dir)
	spec := writeFile(t, filepath.Join(dir, "svc.yaml"), "name: svc\ngenerators:\n  - id: api\n")

	out, err := runCLI(t, "compose", "run", spec, "--json")
	require.NoError(t, err, out)

	var outcome compose.Outcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	require.True(t, outcome.Success)
	require.Equal(t, []string{"model", "api"}, outcome.ExecutionOrder)
	require.FileExists(t, filepath.Join(dir, "model.txt"))
	require.FileExists(t, filepath.Join(dir, "api.txt"))
}

func TestComposeRunFailureRollsBack(t *testing.T) {
	skipWithoutShell(t)
	dir := sandbox(t)
	addGenerators(t, dir)
	broken := writeFile(t, filepath.Join(dir, "manifests", "broken.toml"), `
id = "broken"
name = "Broken"
version = "1.0.0"
run = "echo '::fail schema missing'"
`)
	_, err := runCLI(t, "generator", "add", broken)
	require.NoError(t, err)
	spec := writeFile(t, filepath.Join(dir, "svc.yaml"), `
name: svc
error_handling: rollback
rollback: files
generators:
  - id: model
    order: 1
  - id: broken
    order: 2
`)

	out, err := runCLI(t, "compose", "run", spec)
	require.Error(t, err)
	require.Contains(t, out, "schema missing")
	require.NoFileExists(t, filepath.Join(dir, "model.txt"))
}

func TestComposeRunBatch(t *testing.T) {
	skipWithoutShell(t)
	dir := sandbox(t)
	addGenerators(t, dir)
	a := writeFile(t, filepath.Join(dir, "a.yaml"), "name: a\ngenerators:\n  - id: model\n")
	b := writeFile(t, filepath.Join(dir, "b.json"), `{"name":"b","generators":[{"id":"api"}]}`)

	out, err := runCLI(t, "compose", "run", a, b, "--limit", "1")
	require.NoError(t, err, out)
	require.Contains(t, out, "2 compositions succeeded")
}

func TestComposePlan(t *testing.T) {
	dir := sandbox(t)
	addGenerators(t, dir)
	spec := writeFile(t, filepath.Join(dir, "svc.toml"), `
name = "svc"
execution = "pipeline"

[[generators]]
id = "api"
`)

	out, err := runCLI(t, "compose", "plan", spec, "--json")
	require.NoError(t, err)
	var plan compose.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	ids := make([]string, len(plan.Refs))
	for i, r := range plan.Refs {
		ids[i] = r.ID
	}
	require.Equal(t, []string{"model", "api"}, ids)
	require.Equal(t, compose.Pipeline, plan.Execution)
	require.NoFileExists(t, filepath.Join(dir, "api.txt"))

	out, err = runCLI(t, "compose", "plan", spec, "--execution", "parallel")
	require.NoError(t, err)
	require.Contains(t, out, "implicit")
}

func TestComposeRejectsBadOverride(t *testing.T) {
	dir := sandbox(t)
	spec := writeFile(t, filepath.Join(dir, "svc.yaml"), "name: svc\ngenerators:\n  - id: api\n")

	_, err := runCLI(t, "compose", "plan", spec, "--on-error", "shrug")
	require.Error(t, err)
	_, err = runCLI(t, "compose", "plan", spec, "--var", "novalue")
	require.Error(t, err)
}

func TestParseVars(t *testing.T) {
	got, err := parseVars([]string{"db=postgres", "auth_enabled=true", "replicas=3", "list=[a, b]", "empty="})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"db":           "postgres",
		"auth_enabled": true,
		"replicas":     3,
		"list":         "[a, b]",
		"empty":        "",
	}, got)

	_, err = parseVars([]string{"=x"})
	require.Error(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	dir := sandbox(t)

	out, err := runCLI(t, "config", "init")
	require.NoError(t, err)
	require.Contains(t, out, filepath.Join(".stackforge", "config.yaml"))
	require.FileExists(t, filepath.Join(dir, ".stackforge", "config.yaml"))

	_, err = runCLI(t, "config", "init")
	require.Error(t, err)

	out, err = runCLI(t, "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "generators_dir: generators")
	require.Contains(t, out, "batch_limit: 4")

	out, err = runCLI(t, "--generators-dir", "gens", "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "generators_dir: gens")
}

func TestInvalidConfigFails(t *testing.T) {
	dir := sandbox(t)
	writeFile(t, filepath.Join(dir, ".stackforge", "config.yaml"), "store:\n  backend: floppy\n")

	_, err := runCLI(t, "generator", "list")
	require.Error(t, err)

	// config init still works so a broken config can be replaced.
	_, err = runCLI(t, "config", "init", filepath.Join(dir, "fresh.yaml"))
	require.NoError(t, err)
}

func TestCacheCommands(t *testing.T) {
	dir := sandbox(t)

	out, err := runCLI(t, "cache", "path")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "cache", appName)+"\n", out)

	out, err = runCLI(t, "cache", "clear")
	require.NoError(t, err)
	require.Contains(t, out, "Cleared the file cache")

	out, err = runCLI(t, "--no-cache", "cache", "clear")
	require.NoError(t, err)
	require.Contains(t, out, "nothing to clear")
}

func TestVersionFlag(t *testing.T) {
	sandbox(t)
	out, err := runCLI(t, "--version")
	require.NoError(t, err)
	require.Contains(t, out, "version")
}

func TestCompletion(t *testing.T) {
	dir := sandbox(t)
	addGenerators(t, dir)

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		out, err := runCLI(t, "completion", shell)
		require.NoError(t, err, shell)
		require.Contains(t, out, "stackforge", shell)
	}

	_, err := runCLI(t, "completion", "tcsh")
	require.Error(t, err)

	out, err := runCLI(t, cobra.ShellCompRequestCmd, "generator", "show", "m")
	require.NoError(t, err)
	require.Contains(t, out, "model\tdata models")
	require.NotContains(t, out, "api")
}
