package unit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/matzehuels/stackforge/pkg/registry"
)

// Shell output directives. A shell unit reports what it did by printing
// lines that start with these prefixes; other stdout lines become the
// result message.
const (
	DirectiveFile    = "::file "
	DirectiveCommand = "::command "
	DirectiveUndo    = "::undo "
	DirectiveFail    = "::fail "
)

// Shell returns the runtime that runs a descriptor's Run field with
// "sh -c". Options are exported as STACKFORGE_OPTIONS (JSON) and as
// STACKFORGE_OPT_<KEY> for each top-level key. Declared outputs that
// exist after the run are reported as files.
func Shell() *Runtime {
	return &Runtime{
		Name: "shell",
		New: func(d *registry.Descriptor, cfg Config) (Unit, error) {
			if strings.TrimSpace(d.Run) == "" {
				return nil, fmt.Errorf("generator %s: shell runtime needs a run command", d.ID)
			}
			return &shellUnit{id: d.ID, run: d.Run, outputs: d.Outputs, cfg: cfg}, nil
		},
		Undo: func(ctx context.Context, command, inverse string, cfg Config) error {
			if inverse == "" {
				cfg.Logger.Debug("no inverse for command", "command", command)
				return nil
			}
			_, stderr, err := runShell(ctx, inverse, nil, cfg)
			if err != nil {
				return fmt.Errorf("undo %q: %w: %s", command, err, strings.TrimSpace(stderr))
			}
			return nil
		},
	}
}

type shellUnit struct {
	id      string
	run     string
	outputs []string
	cfg     Config
}

func (u *shellUnit) Generate(ctx context.Context, options map[string]any) (*Result, error) {
	env, err := optionEnv(options)
	if err != nil {
		return nil, fmt.Errorf("generator %s: %w", u.id, err)
	}
	env = append(env, "STACKFORGE_GENERATOR="+u.id)

	u.cfg.Logger.Debug("running shell unit", "generator", u.id, "command", u.run)
	stdout, stderr, runErr := runShell(ctx, u.run, env, u.cfg)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	res := parseOutput(stdout)
	res.Files = appendExisting(res.Files, u.outputs, u.cfg.WorkDir)

	if runErr != nil {
		res.Success = false
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = runErr.Error()
		}
		if res.Message == "" {
			res.Message = msg
		} else {
			res.Message += "\n" + msg
		}
	}
	return res, nil
}

func runShell(ctx context.Context, script string, env []string, cfg Config) (string, string, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	// #nosec G204 -- the script comes from a registered descriptor
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = cfg.WorkDir
	cmd.Env = append(append(os.Environ(), cfg.Env...), env...)
	// Children of sh may keep the output pipes open after a kill.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// optionEnv flattens options into environment variables.
func optionEnv(options map[string]any) ([]string, error) {
	all, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	env := []string{"STACKFORGE_OPTIONS=" + string(all)}

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var val string
		switch v := options[k].(type) {
		case string:
			val = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode option %s: %w", k, err)
			}
			val = string(b)
		}
		env = append(env, "STACKFORGE_OPT_"+envKey(k)+"="+val)
	}
	return env, nil
}

func envKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(k) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// parseOutput collects directives from stdout. An ::undo line applies to
// the command reported just before it.
func parseOutput(stdout string) *Result {
	res := &Result{Success: true}
	var msg []string
	sc := bufio.NewScanner(strings.NewReader(stdout))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, DirectiveFile):
			res.Files = append(res.Files, strings.TrimSpace(strings.TrimPrefix(line, DirectiveFile)))
		case strings.HasPrefix(line, DirectiveCommand):
			res.Commands = append(res.Commands, strings.TrimSpace(strings.TrimPrefix(line, DirectiveCommand)))
		case strings.HasPrefix(line, DirectiveUndo):
			if len(res.Commands) == 0 {
				continue
			}
			if res.Undo == nil {
				res.Undo = make(map[string]string)
			}
			res.Undo[res.Commands[len(res.Commands)-1]] = strings.TrimSpace(strings.TrimPrefix(line, DirectiveUndo))
		case strings.HasPrefix(line, DirectiveFail):
			res.Success = false
			msg = append(msg, strings.TrimSpace(strings.TrimPrefix(line, DirectiveFail)))
		default:
			if strings.TrimSpace(line) != "" {
				msg = append(msg, line)
			}
		}
	}
	res.Message = strings.Join(msg, "\n")
	return res
}

// appendExisting adds declared outputs that exist on disk and were not
// already reported.
func appendExisting(files, declared []string, workDir string) []string {
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f] = true
	}
	for _, out := range declared {
		if seen[out] {
			continue
		}
		p := out
		if !filepath.IsAbs(p) && workDir != "" {
			p = filepath.Join(workDir, p)
		}
		if _, err := os.Stat(p); err == nil {
			files = append(files, out)
			seen[out] = true
		}
	}
	return files
}
