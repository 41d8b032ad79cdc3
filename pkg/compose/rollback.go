package compose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/events"
	"github.com/matzehuels/stackforge/pkg/observability"
)

// ActionType tags a RollbackAction.
type ActionType string

const (
	FileDelete  ActionType = "file-delete"
	FileRestore ActionType = "file-restore"
	CommandUndo ActionType = "command-undo"
	Custom      ActionType = "custom"
)

// RollbackAction is a recorded compensating operation. It holds only data:
// command-undo and custom actions name a handler that is looked up in the
// composer's undo-handler table when the action is replayed.
type RollbackAction struct {
	Type    ActionType        `json:"type"`
	Target  string            `json:"target"`
	Payload map[string]string `json:"payload,omitempty"`
	Handler string            `json:"handler,omitempty"`
	Source  string            `json:"source"` // generator id that caused the action
}

// Payload keys.
const (
	PayloadContent = "content" // prior file content for file-restore
	PayloadMode    = "mode"    // prior file mode for file-restore, octal
	PayloadUndo    = "undo"    // inverse command for command-undo
)

// UndoHandler replays a command-undo or custom action.
type UndoHandler func(ctx context.Context, action RollbackAction) error

// CustomHandlerName is the handler name custom actions for generator id use.
func CustomHandlerName(id string) string { return "generator:" + id }

// RegisterUndoHandler adds a handler to the undo table. Command-undo
// actions look handlers up by runtime name; custom actions by
// CustomHandlerName(id).
func (c *Composer) RegisterUndoHandler(name string, h UndoHandler) {
	c.undoMu.Lock()
	defer c.undoMu.Unlock()
	c.undo[name] = h
}

func (c *Composer) undoHandler(name string) (UndoHandler, bool) {
	c.undoMu.RLock()
	h, ok := c.undo[name]
	c.undoMu.RUnlock()
	if ok {
		return h, true
	}
	if u, ok := c.factory.(CommandUndoer); ok && u.CanUndo(name) {
		return func(ctx context.Context, a RollbackAction) error {
			return u.Undo(ctx, name, a.Target, a.Payload[PayloadUndo])
		}, true
	}
	return nil, false
}

// rollback replays the run's actions in reverse creation order. Failures
// are logged and kept on the run context, never escalated. A run is
// rolled back at most once.
func (c *Composer) rollback(ctx context.Context, rc *Context) {
	actions, ok := rc.takeActions()
	if !ok {
		return
	}
	c.logger.Info("rolling back", "run", rc.RunID, "actions", len(actions))

	// Compensation must run even when the run was canceled.
	ctx = context.WithoutCancel(ctx)

	var failures []error
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		err := c.apply(ctx, a)
		observability.Composition().OnRollback(ctx, rc.RunID, string(a.Type), a.Target, err)
		c.events.Publish(events.RollbackAction, Event{RunID: rc.RunID, Action: &a, Err: errString(err)})
		if err != nil {
			rerr := &errors.RollbackError{Action: string(a.Type), Target: a.Target, Cause: err}
			c.logger.Warn("rollback action failed", "run", rc.RunID, "error", rerr)
			failures = append(failures, rerr)
			continue
		}
		c.logger.Debug("rolled back", "run", rc.RunID, "action", a.Type, "target", a.Target)
	}

	rc.mu.Lock()
	rc.rollbackErrs = append(rc.rollbackErrs, failures...)
	rc.mu.Unlock()
}

func (c *Composer) apply(ctx context.Context, a RollbackAction) error {
	switch a.Type {
	case FileDelete:
		err := os.Remove(c.path(a.Target))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	case FileRestore:
		mode := os.FileMode(0o644)
		if m, ok := a.Payload[PayloadMode]; ok {
			var parsed uint32
			if _, err := fmt.Sscanf(m, "%o", &parsed); err == nil {
				mode = os.FileMode(parsed)
			}
		}
		p := c.path(a.Target)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		return os.WriteFile(p, []byte(a.Payload[PayloadContent]), mode)
	case CommandUndo, Custom:
		h, ok := c.undoHandler(a.Handler)
		if !ok {
			return fmt.Errorf("no undo handler %q", a.Handler)
		}
		return h(ctx, a)
	}
	return fmt.Errorf("unknown rollback action %q", a.Type)
}

// path resolves a tracked path against the work directory.
func (c *Composer) path(p string) string {
	if c.workDir == "" {
		return p
	}
	return filepath.Join(c.workDir, filepath.FromSlash(p))
}

// tracked normalizes a unit-reported path for rollback bookkeeping. An
// absolute path inside the work directory becomes relative to it; every
// other path must pass ValidatePath.
func (c *Composer) tracked(p string) (string, error) {
	if filepath.IsAbs(p) && c.workDir != "" {
		rel, err := filepath.Rel(c.workDir, p)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", errors.New(errors.ErrCodeInvalidPath, "path is outside the work directory")
		}
		p = filepath.ToSlash(rel)
	}
	if err := errors.ValidatePath(p); err != nil {
		return "", err
	}
	return p, nil
}

// maxSnapshotSize bounds the prior content kept for file-restore actions.
const maxSnapshotSize = 1 << 20

type snapshot struct {
	content string
	mode    os.FileMode
}

// snapshotOutputs reads declared outputs that exist before a unit runs so
// that rollback can restore them instead of deleting them.
func (c *Composer) snapshotOutputs(outputs []string) map[string]snapshot {
	var snaps map[string]snapshot
	for _, declared := range outputs {
		out, err := c.tracked(declared)
		if err != nil {
			continue
		}
		info, err := os.Stat(c.path(out))
		if err != nil || !info.Mode().IsRegular() || info.Size() > maxSnapshotSize {
			continue
		}
		data, err := os.ReadFile(c.path(out))
		if err != nil {
			continue
		}
		if snaps == nil {
			snaps = make(map[string]snapshot)
		}
		snaps[out] = snapshot{content: string(data), mode: info.Mode().Perm()}
	}
	return snaps
}

// actionsFor derives the compensating actions for a successful unit.
func (c *Composer) actionsFor(spec *Spec, id, runtime string, files, commands []string, undo map[string]string, snaps map[string]snapshot) []RollbackAction {
	var actions []RollbackAction
	for _, reported := range files {
		f, err := c.tracked(reported)
		if err != nil {
			c.logger.Warn("unit reported an unsafe path; not tracked for rollback", "generator", id, "path", reported, "error", err)
			continue
		}
		if s, ok := snaps[f]; ok {
			actions = append(actions, RollbackAction{
				Type:    FileRestore,
				Target:  f,
				Payload: map[string]string{PayloadContent: s.content, PayloadMode: fmt.Sprintf("%o", s.mode)},
				Source:  id,
			})
			continue
		}
		actions = append(actions, RollbackAction{Type: FileDelete, Target: f, Source: id})
	}

	switch spec.Rollback {
	case RollbackFull:
		if runtime == "" {
			runtime = defaultRuntime
		}
		if _, ok := c.undoHandler(runtime); ok {
			for _, cmd := range commands {
				actions = append(actions, RollbackAction{
					Type:    CommandUndo,
					Target:  cmd,
					Payload: map[string]string{PayloadUndo: undo[cmd]},
					Handler: runtime,
					Source:  id,
				})
			}
		}
	case RollbackCustom:
		name := CustomHandlerName(id)
		if _, ok := c.undoHandler(name); ok {
			actions = append(actions, RollbackAction{Type: Custom, Target: id, Handler: name, Source: id})
		}
	}
	return actions
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
