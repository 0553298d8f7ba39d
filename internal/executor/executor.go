// Package executor runs the steps of a job instance: shell commands via
// os/exec plus the built-in actions the runner provides (checkout,
// setup-interpreter, install-pinned).
package executor

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/quillci/matrun/pkg/workflow"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrNoWorkspace   = errors.New("workspace must be set")
)

const defaultShell = "sh"

// Executor runs steps inside per-job workspaces.
type Executor struct {
	// RepoDir is the repository the checkout action copies from.
	RepoDir string
	// Toolcache holds installed interpreters, laid out as
	// <toolcache>/<tool>/<version>/.
	Toolcache string
	// Packages is the local artifact directory install-pinned verifies
	// against.
	Packages string
	Shell    string
	Logger   *slog.Logger
}

// Workspace is the mutable per-instance execution environment. Steps run in
// its directory and may extend its environment for later steps.
type Workspace struct {
	Dir string
	Env map[string]string
	// path holds directories prepended to PATH by setup actions.
	path []string
}

// NewWorkspace creates the working directory for one job instance.
func NewWorkspace(root, instanceID string) (*Workspace, error) {
	dir := filepath.Join(root, sanitize(instanceID))
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create workspace %s", dir)
	}

	return &Workspace{Dir: dir, Env: map[string]string{}}, nil
}

// Outcome is the result of one step. A non-zero exit code is a step failure
// and not an error; Err reports infrastructure problems only.
type Outcome struct {
	ExitCode int
	Output   string
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}

	return slog.Default()
}

func (e *Executor) shell() string {
	if e.Shell != "" {
		return e.Shell
	}

	return defaultShell
}

// ExecuteStep runs one step with the matrix parameters of the instance.
// Expressions of the form ${{ matrix.axis }} and ${{ env.NAME }} are
// interpolated in run scripts, with-values and step env.
func (e *Executor) ExecuteStep(ctx context.Context, ws *Workspace, step *workflow.Step, params, env map[string]string) (Outcome, error) {
	if ws == nil {
		return Outcome{}, ErrNoWorkspace
	}

	merged := mergeEnv(ws.Env, env, step.Env)
	for k, v := range merged {
		merged[k] = expand(v, params, merged)
	}

	if step.Uses != "" {
		return e.runAction(ctx, ws, step, params, merged)
	}

	return e.runScript(ctx, ws, step, params, merged)
}

func (e *Executor) runScript(ctx context.Context, ws *Workspace, step *workflow.Step, params, env map[string]string) (Outcome, error) {
	script := expand(step.Run, params, env)
	shell := step.Shell
	if shell == "" {
		shell = e.shell()
	}

	cmd := exec.CommandContext(ctx, shell, "-c", script)
	cmd.Dir = ws.Dir
	if step.WorkingDirectory != "" {
		cmd.Dir = filepath.Join(ws.Dir, step.WorkingDirectory)
	}
	cmd.Env = environ(ws, env)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	e.logger().Debug("running step", slog.String("step", step.Label()), slog.String("shell", shell))

	err := cmd.Run()
	outcome := Outcome{Output: buf.String()}
	if err != nil {
		if ctx.Err() != nil {
			return outcome, errors.Wrap(ctx.Err(), "step cancelled")
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()

			return outcome, nil
		}

		return outcome, errors.Wrapf(err, "unable to run step %q", step.Label())
	}

	return outcome, nil
}

// environ builds the subprocess environment: the parent environment with the
// workspace and step env layered on top and setup-provided PATH entries
// prepended.
func environ(ws *Workspace, env map[string]string) []string {
	base := os.Environ()
	out := make([]string, 0, len(base)+len(env))

	path := os.Getenv("PATH")
	if len(ws.path) > 0 {
		path = strings.Join(ws.path, string(os.PathListSeparator)) + string(os.PathListSeparator) + path
	}

	for _, kv := range base {
		if strings.HasPrefix(kv, "PATH=") {
			continue
		}
		out = append(out, kv)
	}
	out = append(out, "PATH="+path)
	for k, v := range env {
		out = append(out, k+"="+v)
	}

	return out
}

func mergeEnv(layers ...map[string]string) map[string]string {
	merged := map[string]string{}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}

	return merged
}

var exprPattern = regexp.MustCompile(`\$\{\{\s*(matrix|env)\.([A-Za-z0-9_-]+)\s*\}\}`)

func expand(s string, params, env map[string]string) string {
	return exprPattern.ReplaceAllStringFunc(s, func(m string) string {
		groups := exprPattern.FindStringSubmatch(m)
		switch groups[1] {
		case "matrix":
			return params[groups[2]]
		case "env":
			return env[groups[2]]
		}

		return m
	})
}

func sanitize(id string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)

	return strings.Trim(mapped, "_")
}
