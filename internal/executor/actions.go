package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/quillci/matrun/internal/lockfile"
	"github.com/quillci/matrun/pkg/workflow"
)

// Built-in actions. They cover the fixed step sequence of a hosted
// type-checking job: fetch the sources, provision an interpreter and install
// hash-locked dependencies.
const (
	ActionCheckout         = "checkout"
	ActionSetupInterpreter = "setup-interpreter"
	ActionInstallPinned    = "install-pinned"
)

var ErrMissingWith = errors.New("action requires a with parameter")

func (e *Executor) runAction(ctx context.Context, ws *Workspace, step *workflow.Step, params, env map[string]string) (Outcome, error) {
	with := make(map[string]string, len(step.With))
	for k, v := range step.With {
		with[k] = expand(v, params, env)
	}

	switch step.Uses {
	case ActionCheckout:
		return e.checkout(ctx, ws)
	case ActionSetupInterpreter:
		return e.setupInterpreter(ws, with)
	case ActionInstallPinned:
		return e.installPinned(ws, with)
	}

	return Outcome{}, errors.Wrap(ErrUnknownAction, step.Uses)
}

// checkout copies the repository into the workspace. VCS metadata is left
// behind; jobs only need the working tree.
func (e *Executor) checkout(ctx context.Context, ws *Workspace) (Outcome, error) {
	if e.RepoDir == "" {
		return Outcome{}, errors.New("executor has no repository directory")
	}

	err := copyTree(ctx, e.RepoDir, ws.Dir)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "unable to checkout repository")
	}

	e.logger().Debug("checked out repository", slog.String("from", e.RepoDir), slog.String("to", ws.Dir))

	return Outcome{Output: fmt.Sprintf("checked out %s\n", e.RepoDir)}, nil
}

// setupInterpreter resolves a versioned interpreter from the toolcache and
// prepends its bin directory to the workspace PATH. A version absent from
// the toolcache fails the step rather than downloading anything.
func (e *Executor) setupInterpreter(ws *Workspace, with map[string]string) (Outcome, error) {
	version := with["version"]
	if version == "" {
		return Outcome{}, errors.Wrap(ErrMissingWith, "version")
	}
	tool := with["tool"]
	if tool == "" {
		tool = "python"
	}

	binDir := filepath.Join(e.Toolcache, tool, version, "bin")
	info, err := os.Stat(binDir)
	if err != nil || !info.IsDir() {
		return Outcome{
			ExitCode: 1,
			Output:   fmt.Sprintf("%s %s: no %s\n", tool, version, binDir),
		}, nil
	}

	ws.path = append([]string{binDir}, ws.path...)
	ws.Env["MATRUN_TOOL"] = tool
	ws.Env["MATRUN_TOOL_VERSION"] = version

	e.logger().Debug("interpreter ready", slog.String("tool", tool), slog.String("version", version))

	return Outcome{Output: fmt.Sprintf("using %s %s from %s\n", tool, version, binDir)}, nil
}

// installPinned verifies the artifacts named by a lockfile against their
// sha256 digests. Verification failures fail the step closed; nothing is
// installed past a bad digest.
func (e *Executor) installPinned(ws *Workspace, with map[string]string) (Outcome, error) {
	path := with["lockfile"]
	if path == "" {
		return Outcome{}, errors.Wrap(ErrMissingWith, "lockfile")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(ws.Dir, path)
	}
	packages := with["packages"]
	if packages == "" {
		packages = e.Packages
	}

	lf, err := lockfile.Load(path)
	if err != nil {
		return Outcome{ExitCode: 1, Output: err.Error() + "\n"}, nil
	}

	err = lf.Verify(packages)
	if err != nil {
		return Outcome{ExitCode: 1, Output: err.Error() + "\n"}, nil
	}

	return Outcome{Output: fmt.Sprintf("verified %d pinned requirements\n", len(lf.Requirements))}, nil
}

func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()

		return err
	}

	return out.Close()
}
