package executor_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillci/matrun/internal/executor"
	"github.com/quillci/matrun/pkg/workflow"
)

func newWorkspace(t *testing.T) *executor.Workspace {
	t.Helper()
	ws, err := executor.NewWorkspace(t.TempDir(), "typecheck (3.9)")
	require.NoError(t, err)

	return ws
}

func TestRunStepCapturesOutput(t *testing.T) {
	t.Parallel()

	e := &executor.Executor{}
	ws := newWorkspace(t)

	out, err := e.ExecuteStep(context.Background(), ws, &workflow.Step{Run: "echo hello"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "hello\n", out.Output)
}

func TestRunStepExitCode(t *testing.T) {
	t.Parallel()

	e := &executor.Executor{}
	ws := newWorkspace(t)

	out, err := e.ExecuteStep(context.Background(), ws, &workflow.Step{Run: "exit 3"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
}

func TestRunStepMatrixInterpolation(t *testing.T) {
	t.Parallel()

	e := &executor.Executor{}
	ws := newWorkspace(t)

	out, err := e.ExecuteStep(context.Background(), ws,
		&workflow.Step{Run: "echo ${{ matrix.interpreter }}"},
		map[string]string{"interpreter": "3.12"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "3.12\n", out.Output)
}

func TestRunStepEnvLayering(t *testing.T) {
	t.Parallel()

	e := &executor.Executor{}
	ws := newWorkspace(t)
	ws.Env["LAYER"] = "workspace"

	out, err := e.ExecuteStep(context.Background(), ws,
		&workflow.Step{Run: "echo $LAYER", Env: map[string]string{"LAYER": "step"}},
		nil, map[string]string{"LAYER": "job"})
	require.NoError(t, err)
	assert.Equal(t, "step\n", out.Output)
}

func TestRunStepCancelled(t *testing.T) {
	t.Parallel()

	e := &executor.Executor{}
	ws := newWorkspace(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.ExecuteStep(ctx, ws, &workflow.Step{Run: "sleep 5"}, nil, nil)
	require.Error(t, err)
}

func TestCheckoutCopiesTree(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "lib"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "lib", "codec.py"), []byte("pass\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repo, ".git", "HEAD"), []byte("ref\n"), 0o644))

	e := &executor.Executor{RepoDir: repo}
	ws := newWorkspace(t)

	out, err := e.ExecuteStep(context.Background(), ws, &workflow.Step{Uses: executor.ActionCheckout}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)

	assert.FileExists(t, filepath.Join(ws.Dir, "lib", "codec.py"))
	assert.NoDirExists(t, filepath.Join(ws.Dir, ".git"))
}

func TestSetupInterpreterMissingVersion(t *testing.T) {
	t.Parallel()

	e := &executor.Executor{Toolcache: t.TempDir()}
	ws := newWorkspace(t)

	out, err := e.ExecuteStep(context.Background(), ws, &workflow.Step{
		Uses: executor.ActionSetupInterpreter,
		With: map[string]string{"version": "3.12"},
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ExitCode)
}

func TestSetupInterpreterPrependsPath(t *testing.T) {
	t.Parallel()

	toolcache := t.TempDir()
	binDir := filepath.Join(toolcache, "python", "3.12", "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	script := "#!/bin/sh\necho fake-interpreter\n"
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "typecheck-tool"), []byte(script), 0o755))

	e := &executor.Executor{Toolcache: toolcache}
	ws := newWorkspace(t)

	out, err := e.ExecuteStep(context.Background(), ws, &workflow.Step{
		Uses: executor.ActionSetupInterpreter,
		With: map[string]string{"version": "${{ matrix.interpreter }}"},
	}, map[string]string{"interpreter": "3.12"}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, out.ExitCode)

	out, err = e.ExecuteStep(context.Background(), ws, &workflow.Step{Run: "typecheck-tool"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "fake-interpreter\n", out.Output)
}

func TestInstallPinnedVerifies(t *testing.T) {
	t.Parallel()

	packages := t.TempDir()
	artifact := []byte("wheel bytes")
	require.NoError(t, os.WriteFile(filepath.Join(packages, "mypy-1.10.0.whl"), artifact, 0o600))
	sum := sha256.Sum256(artifact)

	ws := newWorkspace(t)
	lock := "mypy==1.10.0 --hash=sha256:" + hex.EncodeToString(sum[:]) + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir, "requirements.txt"), []byte(lock), 0o600))

	e := &executor.Executor{Packages: packages}
	out, err := e.ExecuteStep(context.Background(), ws, &workflow.Step{
		Uses: executor.ActionInstallPinned,
		With: map[string]string{"lockfile": "requirements.txt"},
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
}

func TestInstallPinnedFailsClosed(t *testing.T) {
	t.Parallel()

	packages := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(packages, "mypy-1.10.0.whl"), []byte("tampered"), 0o600))

	ws := newWorkspace(t)
	lock := "mypy==1.10.0 --hash=sha256:" + hex.EncodeToString(make([]byte, 32)) + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir, "requirements.txt"), []byte(lock), 0o600))

	e := &executor.Executor{Packages: packages}
	out, err := e.ExecuteStep(context.Background(), ws, &workflow.Step{
		Uses: executor.ActionInstallPinned,
		With: map[string]string{"lockfile": "requirements.txt"},
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ExitCode)
	assert.Contains(t, out.Output, "digest")
}

func TestUnknownAction(t *testing.T) {
	t.Parallel()

	e := &executor.Executor{}
	ws := newWorkspace(t)

	_, err := e.ExecuteStep(context.Background(), ws, &workflow.Step{Uses: "publish"}, nil, nil)
	require.ErrorIs(t, err, executor.ErrUnknownAction)
}
