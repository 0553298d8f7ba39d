package runner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillci/matrun/internal/executor"
	"github.com/quillci/matrun/pkg/runner"
	"github.com/quillci/matrun/pkg/workflow"
)

func TestExecuteJobStepsRunInOrder(t *testing.T) {
	t.Parallel()

	inst := workflow.Instance{
		ID:     "typecheck (3.12)",
		JobKey: "typecheck",
		Params: map[string]string{"interpreter": "3.12"},
		Job: &workflow.Job{
			Steps: []*workflow.Step{
				{Name: "first", Run: "echo one"},
				{Name: "second", Run: "echo ${{ matrix.interpreter }}"},
				{Name: "third", Run: "exit 2"},
				{Name: "fourth", Run: "echo never"},
			},
		},
	}

	je := runner.NewJobExecutor(&executor.Executor{}, t.TempDir(), nil)
	jr, err := je.ExecuteJob(context.Background(), inst, nil)
	require.NoError(t, err)

	assert.Equal(t, runner.StatusFailure, jr.Status)
	require.Len(t, jr.Steps, 4)
	assert.Equal(t, runner.StatusSuccess, jr.Steps[0].Status)
	assert.Equal(t, "3.12\n", jr.Steps[1].Output)
	assert.Equal(t, runner.StatusFailure, jr.Steps[2].Status)
	assert.Equal(t, 2, jr.Steps[2].ExitCode)
	assert.Equal(t, runner.StatusSkipped, jr.Steps[3].Status)
}

func TestExecuteJobEnvLayers(t *testing.T) {
	t.Parallel()

	inst := workflow.Instance{
		ID:     "build",
		JobKey: "build",
		Job: &workflow.Job{
			Env:   map[string]string{"WHO": "job"},
			Steps: []*workflow.Step{{Run: "echo $WHO"}},
		},
	}

	je := runner.NewJobExecutor(&executor.Executor{}, t.TempDir(), nil)
	jr, err := je.ExecuteJob(context.Background(), inst, map[string]string{"WHO": "workflow"})
	require.NoError(t, err)

	require.Len(t, jr.Steps, 1)
	assert.Equal(t, "job\n", jr.Steps[0].Output)
	assert.Equal(t, runner.StatusSuccess, jr.Status)
}
