package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/quillci/matrun/internal/executor"
	"github.com/quillci/matrun/pkg/workflow"
)

// StepExecutor runs one step inside a workspace. *executor.Executor is the
// production implementation.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, ws *executor.Workspace, step *workflow.Step, params, env map[string]string) (executor.Outcome, error)
}

type jobExecutor struct {
	steps         StepExecutor
	workspaceRoot string
	logger        *slog.Logger
}

// NewJobExecutor returns the default JobExecutor: steps run strictly in
// order inside a fresh workspace, the first failure fails the job and skips
// the remaining steps.
func NewJobExecutor(steps StepExecutor, workspaceRoot string, logger *slog.Logger) JobExecutor {
	if logger == nil {
		logger = slog.Default()
	}

	return &jobExecutor{
		steps:         steps,
		workspaceRoot: workspaceRoot,
		logger:        logger,
	}
}

func (j *jobExecutor) ExecuteJob(ctx context.Context, inst workflow.Instance, env map[string]string) (JobResult, error) {
	jr := JobResult{
		ID:     inst.ID,
		JobKey: inst.JobKey,
		Params: inst.Params,
		Status: StatusSuccess,
	}
	start := time.Now()

	ws, err := executor.NewWorkspace(j.workspaceRoot, inst.ID)
	if err != nil {
		jr.Status = StatusFailure
		jr.Elapsed = time.Since(start)

		return jr, err
	}

	if inst.Job.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(inst.Job.TimeoutMinutes)*time.Minute)
		defer cancel()
	}

	jobEnv := map[string]string{}
	for k, v := range env {
		jobEnv[k] = v
	}
	for k, v := range inst.Job.Env {
		jobEnv[k] = v
	}

	for _, step := range inst.Job.Steps {
		if jr.Status != StatusSuccess {
			jr.Steps = append(jr.Steps, StepResult{Name: step.Label(), Status: StatusSkipped})

			continue
		}

		stepStart := time.Now()
		out, stepErr := j.steps.ExecuteStep(ctx, ws, step, inst.Params, jobEnv)
		sr := StepResult{
			Name:     step.Label(),
			ExitCode: out.ExitCode,
			Output:   out.Output,
			Elapsed:  time.Since(stepStart),
		}

		if stepErr != nil {
			if ctx.Err() == context.DeadlineExceeded {
				// a timed-out job is a failed job, not a cancelled one
				sr.Status = StatusFailure
				jr.Status = StatusFailure
				jr.Steps = append(jr.Steps, sr)

				continue
			}
			if ctx.Err() != nil {
				sr.Status = StatusCancelled
				jr.Status = StatusCancelled
				jr.Steps = append(jr.Steps, sr)

				continue
			}

			sr.Status = StatusFailure
			jr.Status = StatusFailure
			jr.Steps = append(jr.Steps, sr)
			jr.Elapsed = time.Since(start)

			return jr, stepErr
		}

		if out.ExitCode != 0 {
			sr.Status = StatusFailure
			jr.Status = StatusFailure
			j.logger.Debug("step failed",
				slog.String("job", inst.ID),
				slog.String("step", step.Label()),
				slog.Int("exit", out.ExitCode))
		} else {
			sr.Status = StatusSuccess
		}
		jr.Steps = append(jr.Steps, sr)
	}

	jr.Elapsed = time.Since(start)

	return jr, nil
}
