package runner

import (
	"time"

	"github.com/quillci/matrun/pkg/workflow"
)

// Status is the terminal state of a run, job or step.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// StepResult records one executed (or skipped) step of a job instance.
type StepResult struct {
	Name     string
	Status   Status
	ExitCode int
	Elapsed  time.Duration
	Output   string
}

// JobResult records the outcome of one job instance.
type JobResult struct {
	ID      string
	JobKey  string
	Params  map[string]string
	Status  Status
	Steps   []StepResult
	Elapsed time.Duration
}

// RunResult is the outcome of a whole workflow run.
type RunResult struct {
	ID       string
	Workflow string
	Event    workflow.EventKind
	Branch   string
	Status   Status
	Started  time.Time
	Elapsed  time.Duration
	Jobs     []JobResult
}

// Failed returns the job results that ended in failure.
func (r *RunResult) Failed() []JobResult {
	var failed []JobResult
	for _, job := range r.Jobs {
		if job.Status == StatusFailure {
			failed = append(failed, job)
		}
	}

	return failed
}

// computeStatus derives the run status from its jobs: any failure fails the
// run, a cancellation without failure marks it cancelled, otherwise success.
// Skipped jobs alone do not fail a run.
func computeStatus(jobs []JobResult) Status {
	status := StatusSuccess
	for _, job := range jobs {
		switch job.Status {
		case StatusFailure:
			return StatusFailure
		case StatusCancelled:
			status = StatusCancelled
		case StatusSuccess, StatusSkipped:
		}
	}

	return status
}
