package workflow

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

var (
	ErrNoJobs          = errors.New("workflow must define at least one job")
	ErrNoSteps         = errors.New("job must define at least one step")
	ErrNoTriggers      = errors.New("workflow must define at least one trigger")
	ErrStepAction      = errors.New("step must set exactly one of uses and run")
	ErrUnknownNeed     = errors.New("job requires an undefined job")
	ErrEmptyMatrixAxis = errors.New("matrix axis must list at least one value")
)

// Workflow is a parsed workflow definition.
type Workflow struct {
	Name string          `yaml:"name"`
	On   Triggers        `yaml:"on"`
	Env  map[string]string `yaml:"env,omitempty"`
	Jobs map[string]*Job `yaml:"jobs"`
}

// Job is a single job template. With a matrix strategy it expands into one
// instance per matrix combination.
type Job struct {
	Name           string            `yaml:"name,omitempty"`
	RunsOn         string            `yaml:"runs-on,omitempty"`
	Needs          []string          `yaml:"needs,omitempty"`
	TimeoutMinutes int               `yaml:"timeout-minutes,omitempty"`
	Strategy       *Strategy         `yaml:"strategy,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	Steps          []*Step           `yaml:"steps"`
}

// Strategy controls matrix expansion and the failure policy across the
// expanded instances.
type Strategy struct {
	// FailFast defaults to true when unset, matching hosted runners.
	FailFast    *bool                          `yaml:"fail-fast,omitempty"`
	MaxParallel int                            `yaml:"max-parallel,omitempty"`
	Matrix      map[string][]string            `yaml:"matrix,omitempty"`
	Include     []map[string]string            `yaml:"include,omitempty"`
	Exclude     []map[string]string            `yaml:"exclude,omitempty"`
}

// FailFastEnabled reports the effective fail-fast policy.
func (s *Strategy) FailFastEnabled() bool {
	if s == nil || s.FailFast == nil {
		return true
	}

	return *s.FailFast
}

// Step is one entry of a job's step list. Exactly one of Uses and Run must
// be set.
type Step struct {
	Name             string            `yaml:"name,omitempty"`
	Uses             string            `yaml:"uses,omitempty"`
	Run              string            `yaml:"run,omitempty"`
	Shell            string            `yaml:"shell,omitempty"`
	With             map[string]string `yaml:"with,omitempty"`
	Env              map[string]string `yaml:"env,omitempty"`
	WorkingDirectory string            `yaml:"working-directory,omitempty"`
}

// Label returns the display name of the step.
func (s *Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Uses != "" {
		return s.Uses
	}

	return s.Run
}

// Validate checks the structural invariants of the workflow.
func (w *Workflow) Validate() error {
	if len(w.Jobs) == 0 {
		return ErrNoJobs
	}
	if w.On.empty() {
		return ErrNoTriggers
	}

	for _, name := range w.JobNames() {
		job := w.Jobs[name]
		err := job.validate(name, w.Jobs)
		if err != nil {
			return err
		}
	}

	return w.On.validate()
}

func (j *Job) validate(name string, all map[string]*Job) error {
	if len(j.Steps) == 0 {
		return errors.Wrapf(ErrNoSteps, "job %q", name)
	}

	for i, step := range j.Steps {
		hasUses := step.Uses != ""
		hasRun := step.Run != ""
		if hasUses == hasRun {
			return errors.Wrapf(ErrStepAction, "job %q step %d", name, i+1)
		}
	}

	for _, need := range j.Needs {
		if _, ok := all[need]; !ok {
			return errors.Wrapf(ErrUnknownNeed, "job %q needs %q", name, need)
		}
	}

	if j.Strategy != nil {
		for axis, values := range j.Strategy.Matrix {
			if len(values) == 0 {
				return errors.Wrapf(ErrEmptyMatrixAxis, "job %q axis %q", name, axis)
			}
		}
	}

	return nil
}

// JobNames returns job identifiers in a stable sorted order.
func (w *Workflow) JobNames() []string {
	names := make([]string, 0, len(w.Jobs))
	for name := range w.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// DisplayName returns the job's declared name or its map key.
func (j *Job) DisplayName(key string) string {
	if j.Name != "" {
		return j.Name
	}

	return key
}

func (j *Job) String() string {
	return fmt.Sprintf("job(%s, %d steps)", j.Name, len(j.Steps))
}
