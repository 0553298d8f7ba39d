package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/quillci/matrun/internal/store"
	"github.com/quillci/matrun/pkg/runner/drawer"
	"github.com/quillci/matrun/pkg/runner/measure"
	"github.com/quillci/matrun/pkg/workflow"
)

const defaultMaxParallel = 4

// JobExecutor runs a single job instance to completion. A returned error
// reports an infrastructure problem; jobs that merely fail their steps
// return a failed JobResult and a nil error.
type JobExecutor interface {
	ExecuteJob(ctx context.Context, inst workflow.Instance, env map[string]string) (JobResult, error)
}

// Runner executes workflows: it expands matrices, orders jobs by their
// needs and runs independent instances concurrently.
type Runner struct {
	jobs        JobExecutor
	maxParallel int
	failFast    *bool
	logger      *slog.Logger
	measure     *measure.Measure
	recorder    Recorder
	svgFileName string
}

// New creates a runner executing jobs through the given executor.
func New(jobs JobExecutor, opts ...Option) (*Runner, error) {
	if jobs == nil {
		return nil, ErrExecutorMustBeSet
	}

	r := &Runner{
		jobs:        jobs,
		maxParallel: defaultMaxParallel,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

type jobOutcome struct {
	idx    int
	result JobResult
}

// Run executes the workflow for an event and waits for every instance to
// reach a terminal state. Independent instances run concurrently up to the
// parallelism bound; instances whose needs failed are skipped.
func (r *Runner) Run(ctx context.Context, wf *workflow.Workflow, ev workflow.Event) (*RunResult, error) {
	if wf == nil {
		return nil, ErrWorkflowMustBeSet
	}
	if !wf.On.Matches(ev) {
		return nil, errors.Wrapf(ErrEventNotMatched, "%s", ev.Kind)
	}

	instances := expandAll(wf)
	jobStore, err := buildGraph(wf, instances)
	if err != nil {
		return nil, err
	}

	res := &RunResult{
		ID:       uuid.NewString(),
		Workflow: wf.Name,
		Event:    ev.Kind,
		Branch:   ev.Branch,
		Started:  time.Now(),
	}

	r.logger.Info("run started",
		slog.String("run", res.ID),
		slog.String("workflow", wf.Name),
		slog.String("event", string(ev.Kind)),
		slog.Int("instances", len(instances)))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// one cancellable context per job so fail-fast stops a matrix without
	// touching unrelated jobs
	groupCtx := make(map[string]context.Context, len(wf.Jobs))
	groupCancel := make(map[string]context.CancelFunc, len(wf.Jobs))
	groupSem := make(map[string]chan struct{}, len(wf.Jobs))
	for _, key := range wf.JobNames() {
		gctx, cancel := context.WithCancel(runCtx)
		groupCtx[key] = gctx
		groupCancel[key] = cancel
		defer cancel()

		if s := wf.Jobs[key].Strategy; s != nil && s.MaxParallel > 0 {
			groupSem[key] = make(chan struct{}, s.MaxParallel)
		}
	}

	total := len(instances)
	results := make([]JobResult, total)
	resultC := make(chan jobOutcome, total)
	sem := make(chan struct{}, r.maxParallel)
	errcList := &errorChans{}

	remaining := make(map[string]int, len(wf.Jobs))
	jobFailed := make(map[string]bool, len(wf.Jobs))
	for _, inst := range instances {
		remaining[inst.JobKey]++
	}

	launched := make([]bool, total)
	finished := make([]bool, total)
	done := 0

	record := func(idx int, jr JobResult) {
		results[idx] = jr
		finished[idx] = true
		done++

		jobStore.SetStatus(jr.ID, string(jr.Status))
		remaining[jr.JobKey]--
		if jr.Status != StatusSuccess {
			jobFailed[jr.JobKey] = true
		}

		if r.measure != nil {
			mt := r.measure.AddJob(jr.ID)
			for _, st := range jr.Steps {
				mt.AddStep(st.Name, st.Elapsed)
			}
			mt.SetElapsed(jr.Elapsed)
		}

		r.logger.Info("job finished",
			slog.String("job", jr.ID),
			slog.String("status", string(jr.Status)),
			slog.Duration("elapsed", jr.Elapsed))

		if jr.Status == StatusFailure && r.failFastFor(instances[idx].Job) {
			groupCancel[jr.JobKey]()
		}
	}

	launch := func(idx int, inst workflow.Instance) {
		launched[idx] = true
		errC := make(chan error, 1)
		errcList.add(newErrorChan(inst.ID, errC))
		gctx := groupCtx[inst.JobKey]
		gsem := groupSem[inst.JobKey]

		go func() {
			defer close(errC)

			cancelled := JobResult{ID: inst.ID, JobKey: inst.JobKey, Params: inst.Params, Status: StatusCancelled}

			select {
			case <-gctx.Done():
				resultC <- jobOutcome{idx, cancelled}

				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			if gsem != nil {
				select {
				case <-gctx.Done():
					resultC <- jobOutcome{idx, cancelled}

					return
				case gsem <- struct{}{}:
				}
				defer func() { <-gsem }()
			}

			jr, err := r.jobs.ExecuteJob(gctx, inst, wf.Env)
			if err != nil {
				errC <- err
			}
			resultC <- jobOutcome{idx, jr}
		}()
	}

	// dispatchOnce starts or skips every instance whose needs reached a
	// terminal state. It reports whether it made progress.
	dispatchOnce := func() bool {
		progress := false
		for idx, inst := range instances {
			if launched[idx] || finished[idx] {
				continue
			}
			runnable, skip := readiness(inst, remaining, jobFailed)
			if skip {
				record(idx, JobResult{ID: inst.ID, JobKey: inst.JobKey, Params: inst.Params, Status: StatusSkipped})
				progress = true

				continue
			}
			if runnable {
				launch(idx, inst)
				progress = true
			}
		}

		return progress
	}

	for {
		for dispatchOnce() {
		}
		if done == total {
			break
		}

		select {
		case <-ctx.Done():
			for idx, inst := range instances {
				if !finished[idx] {
					results[idx] = JobResult{ID: inst.ID, JobKey: inst.JobKey, Params: inst.Params, Status: StatusCancelled}
				}
			}
			r.finishRun(ctx, res, results, instances)
			res.Status = StatusCancelled

			return res, errors.Wrap(ctx.Err(), "run cancelled")
		case out := <-resultC:
			record(out.idx, out.result)
		}
	}

	infraErr := waitForRun(errcList.list...)

	r.finishRun(ctx, res, results, instances)
	if infraErr != nil {
		res.Status = StatusFailure

		return res, infraErr
	}

	return res, nil
}

func (r *Runner) finishRun(ctx context.Context, res *RunResult, results []JobResult, instances []workflow.Instance) {
	res.Jobs = results
	res.Elapsed = time.Since(res.Started)
	res.Status = computeStatus(results)

	if r.recorder != nil {
		// recording must survive a cancelled run context
		err := r.recorder.RecordRun(context.WithoutCancel(ctx), res)
		if err != nil {
			r.logger.Error("unable to record run", slog.String("run", res.ID), slog.Any("error", err))
		}
	}

	if r.svgFileName != "" {
		err := r.draw(instances, results)
		if err != nil {
			r.logger.Error("unable to draw run graph", slog.String("run", res.ID), slog.Any("error", err))
		}
	}
}

func (r *Runner) failFastFor(job *workflow.Job) bool {
	if r.failFast != nil {
		return *r.failFast
	}

	return job.Strategy.FailFastEnabled()
}

// readiness decides what to do with a pending instance: run it once every
// needed job finished successfully, skip it as soon as one needed job
// reached a non-success state.
func readiness(inst workflow.Instance, remaining map[string]int, jobFailed map[string]bool) (runnable, skip bool) {
	for _, need := range inst.Job.Needs {
		if jobFailed[need] {
			return false, true
		}
		if remaining[need] > 0 {
			return false, false
		}
	}

	return true, false
}

func expandAll(wf *workflow.Workflow) []workflow.Instance {
	var instances []workflow.Instance
	for _, key := range wf.JobNames() {
		instances = append(instances, workflow.Expand(key, wf.Jobs[key])...)
	}

	return instances
}

// buildGraph materialises the instance dependency graph on the job store
// and rejects cyclic needs.
func buildGraph(wf *workflow.Workflow, instances []workflow.Instance) (store.JobStore, error) {
	s := store.New()
	g := graph.NewWithStore(func(inst workflow.Instance) string { return inst.ID }, graph.Store[string, workflow.Instance](s), graph.Directed())

	byJob := make(map[string][]workflow.Instance, len(wf.Jobs))
	for _, inst := range instances {
		err := g.AddVertex(inst)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add job %s", inst.ID)
		}
		byJob[inst.JobKey] = append(byJob[inst.JobKey], inst)
	}

	for _, inst := range instances {
		for _, need := range inst.Job.Needs {
			for _, src := range byJob[need] {
				cycle, err := s.CreatesCycle(src.ID, inst.ID)
				if err != nil {
					return nil, err
				}
				if cycle {
					return nil, errors.Wrapf(ErrDependencyCycle, "%s and %s", inst.JobKey, need)
				}
				err = g.AddEdge(src.ID, inst.ID)
				if err != nil {
					return nil, errors.Wrapf(err, "unable to link %s to %s", src.ID, inst.ID)
				}
			}
		}
	}

	return s, nil
}

func (r *Runner) draw(instances []workflow.Instance, results []JobResult) error {
	d := drawer.NewSVGDrawer(r.svgFileName)

	byJob := make(map[string][]workflow.Instance, len(instances))
	for _, inst := range instances {
		err := d.AddJob(inst.ID)
		if err != nil {
			return err
		}
		byJob[inst.JobKey] = append(byJob[inst.JobKey], inst)
	}
	for _, inst := range instances {
		for _, need := range inst.Job.Needs {
			for _, src := range byJob[need] {
				err := d.AddDependency(src.ID, inst.ID)
				if err != nil {
					return err
				}
			}
		}
	}

	for _, jr := range results {
		err := d.SetStatus(jr.ID, string(jr.Status))
		if err != nil {
			return err
		}
		if jr.Elapsed > 0 {
			err = d.SetElapsed(jr.ID, jr.Elapsed)
			if err != nil {
				return err
			}
		}
	}

	return d.Draw()
}
