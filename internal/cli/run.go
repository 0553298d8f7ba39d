package cli

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/quillci/matrun/internal/executor"
	"github.com/quillci/matrun/internal/history"
	"github.com/quillci/matrun/pkg/runner"
	"github.com/quillci/matrun/pkg/runner/measure"
	"github.com/quillci/matrun/pkg/workflow"
)

var errRunFailed = errors.New("run failed")

func newRunCmd() *cobra.Command {
	var (
		file      string
		event     string
		branch    string
		job       string
		failFast  bool
		graphOut  string
		noHistory bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a workflow for an event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := workflow.Load(file)
			if err != nil {
				return err
			}
			if job != "" {
				wf, err = selectJob(wf, job)
				if err != nil {
					return err
				}
			}

			ev := workflow.Event{
				Kind:   workflow.EventKind(event),
				Branch: branch,
				Time:   time.Now(),
			}

			exec := &executor.Executor{
				RepoDir:   cfg.Repo,
				Toolcache: cfg.Toolcache,
				Packages:  cfg.Packages,
				Shell:     cfg.Shell,
				Logger:    logger,
			}

			msr := measure.New()
			opts := []runner.Option{
				runner.WithMaxParallel(cfg.MaxParallel),
				runner.WithLogger(logger),
				runner.WithMeasure(msr),
			}
			if cmd.Flags().Changed("fail-fast") {
				opts = append(opts, runner.WithFailFast(failFast))
			}
			if graphOut != "" {
				opts = append(opts, runner.WithDrawer(graphOut))
			}
			if !noHistory {
				store, err := history.Open(cfg.History)
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, runner.WithRecorder(store))
			}

			r, err := runner.New(runner.NewJobExecutor(exec, cfg.Workspace, logger), opts...)
			if err != nil {
				return err
			}

			res, err := r.Run(cmd.Context(), wf, ev)
			if err != nil {
				return err
			}

			renderRun(cmd.OutOrStdout(), res, msr)
			if res.Status != runner.StatusSuccess {
				return errors.Wrapf(errRunFailed, "status %s", res.Status)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "workflow.yaml", "workflow definition to run")
	cmd.Flags().StringVarP(&event, "event", "e", string(workflow.PushEvent), "event to run for (push|pull_request|schedule)")
	cmd.Flags().StringVarP(&branch, "branch", "b", "main", "branch the event refers to")
	cmd.Flags().StringVarP(&job, "job", "j", "", "run only this job, ignoring its needs")
	cmd.Flags().BoolVar(&failFast, "fail-fast", true, "override the fail-fast policy of every matrix")
	cmd.Flags().StringVar(&graphOut, "graph", "", "write the run graph as SVG to this file")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the run")

	return cmd
}

// selectJob narrows a workflow to a single job. Its needs are dropped so the
// job runs on its own.
func selectJob(wf *workflow.Workflow, key string) (*workflow.Workflow, error) {
	j, ok := wf.Jobs[key]
	if !ok {
		return nil, errors.Errorf("workflow %q has no job %q", wf.Name, key)
	}

	only := *j
	only.Needs = nil
	wf.Jobs = map[string]*workflow.Job{key: &only}

	return wf, nil
}
