package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillci/matrun/pkg/workflow"
)

func newEventsCmd() *cobra.Command {
	var (
		file string
		next int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show what a workflow triggers on",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := workflow.Load(file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wf.On.Push != nil {
				fmt.Fprintf(out, "push%s\n", branchList(wf.On.Push))
			}
			if wf.On.PullRequest != nil {
				fmt.Fprintf(out, "pull_request%s\n", branchList(wf.On.PullRequest))
			}
			for _, entry := range wf.On.Schedule {
				fmt.Fprintf(out, "schedule %q\n", entry.Cron)
			}

			if len(wf.On.Schedule) > 0 && next > 0 {
				from := time.Now()
				for i := 0; i < next; i++ {
					fire, err := wf.On.NextSchedule(from)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "  next: %s\n", fire.Format(time.RFC3339))
					from = fire
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "workflow.yaml", "workflow definition to inspect")
	cmd.Flags().IntVarP(&next, "next", "n", 3, "number of upcoming schedule fires to show")

	return cmd
}

func branchList(f *workflow.BranchFilter) string {
	if len(f.Branches) == 0 {
		return ""
	}

	return fmt.Sprintf(" (branches: %v)", f.Branches)
}
