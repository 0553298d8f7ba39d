package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillci/matrun/pkg/workflow"
)

func newValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a workflow definition without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := workflow.Load(file)
			if err != nil {
				return err
			}

			instances := 0
			for _, key := range wf.JobNames() {
				instances += len(workflow.Expand(key, wf.Jobs[key]))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d jobs, %d instances\n", wf.Name, len(wf.Jobs), instances)

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "workflow.yaml", "workflow definition to validate")

	return cmd
}
