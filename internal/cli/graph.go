package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillci/matrun/pkg/runner/drawer"
	"github.com/quillci/matrun/pkg/workflow"
)

func newGraphCmd() *cobra.Command {
	var (
		file   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the expanded job graph of a workflow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := workflow.Load(file)
			if err != nil {
				return err
			}

			d := drawer.NewSVGDrawer(output)
			byJob := map[string][]workflow.Instance{}
			for _, key := range wf.JobNames() {
				for _, inst := range workflow.Expand(key, wf.Jobs[key]) {
					err = d.AddJob(inst.ID)
					if err != nil {
						return err
					}
					byJob[key] = append(byJob[key], inst)
				}
			}
			for _, key := range wf.JobNames() {
				for _, inst := range byJob[key] {
					for _, need := range inst.Job.Needs {
						for _, src := range byJob[need] {
							err = d.AddDependency(src.ID, inst.ID)
							if err != nil {
								return err
							}
						}
					}
				}
			}

			err = d.Draw()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "workflow.yaml", "workflow definition to render")
	cmd.Flags().StringVarP(&output, "output", "o", "workflow.svg", "output file")

	return cmd
}
