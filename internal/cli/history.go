package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillci/matrun/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(cfg.History)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				res, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s on %s)\n",
					res.ID, res.Workflow, res.Event, res.Branch)
				renderRun(cmd.OutOrStdout(), res, nil)

				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), runs)

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")

	return cmd
}
