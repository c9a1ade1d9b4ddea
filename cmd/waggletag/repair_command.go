package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRepairCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Move misplaced videos back under their labeled buckets",
		Long: "Walks every labeled snippet and compares its on-disk bucket with the " +
			"durable label. Videos found in the wrong bucket are moved; snippets " +
			"whose video is missing everywhere are reported so they can be re-ingested. " +
			"Videos on disk with no label record are registered under the bucket " +
			"they sit in.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer labels.Close()

			manager, err := cmdCtx.newLayout()
			if err != nil {
				return err
			}

			report, err := manager.Reconcile(cmd.Context(), labels)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checked %d snippet(s): %d moved, %d adopted, %d missing\n",
				report.Checked, report.Moved, report.Adopted, len(report.Missing))
			for _, key := range report.Missing {
				fmt.Fprintf(out, "  missing video: %s\n", key)
			}
			return nil
		},
	}
}
