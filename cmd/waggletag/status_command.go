package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"waggletag/internal/label"
	"waggletag/internal/preflight"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show environment health and library counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			results := preflight.RunAll(cmd.Context(), cfg)
			fmt.Fprintln(out, renderPreflight(results))

			labels, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer labels.Close()

			stats, err := labels.Stats(cmd.Context())
			if err != nil {
				return err
			}

			total := 0
			rows := make([][]string, 0, len(stats)+1)
			for _, status := range label.AllTagStatuses() {
				count := stats[status]
				total += count
				rows = append(rows, []string{displayName(string(status)), strconv.Itoa(count)})
			}
			rows = append(rows, []string{"Total", strconv.Itoa(total)})

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable([]string{"Bucket", "Snippets"}, rows,
				[]columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
