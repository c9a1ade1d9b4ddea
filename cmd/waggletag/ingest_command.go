package main

import (
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"waggletag/internal/ingest"
	"waggletag/internal/layout"
	"waggletag/internal/preflight"
	"waggletag/internal/store"
	"waggletag/internal/transcode"
)

func newIngestCommand(cmdCtx *commandContext) *cobra.Command {
	var workers int
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "ingest <input_dir> [output_dir]",
		Short: "Encode a raw detection tree into the labeled snippet library",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if len(args) > 1 {
				cfg.Paths.OutputDir = args[1]
			}
			if workers > 0 {
				cfg.Ingest.Workers = workers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.RequireOutputDir(); err != nil {
				return err
			}

			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !skipPreflight {
				results := preflight.RunAll(ctx, cfg)
				if !preflight.AllPassed(results) {
					fmt.Fprintln(cmd.OutOrStdout(), renderPreflight(results))
					return fmt.Errorf("preflight checks failed")
				}
			}

			labels, err := store.Open(cfg.Paths.OutputDir)
			if err != nil {
				return err
			}
			defer labels.Close()

			pipeline, err := ingest.NewPipeline(cfg, labels,
				layout.NewManager(cfg.Paths.OutputDir, logger),
				transcode.NewFFmpeg(cfg.FFmpeg, transcode.WithLogger(logger)),
				logger)
			if err != nil {
				return err
			}

			report, err := pipeline.Run(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderIngestReport(report))
			if len(report.Failures) > 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), renderFailures(report.Failures))
				return fmt.Errorf("%d snippet(s) failed to ingest", len(report.Failures))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Override the configured worker count")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip environment checks before the run")
	return cmd
}

func renderIngestReport(report ingest.Report) string {
	rows := [][]string{
		{"Ingested", strconv.Itoa(report.Ingested)},
		{"Skipped (already present)", strconv.Itoa(report.SkippedExisting)},
		{"Failed", strconv.Itoa(report.Failed)},
		{"Malformed candidates", strconv.Itoa(len(report.Skips))},
	}
	return renderTable([]string{"Outcome", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderFailures(failures []ingest.Failure) string {
	sorted := make([]ingest.Failure, len(failures))
	copy(sorted, failures)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Identity.Less(sorted[j].Identity)
	})

	rows := make([][]string, 0, len(sorted))
	for _, failure := range sorted {
		retry := "no"
		if failure.Recoverable {
			retry = "yes"
		}
		rows = append(rows, []string{failure.Identity.Key(), retry, failure.Err.Error()})
	}
	return renderTable([]string{"Snippet", "Retryable", "Error"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft})
}

func renderPreflight(results []preflight.Result) string {
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		state := "FAIL"
		if result.Passed {
			state = "ok"
		}
		rows = append(rows, []string{result.Name, state, result.Detail})
	}
	return renderTable([]string{"Check", "State", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft})
}
