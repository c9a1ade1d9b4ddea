package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"waggletag/internal/label"
	"waggletag/internal/logging"
	"waggletag/internal/session"
	"waggletag/internal/snippet"
	"waggletag/internal/store"
)

func newLabelsCommand(cmdCtx *commandContext) *cobra.Command {
	labelsCmd := &cobra.Command{
		Use:   "labels",
		Short: "Inspect and edit snippet labels",
	}

	labelsCmd.AddCommand(newLabelsListCommand(cmdCtx))
	labelsCmd.AddCommand(newLabelsShowCommand(cmdCtx))
	labelsCmd.AddCommand(newLabelsSetCommand(cmdCtx))

	return labelsCmd
}

func newLabelsListCommand(cmdCtx *commandContext) *cobra.Command {
	var tagFilters, danceFilters, sourceFilters []string
	var dateFilter string
	var cameraFilter int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List labeled snippets, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer labels.Close()

			filter, err := buildFilter(tagFilters, danceFilters, sourceFilters, dateFilter, cameraFilter, cmd.Flags().Changed("camera"))
			if err != nil {
				return err
			}

			entries, err := labels.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.Identity.Key(),
					displayName(string(entry.Label.TagStatus)),
					displayName(string(entry.Label.DanceType)),
					displayName(string(entry.Label.Source)),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Snippet", "Tag", "Dance", "Source"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}))
			fmt.Fprintf(out, "%d snippet(s)\n", len(entries))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tagFilters, "tag", nil, "Filter by tag status (repeatable)")
	cmd.Flags().StringSliceVar(&danceFilters, "dance", nil, "Filter by dance type (repeatable)")
	cmd.Flags().StringSliceVar(&sourceFilters, "source", nil, "Filter by label source (repeatable)")
	cmd.Flags().StringVar(&dateFilter, "date", "", "Filter by capture date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&cameraFilter, "camera", 0, "Filter by camera number")
	return cmd
}

func newLabelsShowCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Show the label and video location for one snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := snippet.ParseKey(args[0])
			if err != nil {
				return err
			}

			labels, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer labels.Close()

			manager, err := cmdCtx.newLayout()
			if err != nil {
				return err
			}

			lbl, err := labels.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			videoPath := "(missing)"
			if path, _, err := manager.Locate(id); err == nil {
				videoPath = path
			}

			rows := [][]string{
				{"Key", id.Key()},
				{"Tag status", displayName(string(lbl.TagStatus))},
				{"Dance type", displayName(string(lbl.DanceType))},
				{"Source", displayName(string(lbl.Source))},
				{"Video", videoPath},
			}
			if !lbl.UpdatedAt.IsZero() {
				rows = append(rows, []string{"Updated", lbl.UpdatedAt.Format("2006-01-02 15:04:05")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}
}

func newLabelsSetCommand(cmdCtx *commandContext) *cobra.Command {
	var tagValue, danceValue string

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Apply a label decision to one snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := snippet.ParseKey(args[0])
			if err != nil {
				return err
			}

			tagStatus, ok := label.ParseTagStatus(tagValue)
			if !ok {
				return fmt.Errorf("unknown tag status %q (expected one of %s)", tagValue, joinTagStatuses())
			}
			danceType, ok := label.ParseDanceType(danceValue)
			if !ok {
				return fmt.Errorf("unknown dance type %q (expected one of %s)", danceValue, joinDanceTypes())
			}

			labels, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer labels.Close()

			manager, err := cmdCtx.newLayout()
			if err != nil {
				return err
			}

			controller, err := session.NewController(labels, manager, logging.NewNop())
			if err != nil {
				return err
			}

			saved, err := controller.SetLabel(cmd.Context(), id, label.Label{
				TagStatus: tagStatus,
				DanceType: danceType,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s labeled %s / %s\n",
				id.Key(), displayName(string(saved.TagStatus)), displayName(string(saved.DanceType)))
			return nil
		},
	}

	cmd.Flags().StringVar(&tagValue, "tag", "", "Tag status to apply")
	cmd.Flags().StringVar(&danceValue, "dance", "", "Dance type to apply")
	_ = cmd.MarkFlagRequired("tag")
	_ = cmd.MarkFlagRequired("dance")
	return cmd
}

func buildFilter(tags, dances, sources []string, date string, camera int, cameraSet bool) (store.Filter, error) {
	var filter store.Filter
	for _, value := range tags {
		status, ok := label.ParseTagStatus(value)
		if !ok {
			return store.Filter{}, fmt.Errorf("unknown tag status %q (expected one of %s)", value, joinTagStatuses())
		}
		filter.TagStatuses = append(filter.TagStatuses, status)
	}
	for _, value := range dances {
		dance, ok := label.ParseDanceType(value)
		if !ok {
			return store.Filter{}, fmt.Errorf("unknown dance type %q (expected one of %s)", value, joinDanceTypes())
		}
		filter.DanceTypes = append(filter.DanceTypes, dance)
	}
	for _, value := range sources {
		source, ok := label.ParseSource(value)
		if !ok {
			return store.Filter{}, fmt.Errorf("unknown label source %q", value)
		}
		filter.Sources = append(filter.Sources, source)
	}
	if strings.TrimSpace(date) != "" {
		normalized, err := snippet.NormalizeDate(date)
		if err != nil {
			return store.Filter{}, err
		}
		filter.Date = normalized
	}
	if cameraSet {
		filter.Camera = &camera
	}
	return filter, nil
}

var displayCaser = cases.Title(language.Und)

// displayName turns a vocabulary value like "tag-not-visible" into a
// human-facing "Tag Not Visible".
func displayName(value string) string {
	return displayCaser.String(strings.ReplaceAll(value, "-", " "))
}

func joinTagStatuses() string {
	values := make([]string, 0, len(label.AllTagStatuses()))
	for _, status := range label.AllTagStatuses() {
		values = append(values, string(status))
	}
	return strings.Join(values, ", ")
}

func joinDanceTypes() string {
	values := make([]string, 0, len(label.AllDanceTypes()))
	for _, dance := range label.AllDanceTypes() {
		values = append(values, string(dance))
	}
	return strings.Join(values, ", ")
}
