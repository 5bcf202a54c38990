package cmd

import (
	"fmt"
	"strings"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/iksnae/bob-the-lawyer/internal/export"
	"github.com/spf13/cobra"
)

var (
	format        string
	outputDir     string
	discussionIDs []string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export discussions to files",
	Long: fmt.Sprintf(`Export discussions to one file per discussion (%s) plus an
index.yaml describing what was written.

You can export every discussion or pick some with --discussion.
Use 'bob list' to see available discussion IDs.`, strings.Join(export.Formats, ", ")),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		writer, err := export.NewWriter(outputDir, format)
		if err != nil {
			return err
		}

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()
		writer.Store = storeLabel(a)

		var discussions []*internal.Discussion
		var index *export.Index
		steps := []internal.ProgressStep{
			{
				Message: "Loading discussions",
				Fn: func() error {
					if len(discussionIDs) == 0 {
						discussions, err = loadAll(ctx, a.store)
						return err
					}
					for _, id := range discussionIDs {
						d, err := a.requireDiscussion(ctx, id)
						if err != nil {
							return err
						}
						discussions = append(discussions, d)
					}
					return nil
				},
			},
			{
				Message: fmt.Sprintf("Writing %s files to %s", writer.Format, outputDir),
				Fn: func() error {
					index, err = writer.WriteAll(discussions)
					return err
				},
			},
		}
		if err := internal.ShowProgressWithSteps(ctx, steps); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if skipped := len(discussions) - len(index.Discussions); skipped > 0 {
			internal.PrintWarning(out, fmt.Sprintf("%s could not be exported (see log)", plural(skipped, "discussion")))
		}
		internal.PrintSuccess(out, fmt.Sprintf("Export complete: %s exported to %s", plural(len(index.Discussions), "discussion"), outputDir))
		return nil
	},
}

// storeLabel names the store in export metadata without leaking credentials
func storeLabel(a *app) string {
	if a.cfg.DatabaseURL != "" {
		return a.store.Dialect()
	}
	return a.cfg.DatabasePath
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format ("+strings.Join(export.Formats, ", ")+")")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().StringSliceVarP(&discussionIDs, "discussion", "d", nil, "Export only these discussions (repeatable)")
}
