package cmd

import (
	"fmt"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/spf13/cobra"
)

// newCmd represents the new command
var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new discussion",
	Long: `Create a new, empty discussion and print its identifier.

Discussion numbers only ever increase; a deleted discussion's number is never
handed out again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.store.CreateDiscussion(ctx)
		if err != nil {
			return fmt.Errorf("failed to create discussion: %w", err)
		}

		out := cmd.OutOrStdout()
		internal.PrintSuccess(out, "Created "+id)
		fmt.Fprintln(out, idStyle.Render(fmt.Sprintf("💡 Tip: Ask a question with `bob ask %s \"...\"`", id)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
}
