package cmd

import (
	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:     "delete <discussion-id>...",
	Aliases: []string{"rm"},
	Short:   "Delete discussions and their messages",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, id := range args {
			if err := a.chat.Delete(ctx, id); err != nil {
				return withHint(err)
			}
			internal.PrintSuccess(out, "Deleted "+id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
