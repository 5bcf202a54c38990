package cmd

import (
	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/iksnae/bob-the-lawyer/internal/chat"
	"github.com/spf13/cobra"
)

var attachAnalyze bool

// attachCmd represents the attach command
var attachCmd = &cobra.Command{
	Use:   "attach <discussion-id> <file>...",
	Short: "Add documents to a discussion",
	Long: `Read documents and record them in a discussion as an upload notice plus a
file preview. Supported types: pdf, docx, pptx, xlsx, txt, md, csv and
images (png, jpg, jpeg, tif, tiff, bmp) read through OCR.

Documents only reach Bob together with a question from the same run: pass
--analyze to have them analyzed right away, or use 'bob ask --attach'.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, attachAnalyze)
		if err != nil {
			return err
		}
		defer a.Close()

		id := args[0]
		if _, err := a.requireDiscussion(ctx, id); err != nil {
			return err
		}
		a.warnMockFallback(cmd.ErrOrStderr())

		out := cmd.OutOrStdout()
		for _, path := range args[1:] {
			if err := attachOne(ctx, out, a.chat, id, path); err != nil {
				return err
			}
		}

		if !attachAnalyze || len(a.chat.PendingFiles(id)) == 0 {
			return nil
		}
		internal.PrintInfo(out, chat.ReceivedNotice)
		return sendAndPrint(ctx, cmd, a.chat, id, "", sampleOptions(cmd))
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)
	attachCmd.Flags().BoolVar(&attachAnalyze, "analyze", false, "Ask Bob to analyze the documents after attaching them")
	addSampleFlags(attachCmd)
}
