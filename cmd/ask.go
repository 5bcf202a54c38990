package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/iksnae/bob-the-lawyer/internal/chat"
	"github.com/iksnae/bob-the-lawyer/internal/reply"
	"github.com/spf13/cobra"
)

var (
	askAttach       []string
	askMaxNewTokens int
	askTemperature  float64
	askTopP         float64
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <discussion-id> [question...]",
	Short: "Ask Bob a question in a discussion",
	Long: `Record a question in a discussion, generate Bob's reply and record it.

Attached documents are read, summarized into the discussion and sent along
with the question. With attachments and no question Bob is asked to analyze
the documents.

A failed reply is shown as a warning and recorded in the discussion; it never
loses the question.`,
	Example: `  bob ask discussion_1 "Can my employer change my hours without notice?"
  bob ask discussion_1 --attach contract.pdf "Is the non-compete enforceable?"
  bob ask discussion_1 --attach lease.docx --attach photo.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, true)
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
		for _, path := range askAttach {
			if err := attachOne(ctx, out, a.chat, id, path); err != nil {
				return err
			}
		}

		question := strings.TrimSpace(strings.Join(args[1:], " "))
		if question == "" && len(a.chat.PendingFiles(id)) > 0 {
			internal.PrintInfo(out, chat.ReceivedNotice)
		}
		return sendAndPrint(ctx, cmd, a.chat, id, question, sampleOptions(cmd))
	},
}

// attachOne records one document. Extraction failures are shown and
// recorded but do not stop the command.
func attachOne(ctx context.Context, out io.Writer, svc *chat.Service, id, path string) error {
	res, err := svc.AttachFile(ctx, id, path)
	if err != nil {
		return fmt.Errorf("failed to record attachment %s: %w", path, err)
	}
	if res.Err != nil {
		for _, m := range res.Messages {
			internal.PrintError(out, m.Content)
		}
		return nil
	}
	internal.PrintSuccess(out, "Attached "+res.Name)
	for _, b := range internal.RenderMessages(res.Messages) {
		if b.Kind == internal.BubbleFile {
			fmt.Fprintln(out, bubbleHeader(b))
			fmt.Fprintln(out, renderBubble(b))
		}
	}
	return nil
}

// sendAndPrint sends the question with a spinner on stderr and prints the reply
func sendAndPrint(ctx context.Context, cmd *cobra.Command, svc *chat.Service, id, question string, opts []reply.Option) error {
	var ex chat.Exchange
	err := internal.ShowProgressTo(ctx, cmd.ErrOrStderr(), chat.PendingReplyMessage, func() error {
		var err error
		ex, err = svc.Send(ctx, id, question, opts...)
		return err
	})
	if errors.Is(err, chat.ErrEmptyPrompt) {
		return fmt.Errorf("%w (pass a question or --attach a document)", err)
	}
	if err != nil {
		return withHint(err)
	}
	printExchange(cmd.OutOrStdout(), ex)
	return nil
}

func printExchange(out io.Writer, ex chat.Exchange) {
	if !ex.Result.OK() {
		internal.PrintWarning(out, ex.Display())
		return
	}
	b := internal.RenderMessage(ex.Reply)
	fmt.Fprintln(out, bubbleHeader(b))
	fmt.Fprintln(out, renderBubble(b))
	internal.LogDebug("Reply from %s in %s", ex.Result.Backend, ex.Result.Elapsed)
}

// sampleOptions turns explicitly set sampling flags into per-call options
func sampleOptions(cmd *cobra.Command) []reply.Option {
	var opts []reply.Option
	flags := cmd.Flags()
	if flags.Changed("max-new-tokens") {
		opts = append(opts, reply.WithMaxNewTokens(askMaxNewTokens))
	}
	if flags.Changed("temperature") {
		opts = append(opts, reply.WithTemperature(askTemperature))
	}
	if flags.Changed("top-p") {
		opts = append(opts, reply.WithTopP(askTopP))
	}
	return opts
}

func addSampleFlags(cmd *cobra.Command) {
	defaults := reply.DefaultParams()
	cmd.Flags().IntVar(&askMaxNewTokens, "max-new-tokens", defaults.MaxNewTokens, "Maximum number of tokens to generate")
	cmd.Flags().Float64Var(&askTemperature, "temperature", defaults.Temperature, "Sampling temperature")
	cmd.Flags().Float64Var(&askTopP, "top-p", defaults.TopP, "Nucleus sampling probability")
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringSliceVarP(&askAttach, "attach", "a", nil, "Attach a document (repeatable)")
	addSampleFlags(askCmd)
}
