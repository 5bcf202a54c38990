package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/iksnae/bob-the-lawyer/internal/chat"
	"github.com/spf13/cobra"
)

const chatHelp = `Commands:
  /attach <path>   attach a document to the next question
  /send            send the attached documents for analysis
  /files           list documents waiting to be sent
  /history         show the discussion so far
  /help            show this help
  /quit            leave the chat`

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat <discussion-id>",
	Short: "Talk with Bob interactively",
	Long: `Open an interactive session on a discussion. Each line you type is sent as a
question; lines starting with / are commands.

` + chatHelp,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		id := args[0]
		d, err := a.requireDiscussion(ctx, id)
		if err != nil {
			return err
		}
		a.warnMockFallback(cmd.ErrOrStderr())

		out := cmd.OutOrStdout()
		displayDiscussionHeader(out, d)
		fmt.Fprintln(out, idStyle.Render("Type a question, /help for commands, /quit to leave."))
		fmt.Fprintln(out)

		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		opts := sampleOptions(cmd)

		for {
			fmt.Fprint(out, userMessageStyle.Render("you>")+" ")
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			if strings.HasPrefix(line, "/") {
				quit, err := runChatCommand(cmd, a, id, line)
				if err != nil {
					return err
				}
				if quit {
					return nil
				}
				continue
			}

			if err := sendAndPrint(ctx, cmd, a.chat, id, line, opts); err != nil {
				internal.PrintError(out, err.Error())
			}
		}
	},
}

// runChatCommand handles one slash command and reports whether to quit
func runChatCommand(cmd *cobra.Command, a *app, id, line string) (bool, error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(out, chatHelp)
	case "/files":
		listPending(out, a.chat, id)
	case "/attach":
		if arg == "" {
			internal.PrintWarning(out, "usage: /attach <path>")
			return false, nil
		}
		if err := attachOne(ctx, out, a.chat, id, arg); err != nil {
			return false, err
		}
		if len(a.chat.PendingFiles(id)) > 0 {
			internal.PrintInfo(out, "Type a question to include the documents, or /send to have them analyzed")
		}
	case "/send":
		if len(a.chat.PendingFiles(id)) > 0 {
			internal.PrintInfo(out, chat.ReceivedNotice)
		}
		if err := sendAndPrint(ctx, cmd, a.chat, id, "", sampleOptions(cmd)); err != nil {
			internal.PrintError(out, err.Error())
		}
	case "/history":
		d, err := a.requireDiscussion(ctx, id)
		if err != nil {
			return false, err
		}
		bubbles := internal.RenderMessages(d.Messages)
		for i, m := range d.Messages {
			displayMessage(out, i+1, len(d.Messages), m, bubbles[i])
		}
	default:
		internal.PrintWarning(out, fmt.Sprintf("unknown command %s (try /help)", name))
	}
	return false, nil
}

func listPending(out io.Writer, svc *chat.Service, id string) {
	files := svc.PendingFiles(id)
	if len(files) == 0 {
		fmt.Fprintln(out, idStyle.Render("No documents waiting"))
		return
	}
	fmt.Fprintln(out, sectionStyle.Render("Waiting to be sent"))
	for _, f := range files {
		fmt.Fprintln(out, "  📄 "+f)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	addSampleFlags(chatCmd)
}
