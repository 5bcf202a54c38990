package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/spf13/cobra"
)

var (
	limit int
	since string
)

var (
	discussionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	discussionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <discussion-id>",
	Short: "Show the messages of a discussion",
	Long: `Display the messages of a discussion in the order they were written.

Uploaded documents appear as file bubbles with their preview; failures and
notices appear as Bob's messages.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var sinceTime time.Time
		if since != "" {
			t, err := parseSince(since)
			if err != nil {
				return err
			}
			sinceTime = t
		}

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.requireDiscussion(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		displayDiscussionHeader(out, d)

		messages := d.Messages
		if !sinceTime.IsZero() {
			filtered := make([]internal.Message, 0, len(messages))
			for _, m := range messages {
				if !m.Timestamp.Before(sinceTime) {
					filtered = append(filtered, m)
				}
			}
			messages = filtered
		}

		total := len(messages)
		if limit > 0 && limit < total {
			messages = messages[:limit]
		}
		bubbles := internal.RenderMessages(messages)
		for i, m := range messages {
			displayMessage(out, i+1, total, m, bubbles[i])
		}

		if limit > 0 && limit < total {
			fmt.Fprintln(out)
			fmt.Fprintln(out, timestampStyle.Render(fmt.Sprintf("... (%d more message(s))", total-limit)))
		}
		return nil
	},
}

// parseSince accepts RFC3339 or the stored "2006-01-02 15:04:05" UTC form
func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(internal.TimestampLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since timestamp %q (expected RFC3339 or %q)", v, internal.TimestampLayout)
	}
	return t, nil
}

func displayDiscussionHeader(out io.Writer, d *internal.Discussion) {
	fmt.Fprintln(out, discussionHeaderStyle.Render("⚖️  "+d.ID))

	var meta []string
	if !d.CreatedAt.IsZero() {
		meta = append(meta, "Started: "+d.CreatedAt.UTC().Format(internal.TimestampLayout))
	}
	meta = append(meta, fmt.Sprintf("Messages: %d", len(d.Messages)))
	fmt.Fprintln(out, discussionMetaStyle.Render(strings.Join(meta, " • ")))
	fmt.Fprintln(out)
}

func displayMessage(out io.Writer, index, total int, m internal.Message, b internal.Bubble) {
	header := bubbleHeader(b) + " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	if !m.Timestamp.IsZero() {
		header += " " + timestampStyle.Render(m.Timestamp.UTC().Format(internal.TimestampLayout))
	}
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, renderBubble(b))
	fmt.Fprintln(out)
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of messages to show")
	showCmd.Flags().StringVar(&since, "since", "", "Show messages since timestamp (RFC3339 or 2006-01-02 15:04:05 UTC)")
}
