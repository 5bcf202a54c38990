package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discussions",
	Long: `List every discussion in the store, most recently created first, with its
message count and first question.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		discussions, err := loadAll(ctx, a.store)
		if err != nil {
			return err
		}
		displayDiscussions(cmd.OutOrStdout(), discussions, time.Now())
		return nil
	},
}

// loadAll reads every listed discussion with its messages
func loadAll(ctx context.Context, store internal.DiscussionStore) ([]*internal.Discussion, error) {
	ids, err := store.ListDiscussions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list discussions: %w", err)
	}
	out := make([]*internal.Discussion, 0, len(ids))
	for _, id := range ids {
		d, err := internal.LoadDiscussion(ctx, store, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", id, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func displayDiscussions(out io.Writer, discussions []*internal.Discussion, now time.Time) {
	if len(discussions) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📋 No discussions yet"))
		fmt.Fprintln(out, idStyle.Render("💡 Tip: Start one with `bob new`"))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 Found %s", plural(len(discussions), "discussion"))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Started")+"\t"+titleStyle.Render("First question")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 90))

	for _, d := range discussions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			idStyle.Render(d.ID),
			countStyle.Render(strconv.Itoa(len(d.Messages))),
			dateStyle.Render(formatWhen(d.CreatedAt, now)),
			firstQuestion(d, 40))
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, idStyle.Render("💡 Tip: Use `bob show "+discussions[0].ID+"` to read a discussion"))
}

// firstQuestion is a one-line preview of the first user message
func firstQuestion(d *internal.Discussion, max int) string {
	for _, m := range d.Messages {
		if m.Sender != internal.SenderUser {
			continue
		}
		line, _, _ := strings.Cut(strings.TrimSpace(m.Content), "\n")
		if r := []rune(line); len(r) > max {
			return string(r[:max-3]) + "..."
		}
		return line
	}
	return dateStyle.Render("—")
}

func init() {
	rootCmd.AddCommand(listCmd)
}
