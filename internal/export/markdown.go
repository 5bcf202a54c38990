package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/bob-the-lawyer/internal"
)

// MarkdownExporter exports discussions as a readable transcript
type MarkdownExporter struct{}

// Export renders each message with its display label
func (e *MarkdownExporter) Export(d *internal.Discussion, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# Discussion %s\n\n", d.ID)

	if !d.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "**Started:** %s  \n", d.CreatedAt.UTC().Format(internal.TimestampLayout))
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(d.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	bubbles := internal.RenderMessages(d.Messages)
	for i, msg := range d.Messages {
		timestamp := ""
		if !msg.Timestamp.IsZero() {
			timestamp = fmt.Sprintf(" (%s)", msg.Timestamp.UTC().Format(internal.TimestampLayout))
		}

		b := bubbles[i]
		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", b.Label(), timestamp, escapeMarkdown(b.Text))

		if i < len(d.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

// escapeMarkdown escapes emphasis markers outside fenced code blocks
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
