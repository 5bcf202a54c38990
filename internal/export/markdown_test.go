package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iksnae/bob-the-lawyer/internal"
)

func TestMarkdownExporter_Export(t *testing.T) {
	tests := []struct {
		name       string
		discussion *internal.Discussion
		want       []string
		notWant    []string
	}{
		{
			name: "basic discussion",
			discussion: internal.CreateTestDiscussionValue(1,
				internal.Message{Sender: internal.SenderUser, Content: "Is a verbal contract valid?"},
				internal.Message{Sender: internal.SenderBot, Content: "Often, yes."},
			),
			want: []string{
				"# Discussion discussion_1",
				"**Started:** 2026-01-02 15:04:05",
				"**Messages:** 2",
				"## Messages",
				"**YOU:** (2026-01-02 15:04:05)",
				"Is a verbal contract valid?",
				"**BOB:** (2026-01-02 15:04:06)",
			},
		},
		{
			name: "file and unknown senders",
			discussion: internal.CreateTestDiscussionValue(2,
				internal.Message{Sender: internal.SenderFile, Content: "lease.pdf: The tenant shall..."},
				internal.Message{Sender: "auditor", Content: "checked"},
			),
			want: []string{
				"**FILE lease.pdf:**",
				"The tenant shall...",
				"Unknown (auditor): checked",
			},
		},
		{
			name:       "empty discussion",
			discussion: &internal.Discussion{ID: "discussion_3", Number: 3},
			want:       []string{"# Discussion discussion_3", "**Messages:** 0"},
			notWant:    []string{"**Started:**"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			exporter := &MarkdownExporter{}

			if err := exporter.Export(tt.discussion, &buf); err != nil {
				t.Fatalf("MarkdownExporter.Export() error = %v", err)
			}

			output := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("Output should contain %q\nGot:\n%s", want, output)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(output, nw) {
					t.Errorf("Output should not contain %q", nw)
				}
			}
		})
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "bold outside code",
			input: "this is **important**",
			want:  []string{`this is \*\*important\*\*`},
		},
		{
			name:  "code block preserved",
			input: "```\n**raw**\n```",
			want:  []string{"```", "**raw**"},
		},
		{
			name:  "underscores",
			input: "__init__",
			want:  []string{`\_\_init\_\_`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escapeMarkdown(tt.input)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("escapeMarkdown() = %q, should contain %q", got, want)
				}
			}
		})
	}
}

func TestMarkdownExporter_Extension(t *testing.T) {
	exporter := &MarkdownExporter{}
	if got := exporter.Extension(); got != "md" {
		t.Errorf("MarkdownExporter.Extension() = %v, want md", got)
	}
}
