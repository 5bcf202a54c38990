package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/iksnae/bob-the-lawyer/internal"
)

func TestJSONLExporter_Export(t *testing.T) {
	tests := []struct {
		name       string
		discussion *internal.Discussion
		want       []string
		wantLines  int
	}{
		{
			name:       "empty discussion",
			discussion: internal.CreateTestDiscussionValue(1),
			wantLines:  0,
		},
		{
			name: "discussion with messages",
			discussion: internal.CreateTestDiscussionValue(2,
				internal.Message{Sender: internal.SenderUser, Content: "Hello"},
				internal.Message{Sender: internal.SenderBot, Content: "Hi, how can I help?"},
			),
			want: []string{
				`"discussion_id":"discussion_2"`,
				`"sender":"user"`,
				`"sender":"bot"`,
				`"timestamp":"2026-01-02 15:04:05"`,
				`"timestamp":"2026-01-02 15:04:06"`,
			},
			wantLines: 2,
		},
		{
			name: "non-UTC timestamp is normalized",
			discussion: internal.CreateTestDiscussionValue(3, internal.Message{
				Sender:    internal.SenderSystem,
				Content:   "Error: model service timed out",
				Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("WAT", 3600)),
			}),
			want:      []string{`"timestamp":"2026-03-01 08:00:00"`, `"sender":"system"`},
			wantLines: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			exporter := &JSONLExporter{}

			if err := exporter.Export(tt.discussion, &buf); err != nil {
				t.Fatalf("JSONLExporter.Export() error = %v", err)
			}

			output := buf.String()
			lines := strings.Split(strings.TrimSpace(output), "\n")
			if output == "" {
				lines = nil
			}
			if len(lines) != tt.wantLines {
				t.Fatalf("got %d lines, want %d\n%s", len(lines), tt.wantLines, output)
			}
			for _, line := range lines {
				var obj map[string]any
				if err := json.Unmarshal([]byte(line), &obj); err != nil {
					t.Errorf("Line is not valid JSON: %v\nLine: %s", err, line)
				}
			}
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("Output should contain %q\n%s", want, output)
				}
			}
		})
	}
}

func TestJSONLExporter_Extension(t *testing.T) {
	exporter := &JSONLExporter{}
	if got := exporter.Extension(); got != "jsonl" {
		t.Errorf("JSONLExporter.Extension() = %v, want jsonl", got)
	}
}
