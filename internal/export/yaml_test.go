package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iksnae/bob-the-lawyer/internal"
	"gopkg.in/yaml.v3"
)

func TestYAMLExporter_Export(t *testing.T) {
	d := internal.CreateTestDiscussionValue(4,
		internal.Message{Sender: internal.SenderUser, Content: "Uploaded document: will.docx"},
		internal.Message{Sender: internal.SenderFile, Content: "will.docx: I leave everything to..."},
	)

	var buf bytes.Buffer
	exporter := &YAMLExporter{}
	if err := exporter.Export(d, &buf); err != nil {
		t.Fatalf("YAMLExporter.Export() error = %v", err)
	}

	output := buf.String()
	var got internal.Discussion
	if err := yaml.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("Output is not valid YAML: %v\nOutput: %s", err, output)
	}
	if got.ID != "discussion_4" || len(got.Messages) != 2 {
		t.Errorf("decoded = %+v", got)
	}
	if got.Messages[1].Sender != internal.SenderFile || !got.Messages[1].Timestamp.Equal(d.Messages[1].Timestamp) {
		t.Errorf("message = %+v", got.Messages[1])
	}
	if !strings.Contains(output, "sender: file") {
		t.Errorf("Output should use yaml field names:\n%s", output)
	}
}

func TestYAMLExporter_Extension(t *testing.T) {
	exporter := &YAMLExporter{}
	if got := exporter.Extension(); got != "yaml" {
		t.Errorf("YAMLExporter.Extension() = %v, want yaml", got)
	}
}
