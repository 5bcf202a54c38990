package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/bob-the-lawyer/internal"
)

// JSONLExporter exports discussions in JSONL format (one message per line)
type JSONLExporter struct{}

type jsonlLine struct {
	DiscussionID string `json:"discussion_id"`
	Sender       string `json:"sender"`
	Content      string `json:"content"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// Export writes one line per message in stored order
func (e *JSONLExporter) Export(d *internal.Discussion, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, msg := range d.Messages {
		line := jsonlLine{DiscussionID: d.ID, Sender: msg.Sender, Content: msg.Content}
		if !msg.Timestamp.IsZero() {
			line.Timestamp = msg.Timestamp.UTC().Format(internal.TimestampLayout)
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode message %d: %w", msg.ID, err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
