package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/bob-the-lawyer/internal"
)

// JSONExporter exports discussions in JSON format (pretty-printed)
type JSONExporter struct{}

// Export writes the whole discussion as one document
func (e *JSONExporter) Export(d *internal.Discussion, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(d)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}
