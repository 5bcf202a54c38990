package export

import (
	"io"

	"github.com/iksnae/bob-the-lawyer/internal"
	"gopkg.in/yaml.v3"
)

// YAMLExporter exports discussions in YAML format
type YAMLExporter struct{}

// Export writes the discussion as one YAML document
func (e *YAMLExporter) Export(d *internal.Discussion, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()

	return enc.Encode(d)
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}
