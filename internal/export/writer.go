package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iksnae/bob-the-lawyer/internal"
)

// IndexFileName is written next to the exported files
const IndexFileName = "index.yaml"

// IndexEntry describes one exported discussion
type IndexEntry struct {
	ID           string `yaml:"id"`
	File         string `yaml:"file"`
	MessageCount int    `yaml:"message_count"`
	CreatedAt    string `yaml:"created_at,omitempty"`
	UpdatedAt    string `yaml:"updated_at,omitempty"`
}

// IndexMetadata records how the export was produced
type IndexMetadata struct {
	Format     string    `yaml:"format"`
	Store      string    `yaml:"store,omitempty"`
	ExportedAt time.Time `yaml:"exported_at"`
}

// Index is the YAML summary of an export directory
type Index struct {
	Discussions []IndexEntry  `yaml:"discussions"`
	Metadata    IndexMetadata `yaml:"metadata"`
}

// Writer exports discussions into a directory
type Writer struct {
	Dir      string
	Exporter Exporter
	Format   string
	Store    string // shown in the index; never a secret-bearing URL
	now      func() time.Time
}

func NewWriter(dir, format string) (*Writer, error) {
	exp, err := NewExporter(format)
	if err != nil {
		return nil, err
	}
	return &Writer{Dir: dir, Exporter: exp, Format: exp.Extension(), now: time.Now}, nil
}

// FileName is the export file name for a discussion
func (wr *Writer) FileName(id string) string {
	return fmt.Sprintf("%s.%s", id, wr.Exporter.Extension())
}

// WriteAll exports every discussion and then writes the index. Per-discussion
// failures are logged and skipped; the index lists only what was written.
func (wr *Writer) WriteAll(discussions []*internal.Discussion) (*Index, error) {
	if err := os.MkdirAll(wr.Dir, 0755); err != nil {
		return nil, &internal.ExportError{Format: wr.Format, Path: wr.Dir, Err: err}
	}

	index := &Index{
		Discussions: make([]IndexEntry, 0, len(discussions)),
		Metadata:    IndexMetadata{Format: wr.Format, Store: wr.Store, ExportedAt: wr.now().UTC()},
	}
	for _, d := range discussions {
		if d == nil {
			internal.LogWarn("Skipping nil discussion")
			continue
		}
		name := wr.FileName(d.ID)
		if err := wr.writeOne(d, filepath.Join(wr.Dir, name)); err != nil {
			internal.LogError("%v", err)
			continue
		}
		index.Discussions = append(index.Discussions, entryFor(d, name))
	}

	if err := wr.saveIndex(index); err != nil {
		return index, err
	}
	return index, nil
}

func (wr *Writer) writeOne(d *internal.Discussion, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: wr.Format, Path: path, Err: err}
	}
	if err := wr.Exporter.Export(d, file); err != nil {
		_ = file.Close()
		return &internal.ExportError{Format: wr.Format, Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &internal.ExportError{Format: wr.Format, Path: path, Err: err}
	}
	return nil
}

func entryFor(d *internal.Discussion, file string) IndexEntry {
	e := IndexEntry{ID: d.ID, File: file, MessageCount: len(d.Messages)}
	if !d.CreatedAt.IsZero() {
		e.CreatedAt = d.CreatedAt.UTC().Format(internal.TimestampLayout)
	}
	if n := len(d.Messages); n > 0 {
		e.UpdatedAt = d.Messages[n-1].Timestamp.UTC().Format(internal.TimestampLayout)
	}
	return e
}

func (wr *Writer) saveIndex(index *Index) error {
	path := filepath.Join(wr.Dir, IndexFileName)
	data, err := yaml.Marshal(index)
	if err != nil {
		return &internal.ExportError{Format: "yaml", Path: path, Err: fmt.Errorf("failed to marshal index: %w", err)}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &internal.ExportError{Format: "yaml", Path: path, Err: err}
	}
	return nil
}

// LoadIndex reads the index written by a previous export
func LoadIndex(dir string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, IndexFileName))
	if err != nil {
		return nil, err
	}
	var index Index
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index: %w", err)
	}
	return &index, nil
}
