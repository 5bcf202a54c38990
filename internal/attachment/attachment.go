// Package attachment extracts plain text from uploaded documents and formats
// it for storage previews and prompt context.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/iksnae/bob-the-lawyer/internal"
)

// Limits on stored previews and prompt context, in runes
const (
	PreviewLimit = 200
	ContextLimit = 1000
)

// ErrUnsupportedType is returned for file extensions with no extractor
var ErrUnsupportedType = errors.New("unsupported file type")

// File is an attachment after extraction
type File struct {
	Name    string
	Type    string
	Content string
}

// Extractor converts document bytes into text by declared type.
type Extractor struct {
	OCRBinary string
}

// NewExtractor returns an extractor that runs ocrBinary for images
func NewExtractor(ocrBinary string) *Extractor {
	return &Extractor{OCRBinary: ocrBinary}
}

type extractFunc func(ctx context.Context, e *Extractor, data []byte) (string, error)

var extractors = map[string]extractFunc{
	"pdf":  plain(extractPDF),
	"docx": plain(extractDOCX),
	"pptx": plain(extractPPTX),
	"xlsx": plain(extractXLSX),
	"txt":  plain(extractText),
	"md":   plain(extractText),
	"csv":  plain(extractText),
	"png":  ocr,
	"jpg":  ocr,
	"jpeg": ocr,
	"tif":  ocr,
	"tiff": ocr,
	"bmp":  ocr,
}

func plain(fn func([]byte) (string, error)) extractFunc {
	return func(_ context.Context, _ *Extractor, data []byte) (string, error) {
		return fn(data)
	}
}

func ocr(ctx context.Context, e *Extractor, data []byte) (string, error) {
	return e.extractImage(ctx, data)
}

// TypeOf returns the lower-cased extension without the dot
func TypeOf(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// Supported reports whether name has an extractor
func Supported(name string) bool {
	_, ok := extractors[TypeOf(name)]
	return ok
}

// ExtractFile reads and extracts the file at path
func (e *Extractor) ExtractFile(ctx context.Context, path string) (File, error) {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, &internal.ExtractionError{File: name, Type: TypeOf(name), Err: err}
	}
	return e.Extract(ctx, name, data)
}

// Extract converts data according to the extension of name
func (e *Extractor) Extract(ctx context.Context, name string, data []byte) (f File, err error) {
	typ := TypeOf(name)
	fn, ok := extractors[typ]
	if !ok {
		return File{}, &internal.ExtractionError{File: name, Type: typ, Err: fmt.Errorf("%w: .%s", ErrUnsupportedType, typ)}
	}

	// parsers of untrusted documents may panic on malformed input
	defer func() {
		if r := recover(); r != nil {
			err = &internal.ExtractionError{File: name, Type: typ, Err: fmt.Errorf("malformed document: %v", r)}
		}
	}()

	text, err := fn(ctx, e, data)
	if err != nil {
		return File{}, &internal.ExtractionError{File: name, Type: typ, Err: err}
	}
	internal.LogDebug("Extracted %d characters from %s", utf8.RuneCountInString(text), name)
	return File{Name: name, Type: typ, Content: text}, nil
}

func extractText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("not valid UTF-8 text")
	}
	return string(data), nil
}

// truncate returns the first n runes of s and whether anything was cut
func truncate(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}

// Preview returns the first PreviewLimit runes, with "..." when truncated
func Preview(text string) string {
	p, cut := truncate(text, PreviewLimit)
	if cut {
		return p + "..."
	}
	return p
}

// Summary is the stored form of an attachment: "<name>: <preview>"
func Summary(f File) string {
	return f.Name + ": " + Preview(f.Content)
}

// BuildContext renders the attached files block appended to a prompt
func BuildContext(files []File) string {
	if len(files) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n[Attached Files Context]\n")
	for _, f := range files {
		content, _ := truncate(f.Content, ContextLimit)
		fmt.Fprintf(&b, "\nFile: %s\nContent:\n%s\n", f.Name, content)
	}
	return b.String()
}

// ErrorText is the displayable message for a failed attachment
func ErrorText(name string, err error) string {
	var xe *internal.ExtractionError
	if errors.As(err, &xe) {
		err = xe.Err
	}
	return fmt.Sprintf("Error processing %s: %v", name, err)
}
