package attachment

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	wordNS    = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	drawingNS = "http://schemas.openxmlformats.org/drawingml/2006/main"
)

var slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid office document: %w", err)
	}
	return zr, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, 64<<20))
}

// paragraphs collects the text of every <p> in namespace ns, reading runs
// from <t> elements.
func paragraphs(r io.Reader, ns string) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		out    []string
		cur    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != ns {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				cur.WriteByte('\t')
			case "br":
				cur.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != ns {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out = append(out, cur.String())
				cur.Reset()
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return out, nil
}

func extractDOCX(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		body, err := readZipFile(f)
		if err != nil {
			return "", err
		}
		paras, err := paragraphs(bytes.NewReader(body), wordNS)
		if err != nil {
			return "", err
		}
		return strings.Join(paras, "\n"), nil
	}
	return "", errors.New("word/document.xml not found")
}

func extractPPTX(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}

	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slidePattern.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n: n, f: f})
		}
	}
	if len(slides) == 0 {
		return "", errors.New("presentation has no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var text []string
	for _, s := range slides {
		body, err := readZipFile(s.f)
		if err != nil {
			return "", err
		}
		paras, err := paragraphs(bytes.NewReader(body), drawingNS)
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", s.n, err)
		}
		text = append(text, paras...)
	}
	return strings.Join(text, "\n"), nil
}
