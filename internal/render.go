package internal

import (
	"fmt"
	"path/filepath"
	"strings"
)

// BubbleKind is the visual role of a rendered message
type BubbleKind string

const (
	BubbleUser BubbleKind = "user"
	BubbleBot  BubbleKind = "bot"
	BubbleFile BubbleKind = "file"
)

// Bubble is a message prepared for display
type Bubble struct {
	Kind     BubbleKind
	Text     string
	FileName string // set for file bubbles
}

// RenderMessage maps a stored message to a bubble. Unknown sender tags
// render as bot bubbles rather than failing.
func RenderMessage(m Message) Bubble {
	return renderWithName(m, "")
}

// RenderMessages renders a run of messages. A file summary that follows its
// upload notice is split at the uploaded name, which may itself contain ": ".
func RenderMessages(msgs []Message) []Bubble {
	out := make([]Bubble, 0, len(msgs))
	for i, m := range msgs {
		uploaded := ""
		if i > 0 && msgs[i-1].Sender == SenderUser {
			uploaded, _ = strings.CutPrefix(msgs[i-1].Content, UploadNoticePrefix)
		}
		out = append(out, renderWithName(m, uploaded))
	}
	return out
}

func renderWithName(m Message, uploaded string) Bubble {
	switch m.Sender {
	case SenderUser:
		return Bubble{Kind: BubbleUser, Text: m.Content}
	case SenderFile:
		if uploaded != "" {
			if preview, ok := strings.CutPrefix(m.Content, uploaded+": "); ok {
				return Bubble{Kind: BubbleFile, Text: preview, FileName: uploaded}
			}
		}
		name, preview, ok := ParseFileSummary(m.Content)
		if !ok {
			return Bubble{Kind: BubbleBot, Text: "File (error displaying): " + m.Content}
		}
		return Bubble{Kind: BubbleFile, Text: preview, FileName: name}
	case SenderBot, SenderSystem:
		return Bubble{Kind: BubbleBot, Text: m.Content}
	default:
		return Bubble{Kind: BubbleBot, Text: fmt.Sprintf("Unknown (%s): %s", m.Sender, m.Content)}
	}
}

// ParseFileSummary splits a stored "<name>: <preview>" file summary. Uploads
// always carry an extension, so the first separator preceded by a name with
// one wins; otherwise the first separator is used.
func ParseFileSummary(content string) (string, string, bool) {
	first := -1
	for start := 0; ; {
		i := strings.Index(content[start:], ": ")
		if i < 0 {
			break
		}
		i += start
		if first < 0 {
			first = i
		}
		if hasExtension(content[:i]) {
			return content[:i], content[i+2:], true
		}
		start = i + 2
	}
	if first <= 0 {
		return "", "", false
	}
	return content[:first], content[first+2:], true
}

func hasExtension(name string) bool {
	ext := filepath.Ext(name)
	return len(ext) > 1 && !strings.ContainsAny(ext, " \t\n")
}

// Label returns the speaker label used in plain-text transcripts
func (b Bubble) Label() string {
	switch b.Kind {
	case BubbleUser:
		return "YOU"
	case BubbleFile:
		return "FILE " + b.FileName
	default:
		return "BOB"
	}
}
