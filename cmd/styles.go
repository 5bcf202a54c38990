package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/bob-the-lawyer/internal"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Underline(true)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	botMessageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true).
			Padding(0, 1)

	fileMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// formatWhen renders t relative to now the way list output shows dates
func formatWhen(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return t.Local().Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Local().Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Local().Format("Jan 02 15:04")
	default:
		return t.Local().Format("2006-01-02")
	}
}

func bubbleHeader(b internal.Bubble) string {
	switch b.Kind {
	case internal.BubbleUser:
		return userMessageStyle.Render("👤 You")
	case internal.BubbleFile:
		return fileMessageStyle.Render("📄 " + b.FileName)
	default:
		return botMessageStyle.Render("⚖️  Bob")
	}
}

func renderBubble(b internal.Bubble) string {
	content := strings.TrimSpace(b.Text)
	if content == "" {
		return messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)")
	}
	return messageContentStyle.Render(wrapText(content, 80))
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		words := strings.Fields(line)
		currentLine := ""
		for _, word := range words {
			switch {
			case currentLine == "":
				currentLine = word
			case len(currentLine)+len(word)+1 > width:
				wrapped = append(wrapped, currentLine)
				currentLine = word
			default:
				currentLine += " " + word
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
