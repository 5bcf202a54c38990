package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ProgressStep represents a single step in a multi-step process
type ProgressStep struct {
	Message string
	Fn      func() error
}

// ShowProgress runs fn while a spinner is drawn on stderr. Off a terminal
// the message is logged instead.
func ShowProgress(ctx context.Context, message string, fn func() error) error {
	return ShowProgressTo(ctx, os.Stderr, message, fn)
}

// ShowProgressTo is ShowProgress drawing on w
func ShowProgressTo(ctx context.Context, w io.Writer, message string, fn func() error) error {
	if !isTerminal(w) {
		LogInfo(message)
		return fn()
	}
	return spin(ctx, w, message, fn)
}

// ShowProgressWithSteps runs steps in order, stopping at the first failure
func ShowProgressWithSteps(ctx context.Context, steps []ProgressStep) error {
	for i, step := range steps {
		msg := fmt.Sprintf("[%d/%d] %s", i+1, len(steps), step.Message)
		if err := ShowProgress(ctx, msg, step.Fn); err != nil {
			return fmt.Errorf("%s: %w", step.Message, err)
		}
	}
	return nil
}

func spin(ctx context.Context, w io.Writer, message string, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case err := <-done:
			if err != nil {
				fmt.Fprintf(w, "\r%s %s\n", errorStyle.Render("✗"), message)
				return err
			}
			fmt.Fprintf(w, "\r%s %s\n", successStyle.Render("✓"), message)
			return nil
		case <-ctx.Done():
			fmt.Fprintf(w, "\r%s %s\n", errorStyle.Render("✗"), message)
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprintf(w, "\r%s %s", progressStyle.Render(spinnerFrames[i%len(spinnerFrames)]), message)
		}
	}
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

func printMarked(w io.Writer, mark string, style lipgloss.Style, plainPrefix, message string) {
	if isTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", style.Render(mark), message)
		return
	}
	fmt.Fprintf(w, "%s%s\n", plainPrefix, message)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	printMarked(w, "✓", successStyle, "", message)
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	printMarked(w, "✗", errorStyle, "", message)
}

// PrintInfo prints an info message
func PrintInfo(w io.Writer, message string) {
	printMarked(w, "ℹ", progressStyle, "", message)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	printMarked(w, "⚠", warningStyle, "WARNING: ", message)
}
