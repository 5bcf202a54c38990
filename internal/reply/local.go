package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SystemPrompt is the fixed instruction placed before every user turn
const SystemPrompt = "Respond conversationally and concisely. Do not make any conversation examples"

// Chat template markers
const (
	SystemCue    = "<|system|>"
	UserCue      = "<|user|>"
	AssistantCue = "<|assistant|>"
	EndOfText    = "</s>"
)

// StopCondition reports whether generation should halt given the text
// generated so far (excluding the prompt).
type StopCondition func(generated string) bool

// Pipeline is a loaded text-generation model. Generate returns the prompt
// followed by the generated continuation.
type Pipeline interface {
	Generate(ctx context.Context, prompt string, p Params, stop StopCondition) (string, error)
	Close() error
}

// BuildPrompt wraps user input in the three-part chat template
func BuildPrompt(system, userInput string) string {
	return fmt.Sprintf("%s %s\n%s %s\n%s", SystemCue, system, UserCue, userInput, AssistantCue)
}

// ExtractReply keeps only the text after the last assistant cue
func ExtractReply(output string) string {
	if i := strings.LastIndex(output, AssistantCue); i >= 0 {
		output = output[i+len(AssistantCue):]
	}
	output = strings.TrimSpace(output)
	return strings.TrimSpace(strings.TrimSuffix(output, EndOfText))
}

// DefaultStop halts on end-of-text or a sentence terminal once some
// non-blank text has been produced.
func DefaultStop(generated string) bool {
	if strings.TrimSpace(generated) == "" {
		return false
	}
	if strings.HasSuffix(generated, EndOfText) {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(generated)
	switch r {
	case '.', '?', '!', '\n':
		return true
	}
	return false
}

// LocalBackend runs generation through an in-process or child-process pipeline.
type LocalBackend struct {
	pipeline     Pipeline
	systemPrompt string
}

// NewLocalBackend wraps an already loaded pipeline
func NewLocalBackend(p Pipeline) *LocalBackend {
	return &LocalBackend{pipeline: p, systemPrompt: SystemPrompt}
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) Generate(ctx context.Context, req Request) (string, error) {
	if b.pipeline == nil {
		return "", &Error{Outcome: OutcomeInferenceFailed, Err: errors.New("model pipeline is not loaded")}
	}
	out, err := b.pipeline.Generate(ctx, BuildPrompt(b.systemPrompt, req.UserInput), req.Params(), DefaultStop)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &Error{Outcome: OutcomeTimedOut, Err: err}
		}
		return "", &Error{Outcome: OutcomeInferenceFailed, Err: err}
	}
	return ExtractReply(out), nil
}

// Close releases the pipeline
func (b *LocalBackend) Close() error {
	if b.pipeline == nil {
		return nil
	}
	return b.pipeline.Close()
}
