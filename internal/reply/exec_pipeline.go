package reply

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RepeatPenalty discourages repeated tokens
const RepeatPenalty = 1.2

// ExecPipeline drives a llama.cpp-style command line binary. Output is
// streamed and the process is stopped as soon as the stop condition holds.
type ExecPipeline struct {
	Binary    string
	ModelPath string

	mu     sync.Mutex
	loaded bool
	model  string
}

// NewExecPipeline returns an unloaded pipeline; call Load before Generate.
func NewExecPipeline(binary, modelPath string) *ExecPipeline {
	return &ExecPipeline{Binary: binary, ModelPath: modelPath}
}

// Load resolves the binary and the model file
func (p *ExecPipeline) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	bin, err := exec.LookPath(p.Binary)
	if err != nil {
		return fmt.Errorf("inference binary %q not found: %w", p.Binary, err)
	}
	model, err := resolveModelFile(p.ModelPath)
	if err != nil {
		return err
	}
	p.Binary = bin
	p.model = model
	p.loaded = true
	return nil
}

// resolveModelFile accepts a weights file or a directory holding *.gguf weights
func resolveModelFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("model %q: %w", path, err)
	}
	if !info.IsDir() {
		return path, nil
	}
	matches, _ := filepath.Glob(filepath.Join(path, "*.gguf"))
	if len(matches) == 0 {
		return "", fmt.Errorf("no .gguf weights in model directory %q", path)
	}
	sort.Strings(matches)
	return matches[0], nil
}

func (p *ExecPipeline) args(prompt string, params Params) []string {
	return []string{
		"-m", p.model,
		"-p", prompt,
		"-n", strconv.Itoa(params.MaxNewTokens),
		"--temp", strconv.FormatFloat(params.Temperature, 'f', -1, 64),
		"--top-p", strconv.FormatFloat(params.TopP, 'f', -1, 64),
		"--repeat-penalty", strconv.FormatFloat(RepeatPenalty, 'f', -1, 64),
		"--no-display-prompt",
	}
}

// Generate runs one generation. Calls are serialized.
func (p *ExecPipeline) Generate(ctx context.Context, prompt string, params Params, stop StopCondition) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return "", errors.New("model pipeline is not loaded")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, p.Binary, p.args(prompt, params)...)
	cmd.WaitDelay = time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, n: 4 << 10}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", filepath.Base(p.Binary), err)
	}

	var generated strings.Builder
	stopped := false
	r := bufio.NewReader(stdout)
	for {
		ch, _, err := r.ReadRune()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				cancel()
				_ = cmd.Wait()
				return "", fmt.Errorf("read output: %w", err)
			}
			break
		}
		generated.WriteRune(ch)
		if stop != nil && stop(generated.String()) {
			stopped = true
			cancel()
			break
		}
	}

	waitErr := cmd.Wait()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if waitErr != nil && !stopped {
		return "", fmt.Errorf("%s failed: %w: %s", filepath.Base(p.Binary), waitErr, strings.TrimSpace(stderr.String()))
	}
	return prompt + generated.String(), nil
}

// Close marks the pipeline unloaded
func (p *ExecPipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = false
	return nil
}

type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(b []byte) (int, error) {
	if l.n <= 0 {
		return len(b), nil
	}
	chunk := b
	if len(chunk) > l.n {
		chunk = chunk[:l.n]
	}
	l.n -= len(chunk)
	if _, err := l.w.Write(chunk); err != nil {
		return 0, err
	}
	return len(b), nil
}
