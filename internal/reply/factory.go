package reply

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/iksnae/bob-the-lawyer/internal"
)

// Backend modes
const (
	ModeAuto   = "auto"
	ModeRemote = "remote"
	ModeLocal  = "local"
	ModeMock   = "mock"
)

// Config controls backend construction.
type Config struct {
	Mode            string
	Endpoints       []string
	Timeout         time.Duration
	LocalBinary     string
	ModelPath       string   // explicit model; overrides ModelCandidates
	ModelCandidates []string // searched in order when ModelPath is empty
}

// NewBackend builds the backend for cfg.Mode. In auto mode a remote endpoint
// wins, then a locally available model, then the mock backend.
func NewBackend(cfg Config) (Backend, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = ModeAuto
	}

	switch mode {
	case ModeAuto:
		return newAutoBackend(cfg), nil
	case ModeRemote:
		return NewHTTPBackend(cfg.Endpoints, cfg.Timeout)
	case ModeLocal:
		return newLocalBackend(cfg)
	case ModeMock:
		return NewMockBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported reply backend mode %q", cfg.Mode)
	}
}

func newAutoBackend(cfg Config) Backend {
	if len(cfg.Endpoints) > 0 {
		if b, err := NewHTTPBackend(cfg.Endpoints, cfg.Timeout); err == nil {
			return b
		}
	}
	if cfg.LocalBinary != "" {
		if _, err := exec.LookPath(cfg.LocalBinary); err == nil {
			b, err := newLocalBackend(cfg)
			if err == nil {
				return b
			}
			internal.LogDebug("Local model unavailable: %v", err)
		}
	}
	internal.LogWarn("No reply endpoint or local model found; using mock replies")
	return NewMockBackend()
}

func newLocalBackend(cfg Config) (*LocalBackend, error) {
	model := cfg.ModelPath
	if model == "" {
		found, err := internal.FindModel(cfg.ModelCandidates)
		if err != nil {
			return nil, err
		}
		model = found
	}

	p := NewExecPipeline(cfg.LocalBinary, model)
	if err := p.Load(); err != nil {
		return nil, err
	}
	internal.LogInfo("Model loaded successfully from: %s", model)
	return NewLocalBackend(p), nil
}
