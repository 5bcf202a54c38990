package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/iksnae/bob-the-lawyer/internal/attachment"
	"github.com/iksnae/bob-the-lawyer/internal/chat"
	"github.com/iksnae/bob-the-lawyer/internal/config"
	"github.com/iksnae/bob-the-lawyer/internal/reply"
)

// app bundles what most commands need
type app struct {
	cfg     config.Config
	store   *internal.Storage
	replies *reply.Client
	chat    *chat.Service
}

// loadConfig reads the config file and environment, then applies --db
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath == "" {
		return cfg, nil
	}

	if internal.IsPostgresURL(dbPath) {
		cfg.DatabaseURL = dbPath
		return cfg, nil
	}
	paths, err := internal.GetStoragePaths(dbPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get storage paths: %w", err)
	}
	cfg.DataDir = paths.DataDir
	cfg.DatabasePath = paths.DatabasePath
	cfg.DatabaseURL = ""
	return cfg, nil
}

func openStore(ctx context.Context, cfg config.Config) (*internal.Storage, error) {
	store, err := internal.OpenStore(ctx, cfg.StoreDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open discussion store: %w", err)
	}
	internal.LogDebug("Opened %s store", store.Dialect())
	return store, nil
}

func replyConfig(cfg config.Config) reply.Config {
	return reply.Config{
		Mode:            cfg.ReplyBackend,
		Endpoints:       cfg.ReplyEndpoints,
		Timeout:         cfg.ReplyTimeout,
		LocalBinary:     cfg.LocalBinary,
		ModelPath:       cfg.ModelPath,
		ModelCandidates: internal.ModelSearchPaths(internal.ModelDirName),
	}
}

func newReplyClient(cfg config.Config, opts ...reply.ClientOption) (*reply.Client, error) {
	backend, err := reply.NewBackend(replyConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reply backend: %w", err)
	}
	defaults := reply.WithDefaults(reply.Params{
		MaxNewTokens: cfg.MaxNewTokens,
		Temperature:  cfg.Temperature,
		TopP:         cfg.TopP,
	})
	return reply.NewClient(backend, append([]reply.ClientOption{defaults}, opts...)...), nil
}

// openApp loads config and opens the store. The reply backend is only built
// when withReplies is set since loading a local model is slow.
func openApp(ctx context.Context, withReplies bool, opts ...reply.ClientOption) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: store}
	if withReplies {
		if a.replies, err = newReplyClient(cfg, opts...); err != nil {
			_ = store.Close()
			return nil, err
		}
		internal.LogInfo("Using %s reply backend", a.replies.BackendName())
	}
	var gen chat.Generator
	if a.replies != nil {
		gen = a.replies
	}
	a.chat = chat.NewService(store, gen, attachment.NewExtractor(cfg.OCRBinary))
	return a, nil
}

// mockFallbackWarning is shown when auto mode found nothing better than mock
const mockFallbackWarning = "No reply endpoint or local model found: Bob is using mock replies, which are not legal advice. " +
	"Set BOB_REPLY_ENDPOINTS or BOB_MODEL_PATH, or BOB_REPLY_BACKEND=mock to use mock replies on purpose."

// usingMockFallback reports whether replies come from the mock backend
// without it having been chosen explicitly.
func (a *app) usingMockFallback() bool {
	return a.replies != nil &&
		a.replies.BackendName() == reply.ModeMock &&
		a.cfg.ReplyBackend != config.BackendMock
}

// warnMockFallback prints mockFallbackWarning to w when it applies
func (a *app) warnMockFallback(w io.Writer) {
	if a.usingMockFallback() {
		internal.PrintWarning(w, mockFallbackWarning)
	}
}

func (a *app) Close() {
	if a.replies != nil {
		if err := a.replies.Close(); err != nil {
			internal.LogWarn("Failed to release reply backend: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		internal.LogWarn("Failed to close store: %v", err)
	}
}

// requireDiscussion loads id, turning a missing discussion into a hint
func (a *app) requireDiscussion(ctx context.Context, id string) (*internal.Discussion, error) {
	d, err := internal.LoadDiscussion(ctx, a.store, id)
	if err != nil {
		return nil, withHint(err)
	}
	return d, nil
}

func withHint(err error) error {
	if errors.Is(err, internal.ErrDiscussionNotFound) || errors.Is(err, internal.ErrInvalidDiscussionID) {
		return fmt.Errorf("%w (use 'bob list' to see discussions or 'bob new' to start one)", err)
	}
	return err
}
