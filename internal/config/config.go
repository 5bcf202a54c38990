package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iksnae/bob-the-lawyer/internal"
)

// Reply backend modes
const (
	BackendAuto   = "auto"
	BackendRemote = "remote"
	BackendLocal  = "local"
	BackendMock   = "mock"
)

// Config contains all runtime settings for the CLI and the local service.
type Config struct {
	DataDir      string `yaml:"-"`
	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"`

	ReplyBackend   string        `yaml:"reply_backend"`
	ReplyEndpoints []string      `yaml:"reply_endpoints"`
	ReplyTimeout   time.Duration `yaml:"reply_timeout"`
	MaxNewTokens   int           `yaml:"max_new_tokens"`
	Temperature    float64       `yaml:"temperature"`
	TopP           float64       `yaml:"top_p"`

	LocalBinary string `yaml:"local_binary"`
	ModelPath   string `yaml:"model_path"`
	OCRBinary   string `yaml:"ocr_binary"`

	BindAddr         string        `yaml:"bind_addr"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	AllowAnyOrigin   bool          `yaml:"allow_any_origin"`
}

// Default returns the built-in settings rooted at the detected data directory.
func Default() (Config, error) {
	paths, err := internal.DetectStoragePaths()
	if err != nil {
		return Config{}, err
	}
	return defaultsFor(paths), nil
}

func defaultsFor(paths internal.StoragePaths) Config {
	return Config{
		DataDir:          paths.DataDir,
		DatabasePath:     paths.DatabasePath,
		ReplyBackend:     BackendAuto,
		ReplyTimeout:     60 * time.Second,
		MaxNewTokens:     100,
		Temperature:      0.7,
		TopP:             0.9,
		LocalBinary:      "llama-cli",
		OCRBinary:        "tesseract",
		BindAddr:         "127.0.0.1:7860",
		MetricsNamespace: "bob",
		ShutdownTimeout:  15 * time.Second,
	}
}

// Load builds defaults, overlays the YAML file at path, then BOB_* environment
// variables, and validates the result. An empty path means the data directory's
// config.yaml, which may be absent; an explicit path must exist.
func Load(path string) (Config, error) {
	paths, err := internal.DetectStoragePaths()
	if err != nil {
		return Config{}, err
	}
	cfg := defaultsFor(paths)

	explicit := path != ""
	if !explicit {
		path = paths.ConfigPath
	}
	if err := cfg.mergeFile(path, explicit); err != nil {
		return Config{}, err
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	internal.LogDebug("Loaded config from %s", path)
	return nil
}

func (c *Config) mergeEnv() error {
	c.DatabasePath = envOrDefault("BOB_DATABASE_PATH", c.DatabasePath)
	c.DatabaseURL = envOrDefault("BOB_DATABASE_URL", c.DatabaseURL)
	c.ReplyBackend = strings.ToLower(envOrDefault("BOB_REPLY_BACKEND", c.ReplyBackend))
	if v := stringsTrimSpace("BOB_REPLY_ENDPOINTS"); v != "" {
		c.ReplyEndpoints = splitList(v)
	}
	c.LocalBinary = envOrDefault("BOB_LOCAL_BINARY", c.LocalBinary)
	c.ModelPath = envOrDefault("BOB_MODEL_PATH", c.ModelPath)
	c.OCRBinary = envOrDefault("BOB_OCR_BINARY", c.OCRBinary)
	c.BindAddr = envOrDefault("BOB_BIND_ADDR", c.BindAddr)
	c.MetricsNamespace = envOrDefault("BOB_METRICS_NAMESPACE", c.MetricsNamespace)

	var err error
	if c.ReplyTimeout, err = durationFromEnv("BOB_REPLY_TIMEOUT", c.ReplyTimeout); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = durationFromEnv("BOB_SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}
	if c.MaxNewTokens, err = intFromEnv("BOB_MAX_NEW_TOKENS", c.MaxNewTokens); err != nil {
		return err
	}
	if c.Temperature, err = floatFromEnv("BOB_TEMPERATURE", c.Temperature); err != nil {
		return err
	}
	if c.TopP, err = floatFromEnv("BOB_TOP_P", c.TopP); err != nil {
		return err
	}
	if c.AllowAnyOrigin, err = boolFromEnv("BOB_ALLOW_ANY_ORIGIN", c.AllowAnyOrigin); err != nil {
		return err
	}
	return nil
}

// Validate checks ranges and enumerations
func (c Config) Validate() error {
	switch c.ReplyBackend {
	case BackendAuto, BackendRemote, BackendLocal, BackendMock:
	default:
		return fmt.Errorf("reply backend must be one of auto, remote, local, mock; got %q", c.ReplyBackend)
	}
	if c.ReplyBackend == BackendRemote && len(c.ReplyEndpoints) == 0 {
		return fmt.Errorf("reply backend remote requires at least one endpoint (BOB_REPLY_ENDPOINTS)")
	}
	for _, ep := range c.ReplyEndpoints {
		if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
			return fmt.Errorf("reply endpoint %q must be an http(s) URL", ep)
		}
	}
	if c.ReplyTimeout <= 0 {
		return fmt.Errorf("reply timeout must be positive")
	}
	if c.MaxNewTokens <= 0 {
		return fmt.Errorf("max_new_tokens must be positive")
	}
	if c.Temperature < 0 {
		return fmt.Errorf("temperature must be >= 0")
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be in (0, 1]")
	}
	if c.DatabaseURL != "" && !internal.IsPostgresURL(c.DatabaseURL) {
		return fmt.Errorf("database_url must start with postgres:// or postgresql://")
	}
	return nil
}

// StoreDSN is the Postgres URL when configured, otherwise the SQLite path.
func (c Config) StoreDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
