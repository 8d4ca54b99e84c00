package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config keeps the runtime settings of the bridge. Environment variables are
// the baseline; a YAML file, when given, overrides whatever it sets and is
// the unit of hot reload.
type Config struct {
	Addr            string        `yaml:"addr"`
	APIKey          string        `yaml:"api_key"`
	StoreDSN        string        `yaml:"store_dsn"`
	WebhookURL      string        `yaml:"webhook_url"`
	WebhookSecret   string        `yaml:"webhook_secret"`
	StatusWebAppURL string        `yaml:"status_web_app_url"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	RequestTimeout  time.Duration `yaml:"-"`
}

// FromEnv reads SHEETBRIDGE_* variables with defaults.
func FromEnv() Config {
	return Config{
		Addr:            envOr("SHEETBRIDGE_ADDR", ":8080"),
		APIKey:          strings.TrimSpace(os.Getenv("SHEETBRIDGE_API_KEY")),
		StoreDSN:        strings.TrimSpace(os.Getenv("SHEETBRIDGE_STORE_DSN")),
		WebhookURL:      strings.TrimSpace(os.Getenv("SHEETBRIDGE_WEBHOOK_URL")),
		WebhookSecret:   strings.TrimSpace(os.Getenv("SHEETBRIDGE_WEBHOOK_SECRET")),
		StatusWebAppURL: strings.TrimSpace(os.Getenv("SHEETBRIDGE_STATUS_WEB_APP_URL")),
		MaxBodyBytes:    int64Env("SHEETBRIDGE_MAX_BODY_BYTES", 1<<20),
		RequestTimeout:  durationEnv("SHEETBRIDGE_REQUEST_TIMEOUT", 30*time.Second),
	}
}

// Load builds the effective config: env baseline, then the optional YAML
// file layered on top. APIKey is the only hard requirement; everything else
// has a default or degrades a single endpoint.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.overlay(fileCfg)
	}
	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("SHEETBRIDGE_API_KEY is required")
	}
	return cfg, nil
}

func readFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var raw struct {
		Config         `yaml:",inline"`
		RequestTimeout string `yaml:"request_timeout"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	cfg := raw.Config
	if raw.RequestTimeout != "" {
		timeout, err := time.ParseDuration(raw.RequestTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse config file: request_timeout: %w", err)
		}
		cfg.RequestTimeout = timeout
	}
	return cfg, nil
}

// overlay returns c with every non-zero field of over applied on top.
func (c Config) overlay(over Config) Config {
	if over.Addr != "" {
		c.Addr = over.Addr
	}
	if over.APIKey != "" {
		c.APIKey = over.APIKey
	}
	if over.StoreDSN != "" {
		c.StoreDSN = over.StoreDSN
	}
	if over.WebhookURL != "" {
		c.WebhookURL = over.WebhookURL
	}
	if over.WebhookSecret != "" {
		c.WebhookSecret = over.WebhookSecret
	}
	if over.StatusWebAppURL != "" {
		c.StatusWebAppURL = over.StatusWebAppURL
	}
	if over.MaxBodyBytes > 0 {
		c.MaxBodyBytes = over.MaxBodyBytes
	}
	if over.RequestTimeout > 0 {
		c.RequestTimeout = over.RequestTimeout
	}
	return c
}

// Runtime hands out a consistent snapshot of the config to request handlers
// and absorbs hot reloads. There is no other process-wide mutable state.
type Runtime struct {
	mu  sync.RWMutex
	cfg Config
}

func NewRuntime(cfg Config) *Runtime {
	return &Runtime{cfg: cfg}
}

func (r *Runtime) Snapshot() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

func (r *Runtime) Replace(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

func envOr(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
