// Package config loads crux settings from defaults, an optional YAML file
// and CRUX_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up when none is given.
const DefaultFile = "crux.yaml"

// ErrUnknownProvider is returned when enrich.provider names no known
// enrichment backend.
var ErrUnknownProvider = errors.New("unknown enrichment provider")

// Providers lists the accepted enrich.provider values.
var Providers = []string{"mock", "openai", "gemini", "ollama"}

// Failure policies accepted by run.on_error.
const (
	OnErrorFail     = "fail"
	OnErrorContinue = "continue"
)

// Config is the full crux configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Enrich  EnrichConfig  `yaml:"enrich"`
	Run     RunConfig     `yaml:"run"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	// DSN is a path to a SQLite file, or one of badger:<dir>, memory:,
	// postgres://...
	DSN string `yaml:"dsn"`
	// CacheSize is the number of results kept in the read cache. Zero
	// disables the cache.
	CacheSize int `yaml:"cache_size"`
}

// EnrichConfig describes the enrichment backend and its decorators.
type EnrichConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	Timeout   time.Duration `yaml:"timeout"`
	Attempts  int           `yaml:"attempts"`
	Backoff   time.Duration `yaml:"backoff"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int           `yaml:"burst"`
}

// RunConfig controls the enrichment driver.
type RunConfig struct {
	Force   bool   `yaml:"force"`
	Workers int    `yaml:"workers"`
	OnError string `yaml:"on_error"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables it.
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{
			DSN:       "crux.db",
			CacheSize: 4096,
		},
		Enrich: EnrichConfig{
			Provider: "mock",
			Attempts: 1,
			Backoff:  2 * time.Second,
			Burst:    1,
		},
		Run: RunConfig{
			Workers: 1,
			OnError: OnErrorFail,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped when
// path is empty or the file does not exist) and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadEnvFiles loads KEY=VALUE pairs from the given dotenv files into the
// process environment. Missing files are skipped; variables already set win.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			if i, err := strconv.Atoi(v); err == nil {
				*dst = i
			}
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("CRUX_DB", &cfg.Store.DSN)
	num("CRUX_CACHE_SIZE", &cfg.Store.CacheSize)

	str("CRUX_PROVIDER", &cfg.Enrich.Provider)
	str("CRUX_MODEL", &cfg.Enrich.Model)
	str("CRUX_BASE_URL", &cfg.Enrich.BaseURL)
	str("CRUX_API_KEY_ENV", &cfg.Enrich.APIKeyEnv)
	dur("CRUX_TIMEOUT", &cfg.Enrich.Timeout)
	num("CRUX_ATTEMPTS", &cfg.Enrich.Attempts)
	dur("CRUX_BACKOFF", &cfg.Enrich.Backoff)
	if v, ok := lookup("CRUX_RATE_LIMIT"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Enrich.RateLimit = f
		}
	}
	num("CRUX_BURST", &cfg.Enrich.Burst)

	if v, ok := lookup("CRUX_FORCE"); ok {
		cfg.Run.Force = v == "true" || v == "1"
	}
	num("CRUX_WORKERS", &cfg.Run.Workers)
	str("CRUX_ON_ERROR", &cfg.Run.OnError)

	str("CRUX_LOG_LEVEL", &cfg.Log.Level)
	str("CRUX_LOG_FORMAT", &cfg.Log.Format)

	str("CRUX_METRICS_ADDR", &cfg.Metrics.Addr)
}

// Validate checks the configuration for values no component can honour.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Store.DSN) == "" {
		return errors.New("store.dsn must not be empty")
	}
	if c.Store.CacheSize < 0 {
		return errors.New("store.cache_size must be >= 0")
	}
	if !knownProvider(c.Enrich.Provider) {
		return fmt.Errorf("%w %q (want one of %s)", ErrUnknownProvider, c.Enrich.Provider, strings.Join(Providers, ", "))
	}
	if c.Enrich.Attempts < 1 {
		return errors.New("enrich.attempts must be >= 1")
	}
	if c.Enrich.Timeout < 0 || c.Enrich.Backoff < 0 {
		return errors.New("enrich durations must not be negative")
	}
	if c.Enrich.RateLimit < 0 {
		return errors.New("enrich.rate_limit must be >= 0")
	}
	if c.Run.Workers < 1 {
		return errors.New("run.workers must be >= 1")
	}
	switch c.Run.OnError {
	case OnErrorFail, OnErrorContinue:
	default:
		return fmt.Errorf("run.on_error must be %q or %q, got %q", OnErrorFail, OnErrorContinue, c.Run.OnError)
	}
	return nil
}

func knownProvider(p string) bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// APIKey returns the key for the configured provider, read from APIKeyEnv
// or the provider's conventional variable.
func (e EnrichConfig) APIKey() string {
	name := e.APIKeyEnv
	if name == "" {
		switch e.Provider {
		case "openai":
			name = "OPENAI_API_KEY"
		case "gemini":
			name = "GEMINI_API_KEY"
		default:
			return ""
		}
	}
	return strings.TrimSpace(os.Getenv(name))
}
