package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, loadFile(filepath.Join(t.TempDir(), "nope.yaml"), &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crux.yaml")
	data := `
store:
  dsn: badger:/var/lib/crux
enrich:
  provider: openai
  model: gpt-4o-mini
  timeout: 45s
  attempts: 3
run:
  workers: 4
  on_error: continue
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg := Default()
	require.NoError(t, loadFile(path, &cfg))
	assert.Equal(t, "badger:/var/lib/crux", cfg.Store.DSN)
	assert.Equal(t, 4096, cfg.Store.CacheSize, "unset keys keep defaults")
	assert.Equal(t, "openai", cfg.Enrich.Provider)
	assert.Equal(t, 45*time.Second, cfg.Enrich.Timeout)
	assert.Equal(t, 3, cfg.Enrich.Attempts)
	assert.Equal(t, 4, cfg.Run.Workers)
	assert.Equal(t, OnErrorContinue, cfg.Run.OnError)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileBadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crux.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0o644))
	cfg := Default()
	require.Error(t, loadFile(path, &cfg))
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"CRUX_DB":         "memory:",
		"CRUX_PROVIDER":   "gemini",
		"CRUX_WORKERS":    "8",
		"CRUX_WORKERS_X":  "ignored",
		"CRUX_TIMEOUT":    "1m",
		"CRUX_RATE_LIMIT": "2.5",
		"CRUX_FORCE":      "1",
		"CRUX_ATTEMPTS":   "not-a-number",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	applyEnv(&cfg, lookup)
	assert.Equal(t, "memory:", cfg.Store.DSN)
	assert.Equal(t, "gemini", cfg.Enrich.Provider)
	assert.Equal(t, 8, cfg.Run.Workers)
	assert.Equal(t, time.Minute, cfg.Enrich.Timeout)
	assert.InDelta(t, 2.5, cfg.Enrich.RateLimit, 1e-9)
	assert.True(t, cfg.Run.Force)
	assert.Equal(t, 1, cfg.Enrich.Attempts, "unparseable values are ignored")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		isErr  error
	}{
		{"unknown provider", func(c *Config) { c.Enrich.Provider = "clippy" }, ErrUnknownProvider},
		{"empty dsn", func(c *Config) { c.Store.DSN = " " }, nil},
		{"zero workers", func(c *Config) { c.Run.Workers = 0 }, nil},
		{"zero attempts", func(c *Config) { c.Enrich.Attempts = 0 }, nil},
		{"bad policy", func(c *Config) { c.Run.OnError = "shrug" }, nil},
		{"negative rate", func(c *Config) { c.Enrich.RateLimit = -1 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.isErr != nil {
				assert.True(t, errors.Is(err, tt.isErr), "got %v", err)
			}
		})
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("CRUX_TEST_KEY", " secret ")
	t.Setenv("OPENAI_API_KEY", "sk-default")

	assert.Equal(t, "secret", EnrichConfig{Provider: "openai", APIKeyEnv: "CRUX_TEST_KEY"}.APIKey())
	assert.Equal(t, "sk-default", EnrichConfig{Provider: "openai"}.APIKey())
	assert.Empty(t, EnrichConfig{Provider: "mock"}.APIKey())
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CRUX_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("CRUX_TEST_DOTENV", "")
	os.Unsetenv("CRUX_TEST_DOTENV")

	require.NoError(t, LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("CRUX_TEST_DOTENV"))
}
