package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-flash-exp", cfg.Vision.Model)
	assert.Equal(t, 500, cfg.Vision.MaxTokens)
	assert.InDelta(t, 0.0, cfg.Vision.Temperature, 0.001)
	assert.Equal(t, DefaultEndpoints, cfg.Vision.Endpoints)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 20*time.Second, cfg.Retry.AttemptTimeout())
	assert.Equal(t, 1000, cfg.Retry.BackoffMinMs)
	assert.Equal(t, 3000, cfg.Retry.BackoffMaxMs)
	assert.Equal(t, 90*time.Second, cfg.Recognize.Budget())
	assert.Equal(t, int64(3<<20), cfg.Recognize.MaxUploadBytes)
	assert.Equal(t, []string{"image/png", "image/jpeg", "image/jpg", "image/webp"}, cfg.Recognize.AllowedTypes)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
vision:
  model: gpt-4o
  endpoints:
    - name: primary
      url: https://llm.internal/v1/chat/completions
    - name: claude
      provider: anthropic
      model: claude-sonnet-4-5
log:
  level: debug
  format: console
server:
  port: 9090
retry:
  max_attempts: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Vision.Model)
	require.Len(t, cfg.Vision.Endpoints, 2)
	assert.Equal(t, EndpointConfig{Name: "primary", URL: "https://llm.internal/v1/chat/completions", Provider: "openai"}, cfg.Vision.Endpoints[0])
	assert.Equal(t, "anthropic", cfg.Vision.Endpoints[1].Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Vision.Endpoints[1].Model)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	// Defaults still apply for unset values
	assert.Equal(t, 20, cfg.Retry.AttemptTimeoutSecs)
	assert.Equal(t, 500, cfg.Vision.MaxTokens)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
vision:
  model: gpt-4o
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("AI4LATEX_VISION_MODEL", "gemini-1.5-pro")
	t.Setenv("AI4LATEX_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "gemini-1.5-pro", cfg.Vision.Model)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("AI4LATEX_SERVER_PORT", "3000")
	t.Setenv("AI4LATEX_VISION_API_KEY", "sk-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-env", cfg.Vision.APIKey)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("vision: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestResolveCredential(t *testing.T) {
	for _, name := range credentialEnv {
		t.Setenv(name, "")
	}

	cfg := &Config{}
	assert.Empty(t, cfg.ResolveCredential())

	t.Setenv("API_KEY", "generic")
	assert.Equal(t, "generic", cfg.ResolveCredential())

	t.Setenv("GEMINI_API_KEY", "gemini")
	assert.Equal(t, "gemini", cfg.ResolveCredential())

	t.Setenv("OPENAI_API_KEY", "openai")
	assert.Equal(t, "openai", cfg.ResolveCredential())

	cfg.Vision.APIKey = " configured "
	assert.Equal(t, "configured", cfg.ResolveCredential())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Vision.Model = "gemini-2.0-flash-exp"
	cfg.Vision.MaxTokens = 500
	cfg.Vision.Endpoints = append([]EndpointConfig(nil), DefaultEndpoints...)
	cfg.Retry = RetryConfig{MaxAttempts: 3, AttemptTimeoutSecs: 20, BackoffMinMs: 1000, BackoffMaxMs: 3000}
	cfg.Recognize = RecognizeConfig{BudgetSecs: 90, MaxUploadBytes: 3 << 20}
	cfg.Server = ServerConfig{Port: 8080, RatePerSec: 2, Burst: 5}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no endpoints", func(c *Config) { c.Vision.Endpoints = nil }, "at least one endpoint"},
		{"unnamed endpoint", func(c *Config) { c.Vision.Endpoints[0].Name = "" }, "name is required"},
		{"duplicate endpoint", func(c *Config) { c.Vision.Endpoints[1].Name = "openai" }, "duplicate endpoint"},
		{"missing url", func(c *Config) { c.Vision.Endpoints[0].URL = "" }, "url is required"},
		{"anthropic without url", func(c *Config) {
			c.Vision.Endpoints = []EndpointConfig{{Name: "claude", Provider: "anthropic", Model: "claude-sonnet-4-5"}}
		}, ""},
		{"anthropic inherits claude model", func(c *Config) {
			c.Vision.Model = "claude-sonnet-4-5"
			c.Vision.Endpoints = []EndpointConfig{{Name: "claude", Provider: "anthropic"}}
		}, ""},
		{"anthropic with non-claude model", func(c *Config) {
			c.Vision.Endpoints = append(c.Vision.Endpoints, EndpointConfig{Name: "claude", Provider: "anthropic"})
		}, "needs a claude model"},
		{"unknown provider", func(c *Config) { c.Vision.Endpoints[0].Provider = "cohere" }, "unknown provider"},
		{"no model", func(c *Config) { c.Vision.Model = "" }, "vision.model"},
		{"zero tokens", func(c *Config) { c.Vision.MaxTokens = 0 }, "max_tokens"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"too many attempts", func(c *Config) { c.Retry.MaxAttempts = 11 }, "max_attempts"},
		{"zero attempt timeout", func(c *Config) { c.Retry.AttemptTimeoutSecs = 0 }, "attempt_timeout_secs"},
		{"inverted backoff", func(c *Config) { c.Retry.BackoffMaxMs = 10 }, "backoff range"},
		{"zero budget", func(c *Config) { c.Recognize.BudgetSecs = 0 }, "budget_secs"},
		{"zero upload", func(c *Config) { c.Recognize.MaxUploadBytes = 0 }, "max_upload_bytes"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"negative burst", func(c *Config) { c.Server.Burst = -1 }, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
