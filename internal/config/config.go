package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Vision    VisionConfig    `yaml:"vision" mapstructure:"vision"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Recognize RecognizeConfig `yaml:"recognize" mapstructure:"recognize"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// VisionConfig configures the upstream model and its endpoints.
type VisionConfig struct {
	Model       string           `yaml:"model" mapstructure:"model"`
	MaxTokens   int              `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64          `yaml:"temperature" mapstructure:"temperature"`
	APIKey      string           `yaml:"api_key" mapstructure:"api_key"`
	Endpoints   []EndpointConfig `yaml:"endpoints" mapstructure:"endpoints"`
}

// EndpointConfig is one upstream in failover order. Provider is "openai"
// (chat-completions compatible) or "anthropic". Model, when set, overrides
// vision.model for this endpoint.
type EndpointConfig struct {
	Name     string `yaml:"name" mapstructure:"name"`
	URL      string `yaml:"url" mapstructure:"url"`
	Provider string `yaml:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" mapstructure:"model"`
}

// RetryConfig bounds the per-endpoint retry loop.
type RetryConfig struct {
	MaxAttempts        int `yaml:"max_attempts" mapstructure:"max_attempts"`
	AttemptTimeoutSecs int `yaml:"attempt_timeout_secs" mapstructure:"attempt_timeout_secs"`
	BackoffMinMs       int `yaml:"backoff_min_ms" mapstructure:"backoff_min_ms"`
	BackoffMaxMs       int `yaml:"backoff_max_ms" mapstructure:"backoff_max_ms"`
}

// AttemptTimeout returns the per-attempt timeout as a duration.
func (r RetryConfig) AttemptTimeout() time.Duration {
	return time.Duration(r.AttemptTimeoutSecs) * time.Second
}

// RecognizeConfig configures request admission.
type RecognizeConfig struct {
	BudgetSecs     int      `yaml:"budget_secs" mapstructure:"budget_secs"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	AllowedTypes   []string `yaml:"allowed_types" mapstructure:"allowed_types"`
}

// Budget returns the end-to-end budget as a duration.
func (r RecognizeConfig) Budget() time.Duration {
	return time.Duration(r.BudgetSecs) * time.Second
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	RatePerSec  float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int      `yaml:"burst" mapstructure:"burst"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultEndpoints is the built-in failover list.
var DefaultEndpoints = []EndpointConfig{
	{Name: "openai", URL: "https://api.openai.com/v1/chat/completions", Provider: "openai"},
	{Name: "api2d", URL: "https://openai.api2d.net/v1/chat/completions", Provider: "openai"},
}

// Providers lists the supported endpoint providers.
var Providers = []string{"openai", "anthropic"}

// credentialEnv is checked in order when no key is configured.
var credentialEnv = []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "API_KEY"}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AI4LATEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("vision.model", "gemini-2.0-flash-exp")
	v.SetDefault("vision.max_tokens", 500)
	v.SetDefault("vision.temperature", 0.0)
	v.SetDefault("vision.api_key", "")
	v.SetDefault("vision.endpoints", defaultEndpointMaps())
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.attempt_timeout_secs", 20)
	v.SetDefault("retry.backoff_min_ms", 1000)
	v.SetDefault("retry.backoff_max_ms", 3000)
	v.SetDefault("recognize.budget_secs", 90)
	v.SetDefault("recognize.max_upload_bytes", 3<<20)
	v.SetDefault("recognize.allowed_types", []string{"image/png", "image/jpeg", "image/jpg", "image/webp"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_sec", 2.0)
	v.SetDefault("server.burst", 5)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	for i := range cfg.Vision.Endpoints {
		if cfg.Vision.Endpoints[i].Provider == "" {
			cfg.Vision.Endpoints[i].Provider = "openai"
		}
	}

	return &cfg, nil
}

func defaultEndpointMaps() []map[string]any {
	out := make([]map[string]any, 0, len(DefaultEndpoints))
	for _, ep := range DefaultEndpoints {
		out = append(out, map[string]any{"name": ep.Name, "url": ep.URL, "provider": ep.Provider, "model": ep.Model})
	}
	return out
}

// Validate reports the first configuration problem that would make
// recognition impossible. A missing credential is not an error here; it
// is reported per request.
func (c *Config) Validate() error {
	if len(c.Vision.Endpoints) == 0 {
		return eris.New("config: vision.endpoints must list at least one endpoint")
	}
	seen := make(map[string]bool, len(c.Vision.Endpoints))
	for i, ep := range c.Vision.Endpoints {
		if ep.Name == "" {
			return eris.Errorf("config: vision.endpoints[%d].name is required", i)
		}
		if seen[ep.Name] {
			return eris.Errorf("config: duplicate endpoint name %q", ep.Name)
		}
		seen[ep.Name] = true
		if ep.URL == "" && ep.Provider != "anthropic" {
			return eris.Errorf("config: vision.endpoints[%d].url is required", i)
		}
		if !validProvider(ep.Provider) {
			return eris.Errorf("config: endpoint %q has unknown provider %q", ep.Name, ep.Provider)
		}
		if ep.Provider == "anthropic" && ep.Model == "" && !strings.HasPrefix(c.Vision.Model, "claude-") {
			return eris.Errorf("config: anthropic endpoint %q needs a claude model, set vision.endpoints[%d].model", ep.Name, i)
		}
	}
	if c.Vision.Model == "" {
		return eris.New("config: vision.model is required")
	}
	if c.Vision.MaxTokens <= 0 {
		return eris.Errorf("config: vision.max_tokens must be positive, got %d", c.Vision.MaxTokens)
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		return eris.Errorf("config: retry.max_attempts must be 1-10, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.AttemptTimeoutSecs <= 0 {
		return eris.Errorf("config: retry.attempt_timeout_secs must be positive, got %d", c.Retry.AttemptTimeoutSecs)
	}
	if c.Retry.BackoffMinMs < 0 || c.Retry.BackoffMaxMs < c.Retry.BackoffMinMs {
		return eris.Errorf("config: retry backoff range [%d, %d] ms is invalid", c.Retry.BackoffMinMs, c.Retry.BackoffMaxMs)
	}
	if c.Recognize.BudgetSecs <= 0 {
		return eris.Errorf("config: recognize.budget_secs must be positive, got %d", c.Recognize.BudgetSecs)
	}
	if c.Recognize.MaxUploadBytes <= 0 {
		return eris.Errorf("config: recognize.max_upload_bytes must be positive, got %d", c.Recognize.MaxUploadBytes)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RatePerSec < 0 || c.Server.Burst < 0 {
		return eris.New("config: server.rate_per_sec and server.burst must not be negative")
	}
	return nil
}

func validProvider(p string) bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// ResolveCredential returns the configured key, or the first non-empty of
// OPENAI_API_KEY, GEMINI_API_KEY and API_KEY.
func (c *Config) ResolveCredential() string {
	if k := strings.TrimSpace(c.Vision.APIKey); k != "" {
		return k
	}
	for _, name := range credentialEnv {
		if k := strings.TrimSpace(os.Getenv(name)); k != "" {
			return k
		}
	}
	return ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
