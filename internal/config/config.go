package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	BackendNone     = "none"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

// Config holds all FinDost server configuration.
type Config struct {
	LLM         LLMConfig        `yaml:"llm"`
	Relay       RelayConfig      `yaml:"relay"`
	Server      ServerConfig     `yaml:"server"`
	Transcripts TranscriptConfig `yaml:"transcripts"`
	Cache       CacheConfig      `yaml:"cache"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// LLMConfig selects the hosted model and where its key comes from.
type LLMConfig struct {
	Provider        string `yaml:"provider"` // gemini, openai
	APIKey          string `yaml:"api_key"`
	APIKeyParam     string `yaml:"api_key_param"` // SSM parameter name; used when APIKey is empty
	Model           string `yaml:"model"`         // empty selects the provider default
	ModerationModel string `yaml:"moderation_model"`
	BaseURL         string `yaml:"base_url"` // openai only
	Timeout         string `yaml:"timeout"`
}

type RelayConfig struct {
	MaxOutputTokens  int `yaml:"max_output_tokens"`
	HistoryLimit     int `yaml:"history_limit"`
	MaxMessageLength int `yaml:"max_message_length"`
}

type ServerConfig struct {
	Port            string   `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	BodyLimitBytes  int64    `yaml:"body_limit_bytes"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
}

// TranscriptConfig enables the optional server-side exchange log.
type TranscriptConfig struct {
	Backend     string `yaml:"backend"` // none, dynamodb, postgres
	Table       string `yaml:"table"`
	DatabaseURL string `yaml:"database_url"`
}

type CacheConfig struct {
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: ProviderGemini,
			Timeout:  "30s",
		},
		Relay: RelayConfig{
			MaxOutputTokens:  1000,
			HistoryLimit:     10,
			MaxMessageLength: 2000,
		},
		Server: ServerConfig{
			Port:            "5001",
			AllowedOrigins:  []string{"*"},
			BodyLimitBytes:  1 << 20,
			ShutdownTimeout: "10s",
		},
		Transcripts: TranscriptConfig{
			Backend: BackendNone,
		},
		Cache: CacheConfig{
			TTL: "24h",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// An explicit provider wins; otherwise the presence of a key picks one.
	switch {
	case os.Getenv("LLM_PROVIDER") != "":
		c.LLM.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	case os.Getenv("GEMINI_API_KEY") != "":
		c.LLM.Provider = ProviderGemini
	case os.Getenv("OPENAI_API_KEY") != "":
		c.LLM.Provider = ProviderOpenAI
	}
	switch c.LLM.Provider {
	case ProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	case ProviderOpenAI:
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY_PARAM"); v != "" {
		c.LLM.APIKeyParam = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}

	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}

	if v := os.Getenv("TRANSCRIPT_BACKEND"); v != "" {
		c.Transcripts.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("TRANSCRIPT_TABLE"); v != "" {
		c.Transcripts.Table = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Transcripts.DatabaseURL = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{ProviderGemini, ProviderOpenAI}

// ValidBackends lists all supported transcript backends.
var ValidBackends = []string{BackendNone, BackendDynamoDB, BackendPostgres}

// Validate validates the configuration. A missing API key is deliberately
// not an error: the server starts and /chat reports it per request.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	backend := c.Transcripts.Backend
	if backend == "" {
		backend = BackendNone
	}
	if !contains(ValidBackends, backend) {
		return fmt.Errorf("invalid transcript backend: %s (valid: %v)", backend, ValidBackends)
	}
	if backend == BackendDynamoDB && strings.TrimSpace(c.Transcripts.Table) == "" {
		return errors.New("transcript backend dynamodb requires TRANSCRIPT_TABLE")
	}
	if backend == BackendPostgres && strings.TrimSpace(c.Transcripts.DatabaseURL) == "" {
		return errors.New("transcript backend postgres requires DATABASE_URL")
	}

	if c.Relay.MaxOutputTokens < 0 || c.Relay.HistoryLimit < 0 || c.Relay.MaxMessageLength < 0 {
		return errors.New("relay limits must not be negative")
	}
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %q", c.Server.Port)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// DefaultModels maps each provider to the model used when none is configured.
var DefaultModels = map[string]string{
	ProviderGemini: "gemini-1.5-flash",
	ProviderOpenAI: "gpt-4o-mini",
}

// ModelName returns the configured chat model or the provider default.
func (c *Config) ModelName() string {
	if m := strings.TrimSpace(c.LLM.Model); m != "" {
		return m
	}
	return DefaultModels[c.LLM.Provider]
}

// TranscriptsEnabled reports whether a transcript backend is configured.
func (c *Config) TranscriptsEnabled() bool {
	return c.Transcripts.Backend != "" && c.Transcripts.Backend != BackendNone
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 30*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown window.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// GetCacheTTL returns how long topic verdicts are kept.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, 24*time.Hour)
}

// LogLevel returns the configured level, falling back to info.
func (c *Config) LogLevel() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
