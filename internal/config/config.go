// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/pagelens/pagelens/internal/extract"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Crawler   CrawlerConfig    `mapstructure:"crawler"`
	Headless  HeadlessConfig   `mapstructure:"headless"`
	Providers []ProviderConfig `mapstructure:"providers" validate:"min=1,dive"`
	Modes     []ModeConfig     `mapstructure:"modes" validate:"min=1,dive"`
	Engine    EngineConfig     `mapstructure:"engine"`
	Storage   StorageConfig    `mapstructure:"storage"`
	DB        DBConfig         `mapstructure:"db"`
	Publisher PublisherConfig  `mapstructure:"publisher"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int `mapstructure:"port" validate:"gt=0,lte=65535"`
	ShutdownSeconds   int `mapstructure:"shutdown_seconds" validate:"gt=0"`
	RequestTimeoutSec int `mapstructure:"request_timeout_seconds" validate:"gt=0"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs page fetching.
type CrawlerConfig struct {
	UserAgent      string `mapstructure:"user_agent" validate:"required"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gt=0"`
	IgnoreRobots   bool   `mapstructure:"ignore_robots"`
	MaxBodyBytes   int64  `mapstructure:"max_body_bytes" validate:"gt=0"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// ProviderConfig describes one LLM backend.
type ProviderConfig struct {
	Name           string  `mapstructure:"name" validate:"required"`
	Kind           string  `mapstructure:"kind" validate:"required,oneof=openai anthropic ollama"`
	Endpoint       string  `mapstructure:"endpoint" validate:"omitempty,url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model" validate:"required"`
	MaxTokens      int     `mapstructure:"max_tokens" validate:"gte=0"`
	Temperature    float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" validate:"gte=0"`
	Default        bool    `mapstructure:"default"`
}

// ModeConfig binds an extraction mode name to its prompt template.
type ModeConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	Template string `mapstructure:"template" validate:"required"`
}

// EngineConfig tunes concurrency and retry behavior of extractions.
// RetryOn narrows which transient failure classes are retried; empty means
// all of them. Permanent failures are never retried regardless.
type EngineConfig struct {
	MaxConcurrency      int      `mapstructure:"max_concurrency" validate:"gte=0"`
	MaxRetries          int      `mapstructure:"max_retries" validate:"gt=0"`
	RetryBackoff        string   `mapstructure:"retry_backoff" validate:"oneof=linear exponential"`
	RetryBaseDelayMs    int      `mapstructure:"retry_base_delay_ms" validate:"gt=0"`
	RetryOn             []string `mapstructure:"retry_on" validate:"omitempty,dive,oneof=timeout rate_limit transport server_error"`
	BatchTimeoutSeconds int      `mapstructure:"batch_timeout_seconds" validate:"gte=0"`
}

// StorageConfig selects and configures the artifact blob backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend" validate:"oneof=gcs local memory"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory task store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// PublisherConfig holds metadata for task completion notifications.
type PublisherConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Modes) == 0 {
		cfg.Modes = DefaultModes()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_seconds", 10)
	// Above the engine batch timeout so the batch decides, not the HTTP layer.
	v.SetDefault("server.request_timeout_seconds", 330)
	v.SetDefault("crawler.user_agent", "pagelens-bot/0.1")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.ignore_robots", false)
	v.SetDefault("crawler.max_body_bytes", 8*1024*1024)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.retry_backoff", "linear")
	v.SetDefault("engine.retry_base_delay_ms", 1000)
	v.SetDefault("engine.batch_timeout_seconds", 300)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "artifacts")
	v.SetDefault("storage.content_type", "application/json")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and cross-field constraints. Structural
// problems are reported together so a broken config surfaces in one pass.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	if c.Storage.Backend == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set for the local backend")
	}
	if c.Publisher.Enabled && (c.Publisher.ProjectID == "" || c.Publisher.TopicName == "") {
		return fmt.Errorf("publisher.project_id and publisher.topic_name must be set when the publisher is enabled")
	}
	return nil
}

// ExtractProviders converts the provider sections into engine provider
// configs. Name uniqueness and default selection are enforced by the
// provider registry.
func (c Config) ExtractProviders() []extract.ProviderConfig {
	providers := make([]extract.ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		providers = append(providers, extract.ProviderConfig{
			Name:        p.Name,
			Kind:        extract.ProviderKind(p.Kind),
			Endpoint:    p.Endpoint,
			APIKey:      p.APIKey,
			Model:       p.Model,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
			Timeout:     time.Duration(p.TimeoutSeconds) * time.Second,
			Default:     p.Default,
		})
	}
	return providers
}

// ExtractModes converts the mode sections into catalog modes.
func (c Config) ExtractModes() []extract.Mode {
	modes := make([]extract.Mode, 0, len(c.Modes))
	for _, m := range c.Modes {
		modes = append(modes, extract.Mode{Name: m.Name, Template: m.Template})
	}
	return modes
}

// EngineSettings converts the engine section into engine and retry settings.
func (c Config) EngineSettings() (extract.EngineConfig, *extract.RetryPolicy) {
	engineCfg := extract.EngineConfig{
		MaxConcurrency: c.Engine.MaxConcurrency,
		BatchTimeout:   time.Duration(c.Engine.BatchTimeoutSeconds) * time.Second,
	}
	retryOn := make([]extract.RetryClass, 0, len(c.Engine.RetryOn))
	for _, class := range c.Engine.RetryOn {
		retryOn = append(retryOn, extract.RetryClass(class))
	}
	policy := extract.NewRetryPolicy(
		c.Engine.MaxRetries,
		extract.BackoffKind(c.Engine.RetryBackoff),
		time.Duration(c.Engine.RetryBaseDelayMs)*time.Millisecond,
		retryOn...,
	)
	return engineCfg, policy
}

// RequestTimeout converts the HTTP request timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

// CrawlTimeout converts the crawler timeout into a duration.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// HeadlessNavTimeout converts the headless navigation timeout into a
// duration.
func (c Config) HeadlessNavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
