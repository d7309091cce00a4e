package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/extract"
)

func validBase() Config {
	return Config{
		Server:  ServerConfig{Port: 8080, ShutdownSeconds: 10, RequestTimeoutSec: 330},
		Crawler: CrawlerConfig{UserAgent: "ua", TimeoutSeconds: 15, MaxBodyBytes: 1024},
		Providers: []ProviderConfig{
			{Name: "openai-main", Kind: "openai", APIKey: "sk", Model: "gpt-4o-mini", Default: true},
		},
		Modes: DefaultModes(),
		Engine: EngineConfig{
			MaxConcurrency:   4,
			MaxRetries:       3,
			RetryBackoff:     "linear",
			RetryBaseDelayMs: 1000,
		},
		Storage: StorageConfig{Backend: "memory", Prefix: "artifacts", ContentType: "application/json"},
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  user_agent: pagelens-test
  timeout_seconds: 30
  ignore_robots: true
providers:
  - name: openai-main
    kind: openai
    api_key: sk-test
    model: gpt-4o-mini
    max_tokens: 2048
    temperature: 0.2
    timeout_seconds: 45
    default: true
  - name: qwen-dashscope
    kind: openai
    endpoint: https://dashscope.aliyuncs.com/compatible-mode/v1
    api_key: sk-qwen
    model: qwen-plus
  - name: ollama-local
    kind: ollama
    model: llama3.2
modes:
  - name: content_summary
    template: "Summarize:\n\n{content}"
engine:
  max_concurrency: 8
  max_retries: 5
  retry_backoff: exponential
  retry_base_delay_ms: 250
  retry_on: [rate_limit, server_error]
  batch_timeout_seconds: 120
storage:
  backend: gcs
  gcs_bucket: pagelens-artifacts
  prefix: tasks
db:
  dsn: postgres://pagelens:pw@localhost:5432/pagelens
publisher:
  enabled: true
  project_id: demo
  topic_name: task-complete
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "pagelens-test", cfg.Crawler.UserAgent)
	require.Equal(t, 30*time.Second, cfg.CrawlTimeout())
	require.Len(t, cfg.Providers, 3)
	require.Equal(t, "qwen-plus", cfg.Providers[1].Model)
	require.Equal(t, "gcs", cfg.Storage.Backend)
	require.Equal(t, "pagelens-artifacts", cfg.Storage.GCSBucket)

	providers := cfg.ExtractProviders()
	require.Len(t, providers, 3)
	require.Equal(t, extract.ProviderKindOpenAI, providers[0].Kind)
	require.Equal(t, 45*time.Second, providers[0].Timeout)
	require.True(t, providers[0].Default)

	modes := cfg.ExtractModes()
	require.Len(t, modes, 1)
	require.Equal(t, "content_summary", modes[0].Name)

	engineCfg, policy := cfg.EngineSettings()
	require.Equal(t, 8, engineCfg.MaxConcurrency)
	require.Equal(t, 120*time.Second, engineCfg.BatchTimeout)
	require.Equal(t, 5, policy.MaxAttempts())

	// retry_on narrows the retried classes; timeouts fall outside it here.
	require.Equal(t, []string{"rate_limit", "server_error"}, cfg.Engine.RetryOn)
	require.True(t, policy.ShouldRetry(extract.NewProviderError("p", 429, errors.New("slow down")), 1))
	require.False(t, policy.ShouldRetry(context.DeadlineExceeded, 1))
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
providers:
  - name: ollama-local
    kind: ollama
    model: llama3.2
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, "linear", cfg.Engine.RetryBackoff)
	// Absent modes section falls back to the built-in catalog.
	require.Len(t, cfg.Modes, 5)
	names := make([]string, 0, len(cfg.Modes))
	for _, m := range cfg.Modes {
		names = append(names, m.Name)
	}
	require.Equal(t, []string{"structured_data", "content_summary", "key_points", "entities", "sentiment"}, names)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "invalid port",
			mutate: func(c *Config) { c.Server.Port = 0 },
			want:   "Port",
		},
		{
			name:   "no providers",
			mutate: func(c *Config) { c.Providers = nil },
			want:   "Providers",
		},
		{
			name:   "bad provider kind",
			mutate: func(c *Config) { c.Providers[0].Kind = "bedrock" },
			want:   "Kind",
		},
		{
			name:   "bad backoff",
			mutate: func(c *Config) { c.Engine.RetryBackoff = "fibonacci" },
			want:   "RetryBackoff",
		},
		{
			name:   "bad retry class",
			mutate: func(c *Config) { c.Engine.RetryOn = []string{"full_moon"} },
			want:   "RetryOn",
		},
		{
			name:   "auth missing api key",
			mutate: func(c *Config) { c.Auth.Enabled = true },
			want:   "auth.api_key",
		},
		{
			name:   "gcs missing bucket",
			mutate: func(c *Config) { c.Storage.Backend = "gcs" },
			want:   "storage.gcs_bucket",
		},
		{
			name:   "local missing dir",
			mutate: func(c *Config) { c.Storage.Backend = "local" },
			want:   "storage.local_dir",
		},
		{
			name:   "publisher missing topic",
			mutate: func(c *Config) { c.Publisher.Enabled = true },
			want:   "publisher.project_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validBase()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefaultModeTemplatesHaveOnePlaceholder(t *testing.T) {
	t.Parallel()

	_, err := extract.NewPromptCatalog(Config{Modes: DefaultModes()}.ExtractModes())
	require.NoError(t, err)
}
