// Package config loads litscreen settings from YAML, the environment and
// .env files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/litscreen/internal/dedup"
	"github.com/fentz26/litscreen/internal/delegate"
	"github.com/fentz26/litscreen/internal/export"
	"github.com/fentz26/litscreen/internal/registry"
	"github.com/fentz26/litscreen/internal/scheduler"
	"github.com/fentz26/litscreen/internal/screening"
	"github.com/fentz26/litscreen/internal/sink"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. LITSCREEN_AI_API_KEY.
const EnvPrefix = "LITSCREEN"

// FileName is the config file searched for in . and ~/.config/litscreen.
const FileName = "litscreen"

// Registry backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the full application configuration.
type Config struct {
	LogLevel  string           `yaml:"log_level" mapstructure:"log_level"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Scheduler scheduler.Config `yaml:"scheduler" mapstructure:"scheduler"`
	Registry  RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	AI        AIConfig         `yaml:"ai" mapstructure:"ai"`
	Screening ScreeningConfig  `yaml:"screening" mapstructure:"screening"`
	Audit     AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Sink      sink.Config      `yaml:"sink" mapstructure:"sink"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
	// MaxUploadMB bounds the aggregate size of one submission.
	MaxUploadMB int `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// RegistryConfig selects where task state lives.
type RegistryConfig struct {
	Backend string               `yaml:"backend" mapstructure:"backend"`
	Redis   registry.RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// AIConfig controls the semantic screening delegate.
type AIConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	RateLimit   float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxRetries  int           `yaml:"max_retries" mapstructure:"max_retries"`
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	Verify      bool          `yaml:"verify" mapstructure:"verify"`
}

// ScreeningConfig holds the default screening options.
type ScreeningConfig struct {
	RemoveDuplicates bool                 `yaml:"remove_duplicates" mapstructure:"remove_duplicates"`
	Blacklists       screening.Blacklists `yaml:"blacklists" mapstructure:"blacklists"`
	OutputFormat     string               `yaml:"output_format" mapstructure:"output_format"`
}

// AuditConfig controls the SQLite audit trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Listen:      "127.0.0.1:5000",
			MaxUploadMB: 50,
		},
		Scheduler: *scheduler.DefaultConfig(),
		Registry: RegistryConfig{
			Backend: BackendMemory,
			Redis:   registry.RedisConfig{Addr: "localhost:6379"},
		},
		AI: AIConfig{
			BaseURL:     delegate.DefaultBaseURL,
			Model:       delegate.DefaultModel,
			RateLimit:   delegate.DefaultRateLimit,
			MaxRetries:  4,
			CallTimeout: screening.DefaultCallTimeout,
		},
		Screening: ScreeningConfig{
			RemoveDuplicates: true,
			Blacklists:       screening.DefaultBlacklists(),
			OutputFormat:     string(export.FormatCSV),
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    defaultAuditPath(),
		},
		Sink: sink.Config{Format: string(export.FormatCSV)},
	}
}

func defaultAuditPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".litscreen", "audit.db")
	}
	return filepath.Join(home, ".litscreen", "audit.db")
}

// Load reads the configuration. path may be empty to search the default
// locations; a missing default file is not an error. Environment variables
// override file values.
func Load(path string) (*Config, string, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, "", fmt.Errorf("encode defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, "", fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "litscreen"))
		}
	}
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Default decode hooks turn "60s" into durations and comma lists into slices.
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Registry.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("registry.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Registry.Backend)
	}
	if c.Scheduler.GlobalMax < 1 {
		return fmt.Errorf("scheduler.global_max must be at least 1")
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be at least 1")
	}
	if _, err := export.ParseFormat(c.Screening.OutputFormat); err != nil {
		return fmt.Errorf("screening.output_format: %w", err)
	}
	if c.Sink.Enabled && c.Sink.Bucket == "" {
		return fmt.Errorf("sink.bucket is required when the sink is enabled")
	}
	return nil
}

// DedupMethod maps the remove_duplicates switch to a method.
func (s ScreeningConfig) DedupMethod() dedup.Method {
	if s.RemoveDuplicates {
		return dedup.MethodDOITitle
	}
	return dedup.MethodNone
}

// NewDelegate builds a client from the AI settings. apiKey overrides the
// configured key; model overrides the configured model when non-empty.
// It returns nil when no key is available.
func (a AIConfig) NewDelegate(apiKey, model string) delegate.Delegate {
	if apiKey == "" {
		apiKey = a.APIKey
	}
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = a.Model
	}
	return delegate.NewOpenAIClient(apiKey,
		delegate.WithBaseURL(a.BaseURL),
		delegate.WithModel(model),
		delegate.WithRateLimit(a.RateLimit),
		delegate.WithMaxRetries(a.MaxRetries),
	)
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	// The file can carry an API key.
	return os.WriteFile(path, data, 0600)
}

// String renders the configuration as YAML with the API key masked.
func (c *Config) String() string {
	masked := *c
	if masked.AI.APIKey != "" {
		masked.AI.APIKey = "****"
	}
	if masked.Registry.Redis.Password != "" {
		masked.Registry.Redis.Password = "****"
	}
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return err.Error()
	}
	return string(data)
}
