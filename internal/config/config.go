// Package config loads and validates import service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by the storage and queue sections.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendPubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Importer ImporterConfig `mapstructure:"importer"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig selects the progress cache tier. An empty URL selects the
// in-memory cache.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// StorageConfig selects where uploaded source files live.
type StorageConfig struct {
	Backend             string `mapstructure:"backend"`
	GCSBucket           string `mapstructure:"gcs_bucket"`
	LocalDir            string `mapstructure:"local_dir"`
	UploadURLTTLSeconds int    `mapstructure:"upload_url_ttl_seconds"`
}

// PubSubConfig holds Cloud Pub/Sub coordinates for the task queue.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	TopicName    string `mapstructure:"topic_name"`
	Subscription string `mapstructure:"subscription"`
}

// QueueConfig selects the task queue backend.
type QueueConfig struct {
	Backend string `mapstructure:"backend"`
	Depth   int    `mapstructure:"depth"`
}

// ImporterConfig governs the import pipeline and worker pool.
type ImporterConfig struct {
	ChunkSize               int `mapstructure:"chunk_size"`
	DurableEvery            int `mapstructure:"durable_every"`
	Concurrency             int `mapstructure:"concurrency"`
	TerminalCacheTTLSeconds int `mapstructure:"terminal_cache_ttl_seconds"`
}

// WebhookConfig bounds outbound webhook delivery.
type WebhookConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxAttempts    int `mapstructure:"max_attempts"`
	RetryDelayMs   int `mapstructure:"retry_delay_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMPORTD")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.local_dir", "./data/uploads")
	v.SetDefault("storage.upload_url_ttl_seconds", 3600)
	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.depth", 64)
	v.SetDefault("importer.chunk_size", 1000)
	v.SetDefault("importer.durable_every", 5)
	v.SetDefault("importer.concurrency", 4)
	v.SetDefault("importer.terminal_cache_ttl_seconds", 3600)
	v.SetDefault("webhook.timeout_seconds", 5)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.retry_delay_ms", 1000)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Importer.ChunkSize <= 0 {
		return fmt.Errorf("importer.chunk_size must be > 0")
	}
	if c.Importer.Concurrency <= 0 {
		return fmt.Errorf("importer.concurrency must be > 0")
	}
	if c.Webhook.TimeoutSeconds <= 0 {
		return fmt.Errorf("webhook.timeout_seconds must be > 0")
	}
	switch c.Storage.Backend {
	case BackendLocal:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Queue.Backend {
	case BackendMemory:
	case BackendPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" || c.PubSub.Subscription == "" {
			return fmt.Errorf("pubsub.project_id, pubsub.topic_name, and pubsub.subscription must be set when queue.backend is pubsub")
		}
	default:
		return fmt.Errorf("queue.backend %q is not supported", c.Queue.Backend)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// UploadURLTTL returns the signed upload URL lifetime.
func (c Config) UploadURLTTL() time.Duration {
	return time.Duration(c.Storage.UploadURLTTLSeconds) * time.Second
}

// ServerTimeout returns the per-request handler budget.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// WebhookTimeout returns the per-attempt delivery budget.
func (c Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Webhook.TimeoutSeconds) * time.Second
}

// WebhookRetryDelay returns the fixed delay between delivery attempts.
func (c Config) WebhookRetryDelay() time.Duration {
	return time.Duration(c.Webhook.RetryDelayMs) * time.Millisecond
}

// TerminalCacheTTL returns the cache grace window after a job finishes.
func (c Config) TerminalCacheTTL() time.Duration {
	return time.Duration(c.Importer.TerminalCacheTTLSeconds) * time.Second
}
