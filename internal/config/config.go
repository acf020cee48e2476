// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (DOCBASE_* prefix, runtime override)
//  2. Config file (config.yaml in the working directory or /etc/docbase)
//  3. Default values
//
// Security: secrets (database URL, API tokens, webhook secret) are never
// logged. Validation uses sentinel errors so callers can match with
// errors.Is().
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration problems.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingDatabaseURL indicates the Postgres connection string is absent.
	ErrMissingDatabaseURL = errors.New("missing database URL")

	// ErrMissingAPIKey indicates the model provider API key is absent.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidChunking indicates chunk size/overlap values are unusable.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidConcurrency indicates the crawl concurrency is out of range.
	ErrInvalidConcurrency = errors.New("invalid crawl concurrency")

	// ErrInvalidWebhook indicates the webhook URL is malformed.
	ErrInvalidWebhook = errors.New("invalid webhook URL")
)

// Config holds all runtime configuration for docbase.
type Config struct {
	// Server
	Addr string `mapstructure:"addr"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Database (Postgres with pgvector)
	DatabaseURL string `mapstructure:"database_url"`

	// Model provider (Genkit Google AI plugin)
	GeminiAPIKey  string `mapstructure:"gemini_api_key"`
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`
	EmbeddingDim  int    `mapstructure:"embedding_dim"`

	// Ingestion
	ChunkSize        int  `mapstructure:"chunk_size"`
	ChunkOverlap     int  `mapstructure:"chunk_overlap"`
	CrawlConcurrency int  `mapstructure:"crawl_concurrency"`
	AllowLoopback    bool `mapstructure:"allow_loopback"`

	// Completion webhook for document status callbacks
	WebhookURL    string `mapstructure:"webhook_url"`
	WebhookSecret string `mapstructure:"webhook_secret"`

	// Object storage for file-sourced raw text
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`

	// Observability (optional OTLP trace export)
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// ObjectStoreConfig holds S3-compatible object storage settings.
type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/docbase")

	v.SetEnvPrefix("DOCBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No file is fine: env vars and defaults carry the day.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Every key gets a default so AutomaticEnv can bind it during
	// Unmarshal (viper only maps env vars for known keys).
	v.SetDefault("addr", "127.0.0.1:8400")
	v.SetDefault("database_url", "")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("webhook_url", "")
	v.SetDefault("webhook_secret", "")
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("object_store.endpoint", "")
	v.SetDefault("object_store.access_key", "")
	v.SetDefault("object_store.secret_key", "")
	v.SetDefault("object_store.bucket", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("model_name", "googleai/gemini-2.5-flash")
	v.SetDefault("embedder_model", "text-embedding-004")
	v.SetDefault("embedding_dim", 768)
	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 50)
	v.SetDefault("crawl_concurrency", 5)
	v.SetDefault("allow_loopback", false)
	v.SetDefault("object_store.use_ssl", true)
}
