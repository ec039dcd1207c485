// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.docpipe/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Temporal: server address, namespace, task queue
//   - Storage: PostgreSQL connection for the vector index (see storage.go)
//   - Blob: S3-compatible object store for run-scoped buckets
//   - AI: Gemini model and embedder selection
//   - Retry: activity retry tuning shared by all pipelines
//
// Sensitive values (passwords, API keys, secret keys) are only read from the
// environment and are never logged.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbeddingDim indicates the embedding dimension is out of range.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidTemporalAddress indicates the Temporal server address is invalid.
	ErrInvalidTemporalAddress = errors.New("invalid Temporal address")

	// ErrInvalidCollection indicates the corpus collection name is invalid.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrInvalidRetryAttempts indicates the retry attempt bound is out of range.
	ErrInvalidRetryAttempts = errors.New("invalid retry attempts")

	// ErrInvalidBackoff indicates the retry backoff coefficient is out of range.
	ErrInvalidBackoff = errors.New("invalid backoff coefficient")
)

const (
	// DefaultGeminiModel is the chat model used for answering and grading.
	DefaultGeminiModel = "gemini-2.5-flash"

	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation via OutputDimensionality; the pgvector schema uses 768.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultEmbeddingDimension must match the vector(N) column in
	// db/migrations.
	DefaultEmbeddingDimension = 768

	// DefaultTaskQueue is the Temporal task queue all pipelines run on.
	DefaultTaskQueue = "docpipe"

	// DefaultCollection is the logical corpus name ingestion appends into.
	DefaultCollection = "docs"
)

// Config stores application configuration.
type Config struct {
	// Temporal configuration
	TemporalAddress   string `mapstructure:"temporal_address"`
	TemporalNamespace string `mapstructure:"temporal_namespace"`
	TaskQueue         string `mapstructure:"task_queue"`

	// AI configuration
	GeminiAPIKey  string `mapstructure:"gemini_api_key"` // SENSITIVE: env only
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`
	EmbeddingDim  int32  `mapstructure:"embedding_dimension"`

	// Corpus configuration. Collection is the logical corpus name that
	// repeated ingestion runs append into.
	Collection string `mapstructure:"collection"`

	// Storage configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Blob store configuration (S3-compatible; MinIO in development)
	BlobEndpoint        string `mapstructure:"blob_endpoint"`
	BlobRegion          string `mapstructure:"blob_region"`
	BlobAccessKeyID     string `mapstructure:"blob_access_key_id"`     // SENSITIVE
	BlobSecretAccessKey string `mapstructure:"blob_secret_access_key"` // SENSITIVE

	// Retry configuration applied uniformly to activity calls.
	// BackoffCoefficient 1.0 yields a constant delay between attempts.
	RetryMaxAttempts        int     `mapstructure:"retry_max_attempts"`
	RetryBackoffCoefficient float64 `mapstructure:"retry_backoff_coefficient"`
	RetryInitialIntervalMS  int     `mapstructure:"retry_initial_interval_ms"`

	// TestSetDir is where batch evaluation looks up <name>.yaml test sets.
	TestSetDir string `mapstructure:"test_set_dir"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".docpipe")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing configuration file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Temporal defaults
	viper.SetDefault("temporal_address", "localhost:7233")
	viper.SetDefault("temporal_namespace", "default")
	viper.SetDefault("task_queue", DefaultTaskQueue)

	// AI defaults
	viper.SetDefault("model_name", DefaultGeminiModel)
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("embedding_dimension", DefaultEmbeddingDimension)

	// Corpus defaults
	viper.SetDefault("collection", DefaultCollection)

	// PostgreSQL defaults (local development database)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "docpipe")
	viper.SetDefault("postgres_password", "docpipe_dev_password")
	viper.SetDefault("postgres_db_name", "docpipe")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Blob store defaults (MinIO dev endpoint)
	viper.SetDefault("blob_endpoint", "http://localhost:9000")
	viper.SetDefault("blob_region", "us-east-1")

	// Retry defaults
	viper.SetDefault("retry_max_attempts", 3)
	viper.SetDefault("retry_backoff_coefficient", 2.0)
	viper.SetDefault("retry_initial_interval_ms", 1000)

	// Evaluation defaults
	viper.SetDefault("test_set_dir", "testsets")
}

// bindEnvVariables binds environment variables explicitly. Secrets are only
// ever read from the environment, never from the config file on disk.
func bindEnvVariables() {
	_ = viper.BindEnv("gemini_api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("blob_access_key_id", "AWS_ACCESS_KEY_ID")
	_ = viper.BindEnv("blob_secret_access_key", "AWS_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("blob_endpoint", "AWS_URL")
	_ = viper.BindEnv("temporal_address", "TEMPORAL_ADDRESS")
	_ = viper.BindEnv("temporal_namespace", "TEMPORAL_NAMESPACE")
	_ = viper.BindEnv("postgres_password", "POSTGRES_PASSWORD")
}
