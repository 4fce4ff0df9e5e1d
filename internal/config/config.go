// Package config provides configuration management for the paper analysis service.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment variables that carry secrets. They are never read from config files.
const (
	// EnvEncryptionKey holds the 64-hex-character AES-256 key for stored API keys.
	EnvEncryptionKey = "PAPERANALYSIS_ENCRYPTION_KEY"
	// EnvDatabasePassword holds the PostgreSQL password.
	EnvDatabasePassword = "PAPERANALYSIS_DATABASE_PASSWORD"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the paper analysis service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// ArXiv contains the arXiv source settings.
	ArXiv ArXivConfig `mapstructure:"arxiv"`
	// LLM contains provider adapter defaults.
	LLM LLMConfig `mapstructure:"llm"`
	// Analysis contains analysis job settings.
	Analysis AnalysisConfig `mapstructure:"analysis"`
	// Kafka contains job event publisher settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Scheduler contains the daily fetch task settings.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	// Secrets holds values loaded only from the environment.
	Secrets SecretsConfig `mapstructure:"-"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RequestTimeout bounds each API request handler.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Enabled selects PostgreSQL storage. When false the in-memory store is used.
	Enabled bool `mapstructure:"enabled"`
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is loaded from PAPERANALYSIS_DATABASE_PASSWORD only.
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// ArXivConfig holds arXiv API client settings.
type ArXivConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	BurstSize   int           `mapstructure:"burst_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// LLMConfig holds provider adapter defaults shared by every job.
type LLMConfig struct {
	// Temperature is the sampling temperature (default: 0.7).
	Temperature float64 `mapstructure:"temperature"`
	// MaxTokens caps the completion length (default: 4000).
	MaxTokens int `mapstructure:"max_tokens"`
	// Timeout bounds each vendor HTTP call.
	Timeout time.Duration `mapstructure:"timeout"`
	// DefaultModels maps a provider name to the model used when a key has none.
	DefaultModels map[string]string `mapstructure:"default_models"`
	// BaseURLs maps a provider name to an API root override.
	BaseURLs map[string]string `mapstructure:"base_urls"`
}

// AnalysisConfig holds analysis job settings.
type AnalysisConfig struct {
	// SystemPrompt is sent as the single system message of every job.
	SystemPrompt string `mapstructure:"system_prompt"`
	// MaxFullTextChars truncates full text before it is placed in the prompt.
	MaxFullTextChars int `mapstructure:"max_full_text_chars"`
	// PollInterval is the client poll interval advertised on job creation.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// KafkaConfig holds Kafka publisher settings for job lifecycle events.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic job events are written to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// SchedulerConfig holds the daily fetch task settings.
type SchedulerConfig struct {
	// Enabled starts the cron scheduler with the server.
	Enabled bool `mapstructure:"enabled"`
	// Spec is a standard five-field cron expression evaluated in UTC.
	Spec string `mapstructure:"spec"`
	// Query is the phrase fetched on every run.
	Query string `mapstructure:"query"`
	// MaxResults bounds each run.
	MaxResults int `mapstructure:"max_results"`
	// Timeout bounds a single run.
	Timeout time.Duration `mapstructure:"timeout"`
}

// SecretsConfig holds values read exclusively from environment variables.
type SecretsConfig struct {
	// EncryptionKey is the hex-encoded AES-256 key.
	EncryptionKey string
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PAPERANALYSIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-analysis")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Secrets.EncryptionKey = strings.TrimSpace(os.Getenv(EnvEncryptionKey))
	cfg.Database.Password = os.Getenv(EnvDatabasePassword)
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "paperanalysis")
	v.SetDefault("database.name", "paper_analysis")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// arXiv defaults
	v.SetDefault("arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("arxiv.timeout", "30s")
	v.SetDefault("arxiv.rate_limit", 1.0/3)
	v.SetDefault("arxiv.burst_size", 1)
	v.SetDefault("arxiv.max_attempts", 3)
	v.SetDefault("arxiv.retry_delay", "3s")
	v.SetDefault("arxiv.user_agent", "Helixir-PaperAnalysis/1.0")

	// LLM defaults
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.default_models", map[string]string{
		"deepseek": "deepseek-chat",
		"openai":   "gpt-4",
		"claude":   "claude-3-sonnet-20240229",
		"gemini":   "gemini-pro",
	})

	// Analysis defaults
	v.SetDefault("analysis.system_prompt", "You are an expert in time series analysis and academic paper review. Provide detailed, insightful analysis.")
	v.SetDefault("analysis.max_full_text_chars", 8000)
	v.SetDefault("analysis.poll_interval", "2s")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.paper_analysis")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.spec", "0 2 * * *")
	v.SetDefault("scheduler.query", "time series")
	v.SetDefault("scheduler.max_results", 10)
	v.SetDefault("scheduler.timeout", "5m")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate database config
	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.ArXiv.MaxAttempts <= 0 {
		return fmt.Errorf("arxiv max_attempts must be positive")
	}
	if c.ArXiv.RateLimit <= 0 {
		return fmt.Errorf("arxiv rate_limit must be positive")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm max_tokens must be positive")
	}

	if c.Analysis.MaxFullTextChars <= 0 {
		return fmt.Errorf("analysis max_full_text_chars must be positive")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.Query == "" {
			return fmt.Errorf("scheduler query is required when the scheduler is enabled")
		}
		if c.Scheduler.MaxResults < 1 || c.Scheduler.MaxResults > 50 {
			return fmt.Errorf("scheduler max_results must be between 1 and 50")
		}
	}

	key, err := hex.DecodeString(c.Secrets.EncryptionKey)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("%s must be 64 hex characters", EnvEncryptionKey)
	}

	return nil
}
