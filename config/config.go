// Package config provides configuration management for the temporal
// memory engine.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for the engine.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Engine holds write path and ranking settings.
	Engine EngineConfig `mapstructure:"engine"`

	// Metadata is the metadata store configuration.
	Metadata MetadataConfig `mapstructure:"metadata"`

	// Vector is the vector index configuration.
	Vector VectorConfig `mapstructure:"vector"`

	// Embedding is the embedding provider configuration.
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Lock is the slot lock configuration.
	Lock LockConfig `mapstructure:"lock"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// EngineConfig holds write path and ranking settings.
type EngineConfig struct {
	// RetryBudget is the number of optimistic write attempts per candidate.
	RetryBudget int `mapstructure:"retry_budget" validate:"min=1"`

	// ReindexInterval is how often lagged vector entries are retried.
	ReindexInterval time.Duration `mapstructure:"reindex_interval"`

	// SearchLimit is the default number of search results.
	SearchLimit int `mapstructure:"search_limit" validate:"min=1"`

	// HalfLifeDays sets the default decay half-life per record type.
	HalfLifeDays map[string]int `mapstructure:"half_life_days"`
}

// MetadataConfig holds metadata store settings.
type MetadataConfig struct {
	// Type is the metadata backend (memory, badger).
	Type string `mapstructure:"type" validate:"oneof=memory badger"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	// Type is the vector backend (local, chromem).
	Type string `mapstructure:"type" validate:"oneof=local chromem"`

	// Dimension is the expected vector width. Must match the embedding
	// provider's dimension.
	Dimension int `mapstructure:"dimension" validate:"min=1"`

	// Path enables on-disk persistence for backends that support it.
	Path string `mapstructure:"path"`

	// Compress gzip-compresses persisted chromem collections.
	Compress bool `mapstructure:"compress"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is the embedding implementation (mock, openai).
	Provider string `mapstructure:"provider" validate:"oneof=mock openai"`

	// Model is the embedding model name.
	Model string `mapstructure:"model"`

	// Dimension is the vector width.
	Dimension int `mapstructure:"dimension" validate:"min=1"`

	// APIKey is the provider API key. Prefer setting it via environment.
	APIKey string `mapstructure:"api_key"`

	// RequestsPerSecond caps the provider call rate; 0 disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
}

// LockConfig holds slot lock settings.
type LockConfig struct {
	// Type is the lock implementation (local, redis).
	Type string `mapstructure:"type" validate:"oneof=local redis"`

	// Redis is the Redis configuration for distributed locking.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db"`

	// TTL is how long a held slot lock survives a crashed owner.
	TTL time.Duration `mapstructure:"ttl"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	// Enabled enables span export.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter kind. Only otlpgrpc is supported.
	Exporter string `mapstructure:"exporter"`

	// Endpoint is the collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds a single export call.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are extra headers sent to the collector.
	Headers map[string]string `mapstructure:"headers"`

	// Sampler selects the sampling strategy (ratio, always_on, always_off).
	Sampler string `mapstructure:"sampler"`

	// SampleRate is the trace sampling ratio for the ratio sampler.
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Vector.Dimension != c.Embedding.Dimension {
		return fmt.Errorf("config validation failed: vector dimension %d does not match embedding dimension %d",
			c.Vector.Dimension, c.Embedding.Dimension)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s}",
		c.App.Name, c.Server.Port, c.App.Environment)
}
