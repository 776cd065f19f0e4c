package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "temporalmem",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 10 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Engine: EngineConfig{
			RetryBudget:     3,
			ReindexInterval: 30 * time.Second,
			SearchLimit:     10,
			HalfLifeDays: map[string]int{
				"profile_fact":   365,
				"preference":     180,
				"episodic_event": 30,
				"temp_state":     2,
				"task_state":     7,
				"other":          30,
			},
		},
		Metadata: MetadataConfig{
			Type: "memory",
			Badger: BadgerConfig{
				Path:             "./data/metadata",
				SyncWrites:       true,
				ValueLogFileSize: 1073741824, // 1GB
			},
		},
		Vector: VectorConfig{
			Type:      "local",
			Dimension: 64,
			Path:      "",
			Compress:  false,
		},
		Embedding: EmbeddingConfig{
			Provider:          "mock",
			Model:             "text-embedding-3-small",
			Dimension:         64,
			RequestsPerSecond: 0,
		},
		Lock: LockConfig{
			Type: "local",
			Redis: RedisConfig{
				Address:  "localhost:6379",
				Password: "",
				DB:       0,
				TTL:      30 * time.Second,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlpgrpc",
			Endpoint:   "localhost:4317",
			Timeout:    10 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
	}
}
