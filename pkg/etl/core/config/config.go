// Package config provides structures and utilities for managing the engine configuration.
package config

// EmbeddedConfig holds the raw configuration file content, typically embedded
// into the binary and passed from main.
type EmbeddedConfig []byte

// RetryConfig holds retry settings for load operations.
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`     // MaxAttempts is the maximum number of attempts including the first.
	InitialInterval int     `yaml:"initial_interval"` // InitialInterval is the initial backoff interval in milliseconds.
	MaxInterval     int     `yaml:"max_interval"`     // MaxInterval caps the backoff interval in milliseconds.
	Factor          float64 `yaml:"factor"`           // Factor is the backoff multiplier (e.g. 2.0).
}

// EngineConfig holds chunking and worker pool settings.
type EngineConfig struct {
	// InitialChunkRows is the chunk size used for the first batch of a run.
	InitialChunkRows int `yaml:"initial_chunk_rows"`
	// MinChunkRows is the lower bound for adaptive chunk sizing.
	MinChunkRows int `yaml:"min_chunk_rows"`
	// MaxChunkRows is the upper bound for adaptive chunk sizing.
	MaxChunkRows int `yaml:"max_chunk_rows"`
	// ChunksPerBatch is the number of chunks consumed per batch window.
	ChunksPerBatch int `yaml:"chunks_per_batch"`
	// Concurrency is the number of pool workers per batch.
	Concurrency int `yaml:"concurrency"`
	// FailFast cancels outstanding chunks on the first chunk failure.
	FailFast bool `yaml:"fail_fast"`
	// BatchTimeoutSeconds is the optional wall-clock budget per batch. Zero disables it.
	BatchTimeoutSeconds int `yaml:"batch_timeout_seconds"`
	// TargetChunkMillis is the per-chunk duration budget driving adaptive sizing.
	TargetChunkMillis int `yaml:"target_chunk_millis"`
	// MemoryBudgetRatio is the memory pressure threshold driving adaptive sizing.
	MemoryBudgetRatio float64 `yaml:"memory_budget_ratio"`
	// Retry configures retries around the load stage.
	Retry RetryConfig `yaml:"retry"`
}

// CheckpointConfig holds checkpoint store settings.
type CheckpointConfig struct {
	// Backend selects the store implementation: "file" or "database".
	Backend string `yaml:"backend"`
	// Dir is the root directory for the file backend.
	Dir string `yaml:"dir"`
	// KeepLast is the number of checkpoints retained by expiration.
	KeepLast int `yaml:"keep_last"`
	// DBRef is the name of the database connection used by the database backend.
	DBRef string `yaml:"db_ref"`
}

// IncrementalConfig holds incremental state settings.
type IncrementalConfig struct {
	// Backend selects the state store implementation: "file" or "database".
	Backend string `yaml:"backend"`
	// Dir is the root directory for the file backend.
	Dir string `yaml:"dir"`
	// Mode selects delta computation: "append" or "cdc".
	Mode string `yaml:"mode"`
	// DBRef is the name of the database connection used by the database backend.
	DBRef string `yaml:"db_ref"`
}

// QualityConfig holds validation settings.
type QualityConfig struct {
	// Mode is "strict" (failing report aborts the batch) or "lenient" (logged and passed through).
	Mode string `yaml:"mode"`
}

// LineageConfig holds lineage tracker settings.
type LineageConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputPath string `yaml:"output_path"`
	// BufferSize is the capacity of the asynchronous recording queue.
	BufferSize int `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TracingConfig holds OTLP export settings.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	// Protocol selects the OTLP transport: "grpc" or "http".
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
	// ServiceName identifies this process in exported telemetry.
	ServiceName string `yaml:"service_name"`
}

// ObservabilityConfig groups metrics and tracing settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g. "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g. "UTC").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// DatabaseConfig describes one database connection. Entries under the
// "database" map are decoded into this type with mapstructure.
type DatabaseConfig struct {
	Type     string `yaml:"type" mapstructure:"type"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`
}

// TidalConfig holds all configuration under the "tidal" top-level key.
type TidalConfig struct {
	// Engine contains chunking and worker pool configuration.
	Engine EngineConfig `yaml:"engine"`
	// System contains system-wide configuration.
	System SystemConfig `yaml:"system"`
	// Checkpoint contains checkpoint store configuration.
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	// Incremental contains incremental state configuration.
	Incremental IncrementalConfig `yaml:"incremental"`
	// Quality contains validation configuration.
	Quality QualityConfig `yaml:"quality"`
	// Lineage contains lineage tracker configuration.
	Lineage LineageConfig `yaml:"lineage"`
	// Observability contains metrics and tracing configuration.
	Observability ObservabilityConfig `yaml:"observability"`
	// DatabaseConfigs holds named database connections, decoded lazily per adapter.
	DatabaseConfigs map[string]interface{} `yaml:"database"`
	// StorageConfigs holds named storage backends, decoded lazily per adapter.
	StorageConfigs map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the application configuration.
type Config struct {
	// Tidal contains the top-level configuration for the engine.
	Tidal TidalConfig `yaml:"tidal"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new Config populated with default values.
func NewConfig() *Config {
	cfg := &Config{
		Tidal: TidalConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Engine: EngineConfig{
				InitialChunkRows:  1000,
				MinChunkRows:      100,
				MaxChunkRows:      10000,
				ChunksPerBatch:    10,
				Concurrency:       4,
				TargetChunkMillis: 5000,
				MemoryBudgetRatio: 0.8,
				Retry: RetryConfig{
					MaxAttempts:     3,
					InitialInterval: 1000,
					MaxInterval:     60000,
					Factor:          2.0,
				},
			},
			Checkpoint: CheckpointConfig{
				Backend:  "file",
				Dir:      "checkpoints",
				KeepLast: 5,
				DBRef:    "metadata",
			},
			Incremental: IncrementalConfig{
				Backend: "file",
				Dir:     "state",
				Mode:    "append",
				DBRef:   "metadata",
			},
			Quality: QualityConfig{Mode: "lenient"},
			Lineage: LineageConfig{
				Enabled:    true,
				OutputPath: "lineage.json",
				BufferSize: 100,
			},
			Observability: ObservabilityConfig{
				Tracing: TracingConfig{
					Protocol:    "grpc",
					ServiceName: "tidal",
				},
			},
		},
	}

	cfg.Tidal.DatabaseConfigs = map[string]interface{}{}
	cfg.Tidal.StorageConfigs = map[string]interface{}{}
	return cfg
}
