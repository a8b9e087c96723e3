package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	"github.com/vitoriamariadb/tidal/pkg/etl/support/logger"

	"go.uber.org/fx"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// loadConfig builds the configuration from defaults, embedded YAML and
// environment variable overrides, in that order.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	cfg := NewConfig()

	expander := NewOsEnvironmentExpander()
	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewETLError(moduleName, "failed to expand environment placeholders in config", err, false, false)
	}

	var yamlConfig Config
	if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
		return nil, exception.NewETLError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}

	mergeConfig(cfg, &yamlConfig)

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewETLError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads and provides *Config.
// It also applies the configured log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Tidal.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Tidal.System.Logging.Level)

	return cfg, nil
}

// LoadConfig loads configuration from an embedded source and environment
// variables. Expected to be called once at startup.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig)
}

// DatabaseConfigFor decodes the named entry of DatabaseConfigs into a
// DatabaseConfig using mapstructure.
func (c *Config) DatabaseConfigFor(name string) (DatabaseConfig, error) {
	raw, ok := c.Tidal.DatabaseConfigs[name]
	if !ok {
		return DatabaseConfig{}, fmt.Errorf("database connection %q is not configured", name)
	}
	var dbCfg DatabaseConfig
	if err := mapstructure.Decode(raw, &dbCfg); err != nil {
		return DatabaseConfig{}, exception.NewETLError(moduleName, fmt.Sprintf("failed to decode database config %q", name), err, false, false)
	}
	return dbCfg, nil
}

// mergeConfig performs a deep merge from sourceConfig into destConfig.
// Non-zero source values overwrite destination values.
func mergeConfig(destConfig, sourceConfig *Config) {
	mergeTidalConfig(&destConfig.Tidal, &sourceConfig.Tidal)
}

func mergeTidalConfig(dest, source *TidalConfig) {
	mergeEngineConfig(&dest.Engine, &source.Engine)
	mergeSystemConfig(&dest.System, &source.System)
	mergeCheckpointConfig(&dest.Checkpoint, &source.Checkpoint)
	mergeIncrementalConfig(&dest.Incremental, &source.Incremental)

	if source.Quality.Mode != "" {
		dest.Quality.Mode = source.Quality.Mode
	}

	mergeLineageConfig(&dest.Lineage, &source.Lineage)
	mergeObservabilityConfig(&dest.Observability, &source.Observability)

	if source.DatabaseConfigs != nil {
		if dest.DatabaseConfigs == nil {
			dest.DatabaseConfigs = make(map[string]interface{})
		}
		for key, value := range source.DatabaseConfigs {
			dest.DatabaseConfigs[key] = value
		}
	}
	if source.StorageConfigs != nil {
		if dest.StorageConfigs == nil {
			dest.StorageConfigs = make(map[string]interface{})
		}
		for key, value := range source.StorageConfigs {
			dest.StorageConfigs[key] = value
		}
	}
}

func mergeEngineConfig(dest, source *EngineConfig) {
	if source.InitialChunkRows != 0 { dest.InitialChunkRows = source.InitialChunkRows }
	if source.MinChunkRows != 0 { dest.MinChunkRows = source.MinChunkRows }
	if source.MaxChunkRows != 0 { dest.MaxChunkRows = source.MaxChunkRows }
	if source.ChunksPerBatch != 0 { dest.ChunksPerBatch = source.ChunksPerBatch }
	if source.Concurrency != 0 { dest.Concurrency = source.Concurrency }
	if source.FailFast { dest.FailFast = true }
	if source.BatchTimeoutSeconds != 0 { dest.BatchTimeoutSeconds = source.BatchTimeoutSeconds }
	if source.TargetChunkMillis != 0 { dest.TargetChunkMillis = source.TargetChunkMillis }
	if source.MemoryBudgetRatio != 0 { dest.MemoryBudgetRatio = source.MemoryBudgetRatio }
	mergeRetryConfig(&dest.Retry, &source.Retry)
}

func mergeRetryConfig(dest, source *RetryConfig) {
	if source.MaxAttempts != 0 { dest.MaxAttempts = source.MaxAttempts }
	if source.InitialInterval != 0 { dest.InitialInterval = source.InitialInterval }
	if source.MaxInterval != 0 { dest.MaxInterval = source.MaxInterval }
	if source.Factor != 0 { dest.Factor = source.Factor }
}

func mergeSystemConfig(dest, source *SystemConfig) {
	if source.Timezone != "" { dest.Timezone = source.Timezone }
	if source.Logging.Level != "" { dest.Logging.Level = source.Logging.Level }
}

func mergeCheckpointConfig(dest, source *CheckpointConfig) {
	if source.Backend != "" { dest.Backend = source.Backend }
	if source.Dir != "" { dest.Dir = source.Dir }
	if source.KeepLast != 0 { dest.KeepLast = source.KeepLast }
	if source.DBRef != "" { dest.DBRef = source.DBRef }
}

func mergeIncrementalConfig(dest, source *IncrementalConfig) {
	if source.Backend != "" { dest.Backend = source.Backend }
	if source.Dir != "" { dest.Dir = source.Dir }
	if source.Mode != "" { dest.Mode = source.Mode }
	if source.DBRef != "" { dest.DBRef = source.DBRef }
}

func mergeLineageConfig(dest, source *LineageConfig) {
	if source.Enabled { dest.Enabled = true }
	if source.OutputPath != "" { dest.OutputPath = source.OutputPath }
	if source.BufferSize != 0 { dest.BufferSize = source.BufferSize }
}

func mergeObservabilityConfig(dest, source *ObservabilityConfig) {
	if source.Metrics.Enabled { dest.Metrics.Enabled = true }
	if source.Metrics.Addr != "" { dest.Metrics.Addr = source.Metrics.Addr }
	if source.Tracing.Enabled { dest.Tracing.Enabled = true }
	if source.Tracing.Endpoint != "" { dest.Tracing.Endpoint = source.Tracing.Endpoint }
	if source.Tracing.Protocol != "" { dest.Tracing.Protocol = source.Tracing.Protocol }
	if source.Tracing.Insecure { dest.Tracing.Insecure = true }
	if source.Tracing.ServiceName != "" { dest.Tracing.ServiceName = source.Tracing.ServiceName }
}

// loadStructFromEnv recursively loads configuration values into a struct from
// environment variables. The variable name is derived from the yaml tags,
// uppercased and joined with underscores (e.g. TIDAL_ENGINE_MIN_CHUNK_ROWS).
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}

		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets a reflect.Value from a string, handling string, int, float
// and bool kinds.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
