package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// envPrefix is the environment variable prefix used by every setting.
const envPrefix = "CLINTERM"

// newViper builds a Viper instance with YAML files, the CLINTERM_ env prefix,
// and a "." → "_" key replacer so "llm.backend" resolves to CLINTERM_LLM_BACKEND.
// Every key is registered with a default so that environment overrides reach
// Unmarshal even when no file mentions the key.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v)
	return v
}

func registerDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.mode", DefaultServerMode)
	v.SetDefault("server.read_timeout", DefaultServerReadTimeout)
	v.SetDefault("server.write_timeout", DefaultServerWriteTimeout)
	v.SetDefault("server.max_body_size", DefaultServerMaxBodySize)
	v.SetDefault("server.shutdown_timeout", DefaultServerShutdownTimeout)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.name", "clinterm")

	v.SetDefault("llm.backend", DefaultLLMBackend)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", DefaultLLMTemperature)
	v.SetDefault("llm.max_tokens", DefaultLLMMaxTokens)
	v.SetDefault("llm.timeout", DefaultLLMTimeout)
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.base_url", DefaultOpenAIBaseURL)
	v.SetDefault("llm.openai.model", DefaultOpenAIModel)
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.base_url", DefaultAnthropicBaseURL)
	v.SetDefault("llm.anthropic.model", DefaultAnthropicModel)
	v.SetDefault("llm.anthropic.api_version", DefaultAnthropicAPIVersion)
	v.SetDefault("llm.ollama.base_url", DefaultOllamaBaseURL)
	v.SetDefault("llm.ollama.model", DefaultOllamaModel)

	v.SetDefault("terminology.server_url", DefaultTerminologyServerURL)
	v.SetDefault("terminology.valueset_url", DefaultTerminologyValueSetURL)
	v.SetDefault("terminology.count", DefaultTerminologyCount)
	v.SetDefault("terminology.timeout", DefaultTerminologyTimeout)
	v.SetDefault("terminology.cache_enabled", false)
	v.SetDefault("terminology.cache_ttl", DefaultTerminologyCacheTTL)
	v.SetDefault("terminology.negative_cache_ttl", DefaultTerminologyNegativeTTL)

	v.SetDefault("resolver.batch_concurrency", DefaultResolverBatchConcurrency)
	v.SetDefault("pipeline.line_concurrency", DefaultPipelineLineConcurrency)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", DefaultRedisPoolSize)
	v.SetDefault("redis.dial_timeout", DefaultRedisDialTimeout)
	v.SetDefault("redis.read_timeout", DefaultRedisReadTimeout)
	v.SetDefault("redis.write_timeout", DefaultRedisWriteTimeout)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", DefaultDBHost)
	v.SetDefault("database.port", DefaultDBPort)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", DefaultDBName)
	v.SetDefault("database.ssl_mode", DefaultDBSSLMode)
	v.SetDefault("database.max_open_conns", DefaultDBMaxOpenConns)
	v.SetDefault("database.max_idle_conns", DefaultDBMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", DefaultDBConnMaxLifetime)
	v.SetDefault("database.migration_path", DefaultDBMigrationPath)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{DefaultKafkaBroker})
	v.SetDefault("kafka.group_id", DefaultKafkaGroupID)
	v.SetDefault("kafka.notes_topic", DefaultKafkaNotesTopic)
	v.SetDefault("kafka.resolutions_topic", DefaultKafkaResolutionsTopic)
	v.SetDefault("kafka.batch_size", DefaultKafkaBatchSize)
	v.SetDefault("kafka.batch_timeout", DefaultKafkaBatchTimeout)
	v.SetDefault("kafka.write_timeout", DefaultKafkaWriteTimeout)

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", DefaultMinIOEndpoint)
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", DefaultMinIOBucket)
	v.SetDefault("minio.region", DefaultMinIORegion)
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)
	v.SetDefault("metrics.path", DefaultMetricsPath)
}

// Load reads the YAML file at configPath, merges CLINTERM_* environment
// overrides, applies defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeConfigLoad, "failed to read config file %q", configPath)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from CLINTERM_* environment variables and
// defaults only.
//
//	CLINTERM_<SECTION>_<FIELD>   e.g.  CLINTERM_LLM_BACKEND, CLINTERM_REDIS_ADDR
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOptional loads configPath when it is non-empty and falls back to
// LoadFromEnv otherwise.
func LoadOptional(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to unmarshal configuration")
	}

	// Comma-separated broker lists arrive from the environment as one element.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers[0])
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Watch monitors configPath and calls onChange with the re-parsed Config after
// each write. Invalid intermediate states are reported to onError (if non-nil)
// and do not reach onChange. Only hot-reloadable settings such as log level
// should be applied by the callback.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, errors.ErrCodeConfigLoad, "failed to read config file %q", configPath)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad wraps LoadOptional and panics on error. For use in main only.
func MustLoad(configPath string) *Config {
	cfg, err := LoadOptional(configPath)
	if err != nil {
		panic("config: MustLoad failed: " + err.Error())
	}
	return cfg
}
