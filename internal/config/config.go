// Package config defines the configuration structures for ClinTerm-Intelligence.
// Only plain data types and validation live here; loading is in loader.go and
// defaults in defaults.go.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP API tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ProviderConfig holds the connection settings of one oracle backend.
type ProviderConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	APIVersion string `mapstructure:"api_version"`
}

// LLMConfig selects and tunes the oracle backend used for extraction,
// refinement, and rating.
type LLMConfig struct {
	// Backend is one of openai, anthropic, ollama (alias llama).
	Backend string `mapstructure:"backend"`

	// Model overrides the selected provider's model when non-empty.
	Model string `mapstructure:"model"`

	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`

	OpenAI    ProviderConfig `mapstructure:"openai"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
	Ollama    ProviderConfig `mapstructure:"ollama"`
}

// TerminologyConfig configures the FHIR ValueSet $expand client.
type TerminologyConfig struct {
	ServerURL        string        `mapstructure:"server_url"`
	ValueSetURL      string        `mapstructure:"valueset_url"`
	Count            int           `mapstructure:"count"`
	Timeout          time.Duration `mapstructure:"timeout"`
	CacheEnabled     bool          `mapstructure:"cache_enabled"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	NegativeCacheTTL time.Duration `mapstructure:"negative_cache_ttl"`
}

// ResolverConfig tunes the term resolver.
type ResolverConfig struct {
	// BatchConcurrency bounds how many terms of one line resolve at once.
	// 1 keeps the sequential behaviour.
	BatchConcurrency int `mapstructure:"batch_concurrency"`
}

// PipelineConfig tunes corpus processing.
type PipelineConfig struct {
	// LineConcurrency bounds how many lines of one note are processed at once.
	LineConcurrency int `mapstructure:"line_concurrency"`
}

// RedisConfig holds Redis connection parameters for the expansion cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// DatabaseConfig holds PostgreSQL parameters for the resolution store.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// KafkaConfig holds Kafka parameters for the note worker and result publishing.
type KafkaConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Brokers          []string      `mapstructure:"brokers"`
	GroupID          string        `mapstructure:"group_id"`
	NotesTopic       string        `mapstructure:"notes_topic"`
	ResolutionsTopic string        `mapstructure:"resolutions_topic"`
	BatchSize        int           `mapstructure:"batch_size"`
	BatchTimeout     time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
}

// MinIOConfig holds object-storage parameters for report archiving.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// MetricsConfig controls Prometheus exposition.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         logging.LogConfig `mapstructure:"log"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Terminology TerminologyConfig `mapstructure:"terminology"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// SupportedBackends lists the accepted llm.backend values.
var SupportedBackends = []string{"openai", "anthropic", "ollama", "llama"}

// NormalizeBackend lower-cases and trims a backend name.
func NormalizeBackend(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsSupportedBackend reports whether name is one of SupportedBackends.
func IsSupportedBackend(name string) bool {
	name = NormalizeBackend(name)
	for _, b := range SupportedBackends {
		if b == name {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of a fully-populated Config and returns
// the first problem found. Any error is fatal at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return errors.Newf(errors.ErrCodeInvalidConfig, "server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// LLM
	if NormalizeBackend(c.LLM.Backend) == "" {
		return errors.New(errors.ErrCodeUnknownBackend, "llm.backend is required")
	}
	if !IsSupportedBackend(c.LLM.Backend) {
		return errors.Newf(errors.ErrCodeUnknownBackend, "llm.backend %q is not supported; expected one of %s",
			c.LLM.Backend, strings.Join(SupportedBackends, ", "))
	}
	if c.LLM.Timeout <= 0 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "llm.timeout must be positive, got %s", c.LLM.Timeout)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "llm.temperature %.2f is out of range [0, 2]", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 1 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "llm.max_tokens must be ≥ 1, got %d", c.LLM.MaxTokens)
	}

	// Terminology
	if c.Terminology.ServerURL == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "terminology.server_url is required")
	}
	if c.Terminology.ValueSetURL == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "terminology.valueset_url is required")
	}
	if c.Terminology.Timeout <= 0 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "terminology.timeout must be positive, got %s", c.Terminology.Timeout)
	}
	if c.Terminology.Count < 0 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "terminology.count must be ≥ 0, got %d", c.Terminology.Count)
	}
	if c.Terminology.CacheEnabled && !c.Redis.Enabled {
		return errors.New(errors.ErrCodeInvalidConfig, "terminology.cache_enabled requires redis.enabled")
	}

	// Resolver / pipeline
	if c.Resolver.BatchConcurrency < 1 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "resolver.batch_concurrency must be ≥ 1, got %d", c.Resolver.BatchConcurrency)
	}
	if c.Pipeline.LineConcurrency < 1 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "pipeline.line_concurrency must be ≥ 1, got %d", c.Pipeline.LineConcurrency)
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "redis.addr is required when redis is enabled")
		}
		if c.Redis.DB < 0 {
			return errors.Newf(errors.ErrCodeInvalidConfig, "redis.db must be ≥ 0, got %d", c.Redis.DB)
		}
	}

	// Database
	if c.Database.Enabled {
		if c.Database.Host == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "database.host is required when database is enabled")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return errors.Newf(errors.ErrCodeInvalidConfig, "database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "database.user is required when database is enabled")
		}
		if c.Database.DBName == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "database.db_name is required when database is enabled")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New(errors.ErrCodeInvalidConfig, "kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "kafka.group_id is required when kafka is enabled")
		}
		if c.Kafka.NotesTopic == "" || c.Kafka.ResolutionsTopic == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "kafka.notes_topic and kafka.resolutions_topic are required")
		}
	}

	// MinIO
	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "minio.endpoint is required when minio is enabled")
		}
		if c.MinIO.Bucket == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "minio.bucket is required when minio is enabled")
		}
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.ErrCodeInvalidConfig, "log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.Newf(errors.ErrCodeInvalidConfig, "log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

// DSN builds a lib/pq connection URL from the database settings.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}
