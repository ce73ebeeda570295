package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default values
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort            = 8080
	DefaultServerMode            = "debug"
	DefaultServerReadTimeout     = 15 * time.Second
	DefaultServerWriteTimeout    = 120 * time.Second
	DefaultServerMaxBodySize     = 1 << 20
	DefaultServerShutdownTimeout = 30 * time.Second

	DefaultLLMBackend     = "openai"
	DefaultLLMTemperature = 0.2
	DefaultLLMMaxTokens   = 300
	DefaultLLMTimeout     = 60 * time.Second

	DefaultOpenAIBaseURL       = "https://api.openai.com/v1/chat/completions"
	DefaultOpenAIModel         = "gpt-4"
	DefaultAnthropicBaseURL    = "https://api.anthropic.com/v1/messages"
	DefaultAnthropicModel      = "claude-2.1"
	DefaultAnthropicAPIVersion = "2023-06-01"
	DefaultOllamaBaseURL       = "http://localhost:11434"
	DefaultOllamaModel         = "llama2"

	DefaultTerminologyServerURL   = "https://snowstorm.ihtsdotools.org/fhir"
	DefaultTerminologyValueSetURL = "http://snomed.info/sct/900000000000207008/version/20230630?fhir_vs"
	DefaultTerminologyCount       = 20
	DefaultTerminologyTimeout     = 10 * time.Second
	DefaultTerminologyCacheTTL    = 24 * time.Hour
	DefaultTerminologyNegativeTTL = 10 * time.Minute

	DefaultResolverBatchConcurrency = 1
	DefaultPipelineLineConcurrency  = 1

	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPoolSize     = 10
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisKeyPrefix    = "clinterm:"

	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBName            = "clinterm"
	DefaultDBSSLMode         = "disable"
	DefaultDBMaxOpenConns    = 10
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 30 * time.Minute
	DefaultDBMigrationPath   = ""

	DefaultKafkaBroker           = "localhost:9092"
	DefaultKafkaGroupID          = "clinterm-worker"
	DefaultKafkaNotesTopic       = "clinterm.notes"
	DefaultKafkaResolutionsTopic = "clinterm.resolutions"
	DefaultKafkaBatchSize        = 100
	DefaultKafkaBatchTimeout     = time.Second
	DefaultKafkaWriteTimeout     = 10 * time.Second

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "clinterm-reports"
	DefaultMinIORegion   = "us-east-1"

	DefaultMetricsNamespace = "clinterm"
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with its default. Values
// already set are left alone. Boolean switches and llm.temperature (where zero
// is meaningful) are not touched here; their defaults are registered with viper
// in loader.go.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	setInt(&cfg.Server.Port, DefaultServerPort)
	setString(&cfg.Server.Mode, DefaultServerMode)
	setDuration(&cfg.Server.ReadTimeout, DefaultServerReadTimeout)
	setDuration(&cfg.Server.WriteTimeout, DefaultServerWriteTimeout)
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultServerMaxBodySize
	}
	setDuration(&cfg.Server.ShutdownTimeout, DefaultServerShutdownTimeout)

	// ── LLM ───────────────────────────────────────────────────────────────────
	setString(&cfg.LLM.Backend, DefaultLLMBackend)
	setInt(&cfg.LLM.MaxTokens, DefaultLLMMaxTokens)
	setDuration(&cfg.LLM.Timeout, DefaultLLMTimeout)
	setString(&cfg.LLM.OpenAI.BaseURL, DefaultOpenAIBaseURL)
	setString(&cfg.LLM.OpenAI.Model, DefaultOpenAIModel)
	setString(&cfg.LLM.Anthropic.BaseURL, DefaultAnthropicBaseURL)
	setString(&cfg.LLM.Anthropic.Model, DefaultAnthropicModel)
	setString(&cfg.LLM.Anthropic.APIVersion, DefaultAnthropicAPIVersion)
	setString(&cfg.LLM.Ollama.BaseURL, DefaultOllamaBaseURL)
	setString(&cfg.LLM.Ollama.Model, DefaultOllamaModel)

	// ── Terminology ───────────────────────────────────────────────────────────
	setString(&cfg.Terminology.ServerURL, DefaultTerminologyServerURL)
	setString(&cfg.Terminology.ValueSetURL, DefaultTerminologyValueSetURL)
	setInt(&cfg.Terminology.Count, DefaultTerminologyCount)
	setDuration(&cfg.Terminology.Timeout, DefaultTerminologyTimeout)
	setDuration(&cfg.Terminology.CacheTTL, DefaultTerminologyCacheTTL)
	setDuration(&cfg.Terminology.NegativeCacheTTL, DefaultTerminologyNegativeTTL)

	// ── Resolver / pipeline ───────────────────────────────────────────────────
	setInt(&cfg.Resolver.BatchConcurrency, DefaultResolverBatchConcurrency)
	setInt(&cfg.Pipeline.LineConcurrency, DefaultPipelineLineConcurrency)

	// ── Redis ─────────────────────────────────────────────────────────────────
	setString(&cfg.Redis.Addr, DefaultRedisAddr)
	setInt(&cfg.Redis.PoolSize, DefaultRedisPoolSize)
	setDuration(&cfg.Redis.DialTimeout, DefaultRedisDialTimeout)
	setDuration(&cfg.Redis.ReadTimeout, DefaultRedisReadTimeout)
	setDuration(&cfg.Redis.WriteTimeout, DefaultRedisWriteTimeout)
	setString(&cfg.Redis.KeyPrefix, DefaultRedisKeyPrefix)

	// ── Database ──────────────────────────────────────────────────────────────
	setString(&cfg.Database.Host, DefaultDBHost)
	setInt(&cfg.Database.Port, DefaultDBPort)
	setString(&cfg.Database.DBName, DefaultDBName)
	setString(&cfg.Database.SSLMode, DefaultDBSSLMode)
	setInt(&cfg.Database.MaxOpenConns, DefaultDBMaxOpenConns)
	setInt(&cfg.Database.MaxIdleConns, DefaultDBMaxIdleConns)
	setDuration(&cfg.Database.ConnMaxLifetime, DefaultDBConnMaxLifetime)
	setString(&cfg.Database.MigrationPath, DefaultDBMigrationPath)

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	setString(&cfg.Kafka.GroupID, DefaultKafkaGroupID)
	setString(&cfg.Kafka.NotesTopic, DefaultKafkaNotesTopic)
	setString(&cfg.Kafka.ResolutionsTopic, DefaultKafkaResolutionsTopic)
	setInt(&cfg.Kafka.BatchSize, DefaultKafkaBatchSize)
	setDuration(&cfg.Kafka.BatchTimeout, DefaultKafkaBatchTimeout)
	setDuration(&cfg.Kafka.WriteTimeout, DefaultKafkaWriteTimeout)

	// ── MinIO ─────────────────────────────────────────────────────────────────
	setString(&cfg.MinIO.Endpoint, DefaultMinIOEndpoint)
	setString(&cfg.MinIO.Bucket, DefaultMinIOBucket)
	setString(&cfg.MinIO.Region, DefaultMinIORegion)

	// ── Metrics ───────────────────────────────────────────────────────────────
	setString(&cfg.Metrics.Namespace, DefaultMetricsNamespace)
	setString(&cfg.Metrics.Path, DefaultMetricsPath)

	// ── Log ───────────────────────────────────────────────────────────────────
	setString(&cfg.Log.Level, DefaultLogLevel)
	setString(&cfg.Log.Format, DefaultLogFormat)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}
