// Package bootstrap assembles the runtime graph shared by the binaries:
// logger, metrics, oracle, terminology client, resolver, and the optional
// Redis, PostgreSQL, Kafka and MinIO backends.
package bootstrap

import (
	"context"

	appcoding "github.com/turtacn/ClinTerm-Intelligence/internal/application/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/config"
	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/llm"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/terminology"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/terminology/fhir"
	"github.com/turtacn/ClinTerm-Intelligence/internal/intelligence/term_resolver"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// Options selects which optional backends a binary needs. A backend is only
// opened when it is both requested here and enabled in the configuration.
type Options struct {
	Postgres bool
	Kafka    bool
	MinIO    bool
}

// AllBackends requests every optional backend.
var AllBackends = Options{Postgres: true, Kafka: true, MinIO: true}

// ProbeFunc checks one dependency.
type ProbeFunc func(ctx context.Context) error

// App is the assembled runtime. Optional fields are nil when the backend is
// disabled.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	Oracle    llm.Completer
	Resolver  *term_resolver.Resolver
	Processor *term_resolver.LineProcessor

	Redis    *redis.Client
	Postgres *postgres.Connection
	Repo     coding.ResolutionRepository
	Producer *kafka.Producer
	MinIO    *minio.Client
	Archive  *minio.Archive

	closers []func() error
}

// NewLogger builds the process logger from cfg.Log.
func NewLogger(cfg *config.Config) (logging.Logger, error) {
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to build logger")
	}
	return logger, nil
}

// New wires the application. Any error is a startup failure; partially
// opened backends are closed before it returns.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if cfg.Metrics.Enabled {
		collector, cerr := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableGoMetrics:      true,
			EnableProcessMetrics: true,
		}, logger)
		if cerr != nil {
			return nil, cerr
		}
		app.Collector = collector
		app.Metrics = prometheus.NewAppMetrics(collector)
	}

	oracle, err := llm.NewCompleter(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	app.Oracle = llm.NewInstrumentedCompleter(oracle, app.Metrics, logger)

	expander, err := app.buildExpander(ctx)
	if err != nil {
		return nil, err
	}

	lookup := term_resolver.NewTerminologyLookup(expander, cfg.Terminology.Timeout, logger, app.Metrics)
	rater := term_resolver.NewRatingEvaluator(app.Oracle, cfg.LLM.Timeout, logger, app.Metrics)
	refiner := term_resolver.NewCandidateRefiner(app.Oracle, cfg.LLM.Timeout, logger)
	app.Resolver = term_resolver.NewResolver(lookup, rater, refiner, term_resolver.Config{
		LookupTimeout:    cfg.Terminology.Timeout,
		OracleTimeout:    cfg.LLM.Timeout,
		BatchConcurrency: cfg.Resolver.BatchConcurrency,
	}, logger, app.Metrics)
	app.Processor = term_resolver.NewLineProcessor(app.Oracle, app.Resolver, cfg.LLM.Timeout, logger, app.Metrics)

	if opts.Postgres && cfg.Database.Enabled {
		conn, perr := postgres.NewConnection(ctx, cfg.Database, logger, app.Metrics)
		if perr != nil {
			return nil, perr
		}
		app.Postgres = conn
		app.Repo = repositories.NewPostgresResolutionRepo(conn, logger)
		app.closers = append(app.closers, conn.Close)
	}

	if opts.Kafka && cfg.Kafka.Enabled {
		producer, kerr := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger, app.Metrics)
		if kerr != nil {
			return nil, kerr
		}
		app.Producer = producer
		app.closers = append(app.closers, producer.Close)
	}

	if opts.MinIO && cfg.MinIO.Enabled {
		client, merr := minio.NewClient(ctx, cfg.MinIO, logger)
		if merr != nil {
			return nil, merr
		}
		app.MinIO = client
		app.Archive = minio.NewArchive(client, logger, app.Metrics)
		app.closers = append(app.closers, client.Close)
	}

	logger.Info("application assembled",
		logging.String("backend", app.Oracle.Name()),
		logging.Bool("cache", cfg.Terminology.CacheEnabled),
		logging.Bool("postgres", app.Postgres != nil),
		logging.Bool("kafka", app.Producer != nil),
		logging.Bool("minio", app.MinIO != nil))
	return app, nil
}

// buildExpander returns the FHIR client, wrapped by the Redis expansion cache
// when terminology.cache_enabled is set.
func (a *App) buildExpander(ctx context.Context) (term_resolver.TerminologyClient, error) {
	cfg := a.Config
	client, err := fhir.NewClient(fhir.Config{
		ServerURL:   cfg.Terminology.ServerURL,
		ValueSetURL: cfg.Terminology.ValueSetURL,
		Count:       cfg.Terminology.Count,
		Timeout:     cfg.Terminology.Timeout,
	}, nil, a.Logger)
	if err != nil {
		return nil, err
	}
	if !cfg.Redis.Enabled {
		return client, nil
	}

	rc, err := redis.NewClient(ctx, cfg.Redis, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Redis = rc
	a.closers = append(a.closers, rc.Close)
	if !cfg.Terminology.CacheEnabled {
		return client, nil
	}

	cache := redis.NewRedisCache(rc, a.Logger,
		redis.WithPrefix(cfg.Redis.KeyPrefix),
		redis.WithDefaultTTL(cfg.Terminology.CacheTTL),
		redis.WithNullCacheTTL(cfg.Terminology.NegativeCacheTTL))
	return terminology.NewCachedClient(client, cache, cfg.Terminology.ValueSetURL, cfg.Terminology.CacheTTL, a.Logger, a.Metrics), nil
}

// CodingService builds the note service. Persistence and publishing sinks are
// attached when their backend is open; extra sinks are appended after them.
func (a *App) CodingService(extra ...appcoding.ResultSink) appcoding.Service {
	sinks := make([]appcoding.ResultSink, 0, len(extra)+2)
	if a.Repo != nil {
		sinks = append(sinks, appcoding.NewRepositorySink(a.Repo))
	}
	if a.Producer != nil {
		sinks = append(sinks, appcoding.NewKafkaSink(a.Producer, a.Config.Kafka.ResolutionsTopic))
	}
	sinks = append(sinks, extra...)
	return appcoding.NewService(a.Processor, a.Resolver, a.Repo, sinks,
		appcoding.Config{LineConcurrency: a.Config.Pipeline.LineConcurrency}, a.Logger, a.Metrics)
}

// Probes returns the readiness checks of the open backends, keyed by name.
func (a *App) Probes() map[string]ProbeFunc {
	probes := make(map[string]ProbeFunc)
	if a.Redis != nil {
		probes["redis"] = a.Redis.Ping
	}
	if a.Postgres != nil {
		probes["postgres"] = a.Postgres.HealthCheck
	}
	if a.MinIO != nil {
		probes["minio"] = a.MinIO.HealthCheck
	}
	return probes
}

// Close releases backends in reverse order of opening and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("failed to close backend", logging.Err(err))
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
}
