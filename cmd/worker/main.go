// Command worker codes clinical notes consumed from Kafka and publishes the
// resulting resolutions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/ClinTerm-Intelligence/internal/bootstrap"
	"github.com/turtacn/ClinTerm-Intelligence/internal/config"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/ClinTerm-Intelligence/internal/interfaces/http"
	"github.com/turtacn/ClinTerm-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

const defaultHealthPort = 8081

// Injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port of the health and metrics endpoint")
	ensureTopics := flag.Bool("ensure-topics", false, "create the notes, resolutions and dead-letter topics on start")
	flag.Parse()

	if err := run(*configPath, *healthPort, *ensureTopics); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, healthPort int, ensureTopics bool) error {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	if !cfg.Kafka.Enabled {
		return errors.New(errors.ErrCodeInvalidConfig, "the worker requires kafka.enabled")
	}

	logger, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return err
	}
	logger = logger.Named("worker")
	logging.SetDefault(logger)
	logger.Info("starting ClinTerm-Intelligence worker",
		logging.String("version", version),
		logging.String("notes_topic", cfg.Kafka.NotesTopic),
		logging.String("resolutions_topic", cfg.Kafka.ResolutionsTopic),
		logging.Strings("brokers", cfg.Kafka.Brokers))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Postgres: true, Kafka: true})
	if err != nil {
		return err
	}
	defer app.Close()

	if ensureTopics {
		if err := createTopics(ctx, cfg.Kafka, logger); err != nil {
			return err
		}
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfigFrom(cfg.Kafka), logger, app.Metrics)
	if err != nil {
		return err
	}
	if err := consumer.Subscribe(cfg.Kafka.NotesTopic, newNoteHandler(app.CodingService(), logger)); err != nil {
		_ = consumer.Close()
		return err
	}

	health := httpserver.NewServer(config.ServerConfig{
		Port:            healthPort,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler: handlers.NewHealthHandler(version, app.Metrics, handlers.ProbeCheckers(app.Probes())...),
		Logger:        logger,
		Collector:     app.Collector,
		Metrics:       app.Metrics,
		MetricsPath:   cfg.Metrics.Path,
		Mode:          "release",
	}), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- health.Start() }()

	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Close()
		return err
	}

	select {
	case err = <-errCh:
		logger.Error("health server failed", logging.Err(err))
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if cerr := consumer.Close(); cerr != nil {
		logger.Error("consumer close error", logging.Err(cerr))
	}
	if serr := health.Stop(context.Background()); serr != nil {
		logger.Error("health server shutdown error", logging.Err(serr))
	}
	m := consumer.GetMetrics()
	logger.Info("worker stopped",
		logging.Int64("processed", m.MessagesProcessed.Load()),
		logging.Int64("failed", m.MessagesFailed.Load()),
		logging.Int64("dead_lettered", m.MessagesDeadLettered.Load()))
	return err
}

func createTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		return err
	}
	defer tm.Close()
	return tm.EnsureTopics(ctx, kafka.DefaultTopics(cfg))
}
