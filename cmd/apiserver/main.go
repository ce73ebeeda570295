// Command apiserver serves the coding and evaluation API over HTTP.
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
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/ClinTerm-Intelligence/internal/interfaces/http"
	"github.com/turtacn/ClinTerm-Intelligence/internal/interfaces/http/handlers"
)

// Injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	port := flag.Int("port", 0, "HTTP port (overrides server.port)")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	logger.Info("starting ClinTerm-Intelligence API server",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port),
		logging.String("backend", cfg.LLM.Backend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.AllBackends)
	if err != nil {
		return err
	}
	defer app.Close()

	var archive handlers.ReportArchive
	if app.Archive != nil {
		archive = app.Archive
	}
	router := httpserver.NewRouter(httpserver.RouterConfig{
		CodingHandler:     handlers.NewCodingHandler(app.CodingService(), logger),
		EvaluationHandler: handlers.NewEvaluationHandler(archive, app.Metrics, logger),
		HealthHandler:     handlers.NewHealthHandler(version, app.Metrics, handlers.ProbeCheckers(app.Probes())...),
		Logger:            logger,
		Collector:         app.Collector,
		Metrics:           app.Metrics,
		MetricsPath:       cfg.Metrics.Path,
		Mode:              cfg.Server.Mode,
		MaxBodySize:       cfg.Server.MaxBodySize,
	})
	srv := httpserver.NewServer(cfg.Server, router, logger)

	if configPath != "" {
		err := config.Watch(configPath, func(next *config.Config) {
			if logging.SetLevel(logger, next.Log.Level) {
				logger.Info("log level reloaded", logging.String("level", next.Log.Level))
			}
		}, func(err error) {
			logger.Warn("ignoring invalid configuration change", logging.Err(err))
		})
		if err != nil {
			logger.Warn("config watch disabled", logging.Err(err))
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	if err := srv.Stop(context.Background()); err != nil {
		logger.Error("HTTP server shutdown error", logging.Err(err))
		return err
	}
	return nil
}
