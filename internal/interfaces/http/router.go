// Package http wires the gin engine and server of the API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinTerm-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/ClinTerm-Intelligence/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and infrastructure the route tree
// needs. Nil handlers leave their routes unmounted.
type RouterConfig struct {
	// Handlers
	CodingHandler     *handlers.CodingHandler
	EvaluationHandler *handlers.EvaluationHandler
	HealthHandler     *handlers.HealthHandler

	// Infrastructure
	Logger      logging.Logger
	Collector   prometheus.MetricsCollector
	Metrics     *prometheus.AppMetrics
	MetricsPath string

	// Mode is the gin mode: debug, release or test.
	Mode        string
	MaxBodySize int64
}

// NewRouter constructs the complete route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}

	if cfg.Collector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.Collector.Handler()))
	}

	api := r.Group("/api/v1")
	api.Use(middleware.BodyLimit(cfg.MaxBodySize))
	if cfg.CodingHandler != nil {
		cfg.CodingHandler.RegisterRoutes(api)
	}
	if cfg.EvaluationHandler != nil {
		cfg.EvaluationHandler.RegisterRoutes(api)
	}

	return r
}
