// Package postgres manages the PostgreSQL pool and schema migrations of the
// resolution store.
package postgres

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/turtacn/ClinTerm-Intelligence/internal/config"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

const dbLabel = "postgres"

// sqlOpen is a variable to allow mocking in tests.
var sqlOpen = func(driverName, dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// Connection manages the PostgreSQL database connection pool.
type Connection struct {
	db      *sql.DB
	logger  logging.Logger
	metrics *prometheus.AppMetrics
	once    sync.Once
}

// NewConnection opens the pool described by cfg and pings it.
func NewConnection(ctx context.Context, cfg config.DatabaseConfig, log logging.Logger, metrics *prometheus.AppMetrics) (*Connection, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	db, err := sqlOpen("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open database connection")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "database connection failed")
	}

	log.Info("connected to PostgreSQL",
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
		logging.String("database", cfg.DBName),
	)
	return NewConnectionWithDB(db, log, metrics), nil
}

// NewConnectionWithDB wraps an existing pool, e.g. a sqlmock one.
func NewConnectionWithDB(db *sql.DB, log logging.Logger, metrics *prometheus.AppMetrics) *Connection {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Connection{db: db, logger: log.Named("postgres"), metrics: metrics}
}

// DB returns the underlying sql.DB instance.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Metrics returns the metrics sink, which may be nil.
func (c *Connection) Metrics() *prometheus.AppMetrics {
	return c.metrics
}

// HealthCheck pings the database and publishes pool gauges.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		prometheus.RecordHealth(c.metrics, dbLabel, false)
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "database health check failed")
	}
	prometheus.RecordHealth(c.metrics, dbLabel, true)

	stats := c.db.Stats()
	prometheus.RecordDBPool(c.metrics, dbLabel, stats.OpenConnections, stats.InUse)
	if stats.OpenConnections > 0 {
		usage := float64(stats.InUse) / float64(stats.OpenConnections)
		if usage > 0.8 {
			c.logger.Warn("high database connection pool usage",
				logging.Int("in_use", stats.InUse),
				logging.Int("open", stats.OpenConnections),
				logging.Float64("usage", usage),
			)
		}
	}
	return nil
}

// WithTx runs fn in a transaction, committing on nil and rolling back
// otherwise.
func (c *Connection) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("rollback failed", logging.Err(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit transaction")
	}
	return nil
}

// Close closes the pool once.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		err = c.db.Close()
		if err == nil {
			c.logger.Info("closed PostgreSQL connection")
		} else {
			c.logger.Error("failed to close PostgreSQL connection", logging.Err(err))
		}
	})
	return err
}
