// Package repositories holds the PostgreSQL implementations of the domain
// repositories.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/prometheus"
)

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

type baseRepo struct {
	conn *postgres.Connection
	tx   *sql.Tx
	log  logging.Logger
}

func (r *baseRepo) executor() queryExecutor {
	if r.tx != nil {
		return r.tx
	}
	return r.conn.DB()
}

// observe records the latency of one query.
func (r *baseRepo) observe(operation string, start time.Time, err error) {
	prometheus.RecordDBQuery(r.conn.Metrics(), "postgres", operation, time.Since(start), err)
}
