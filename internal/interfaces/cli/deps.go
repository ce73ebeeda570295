package cli

import (
	"context"

	appcoding "github.com/turtacn/ClinTerm-Intelligence/internal/application/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/bootstrap"
	"github.com/turtacn/ClinTerm-Intelligence/internal/config"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// Runtime is the assembled pipeline a command runs against.
type Runtime interface {
	CodingService(extra ...appcoding.ResultSink) appcoding.Service
	Close()
}

// Archiver stores reports in object storage.
type Archiver interface {
	PutJSON(ctx context.Context, kind minio.Kind, runID, name string, v interface{}) (*minio.ArchivedObject, error)
}

// Migrator applies schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Status() (version uint, dirty bool, err error)
	Close() error
}

// Deps opens the backends of a command. Tests replace individual fields.
type Deps struct {
	OpenRuntime  func(ctx context.Context, cfg *config.Config, logger logging.Logger, opts bootstrap.Options) (Runtime, error)
	OpenArchive  func(ctx context.Context, cfg *config.Config, logger logging.Logger) (Archiver, error)
	OpenMigrator func(cfg *config.Config, logger logging.Logger) (Migrator, error)
}

// DefaultDeps opens real backends.
func DefaultDeps() Deps {
	return Deps{
		OpenRuntime: func(ctx context.Context, cfg *config.Config, logger logging.Logger, opts bootstrap.Options) (Runtime, error) {
			app, err := bootstrap.New(ctx, cfg, logger, opts)
			if err != nil {
				return nil, err
			}
			return app, nil
		},
		OpenArchive: func(ctx context.Context, cfg *config.Config, logger logging.Logger) (Archiver, error) {
			if !cfg.MinIO.Enabled {
				return nil, errors.New(errors.ErrCodeInvalidConfig, "archiving requires minio.enabled")
			}
			client, err := minio.NewClient(ctx, cfg.MinIO, logger)
			if err != nil {
				return nil, err
			}
			return minio.NewArchive(client, logger, nil), nil
		},
		OpenMigrator: func(cfg *config.Config, logger logging.Logger) (Migrator, error) {
			m, err := postgres.NewMigrator(cfg.Database.DSN(), cfg.Database.MigrationPath, logger)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}

func (d Deps) withDefaults() Deps {
	def := DefaultDeps()
	if d.OpenRuntime == nil {
		d.OpenRuntime = def.OpenRuntime
	}
	if d.OpenArchive == nil {
		d.OpenArchive = def.OpenArchive
	}
	if d.OpenMigrator == nil {
		d.OpenMigrator = def.OpenMigrator
	}
	return d
}
