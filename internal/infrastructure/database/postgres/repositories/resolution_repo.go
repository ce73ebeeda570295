package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

const resolutionColumns = `id, run_id, note_id, line_no, term, concept_id, display, rating, strategy, refined_term, created_at`

const insertResolution = `
	INSERT INTO term_resolutions (` + resolutionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO NOTHING`

type postgresResolutionRepo struct {
	baseRepo
}

// NewPostgresResolutionRepo returns a coding.ResolutionRepository on conn.
func NewPostgresResolutionRepo(conn *postgres.Connection, log logging.Logger) coding.ResolutionRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresResolutionRepo{
		baseRepo: baseRepo{conn: conn, log: log.Named("resolution_repo")},
	}
}

func (r *postgresResolutionRepo) SaveBatch(ctx context.Context, records []coding.ResolutionRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { r.observe("save_batch", start, err) }()

	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertResolution)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to prepare resolution insert")
		}
		defer stmt.Close()

		for i := range records {
			rec := &records[i]
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = time.Now().UTC()
			}
			if _, err := stmt.ExecContext(ctx,
				rec.ID, rec.RunID, rec.NoteID, rec.LineNo, rec.Term,
				rec.ConceptID, rec.Display, int(rec.Rating), rec.Strategy.String(),
				rec.RefinedTerm, rec.CreatedAt,
			); err != nil {
				return errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to save resolution of %q", rec.Term)
			}
		}
		r.log.Debug("resolutions saved", logging.Int("count", len(records)))
		return nil
	})
}

func (r *postgresResolutionRepo) ListByRun(ctx context.Context, runID uuid.UUID) (_ []coding.ResolutionRecord, err error) {
	start := time.Now()
	defer func() { r.observe("list_by_run", start, err) }()

	query := `SELECT ` + resolutionColumns + ` FROM term_resolutions
		WHERE run_id = $1 ORDER BY note_id, line_no, term`
	return r.list(ctx, query, runID)
}

func (r *postgresResolutionRepo) ListByNote(ctx context.Context, noteID string) (_ []coding.ResolutionRecord, err error) {
	start := time.Now()
	defer func() { r.observe("list_by_note", start, err) }()

	query := `SELECT ` + resolutionColumns + ` FROM term_resolutions
		WHERE note_id = $1 ORDER BY created_at DESC, line_no, term`
	return r.list(ctx, query, noteID)
}

func (r *postgresResolutionRepo) list(ctx context.Context, query string, arg interface{}) ([]coding.ResolutionRecord, error) {
	rows, err := r.executor().QueryContext(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query resolutions")
	}
	defer rows.Close()

	out := make([]coding.ResolutionRecord, 0)
	for rows.Next() {
		rec, err := scanResolution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate resolutions")
	}
	return out, nil
}

func scanResolution(row scanner) (coding.ResolutionRecord, error) {
	var (
		rec      coding.ResolutionRecord
		rating   int
		strategy string
	)
	if err := row.Scan(
		&rec.ID, &rec.RunID, &rec.NoteID, &rec.LineNo, &rec.Term,
		&rec.ConceptID, &rec.Display, &rating, &strategy, &rec.RefinedTerm, &rec.CreatedAt,
	); err != nil {
		return rec, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan resolution")
	}
	rec.Rating = coding.Rating(rating)
	if err := rec.Strategy.UnmarshalText([]byte(strategy)); err != nil {
		return rec, errors.Wrapf(err, errors.ErrCodeSerialization, "unknown strategy %q", strategy)
	}
	return rec, nil
}
