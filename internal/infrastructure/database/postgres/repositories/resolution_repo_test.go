package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/database/postgres"
	pkgerrors "github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

type ResolutionRepoTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *sql.DB
	repo coding.ResolutionRepository
}

func (s *ResolutionRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)
	s.repo = NewPostgresResolutionRepo(postgres.NewConnectionWithDB(s.db, nil, nil), nil)
}

func (s *ResolutionRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

var resolutionRowColumns = []string{
	"id", "run_id", "note_id", "line_no", "term", "concept_id", "display", "rating", "strategy", "refined_term", "created_at",
}

func sampleRecords(runID uuid.UUID) []coding.ResolutionRecord {
	fever := coding.Candidate{System: "http://snomed.info/sct", Code: "386661006", Display: "Fever"}
	return []coding.ResolutionRecord{
		coding.NewResolutionRecord(runID, "note-1", 1, coding.Resolution{
			Term: "fever", Candidate: &fever, Rating: 5, Strategy: coding.StrategyDirect, Resolved: true,
		}),
		coding.NewResolutionRecord(runID, "note-1", 2, coding.Unresolved("xyzzy")),
	}
}

func (s *ResolutionRepoTestSuite) TestSaveBatch_Success() {
	runID := uuid.New()
	recs := sampleRecords(runID)

	s.mock.ExpectBegin()
	prep := s.mock.ExpectPrepare("INSERT INTO term_resolutions")
	prep.ExpectExec().
		WithArgs(recs[0].ID, runID, "note-1", 1, "fever", "386661006", "Fever", 5, "direct", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(recs[1].ID, runID, "note-1", 2, "xyzzy", "", "", 0, "none", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	s.NoError(s.repo.SaveBatch(context.Background(), recs))
}

func (s *ResolutionRepoTestSuite) TestSaveBatch_RollsBackOnError() {
	recs := sampleRecords(uuid.New())

	s.mock.ExpectBegin()
	prep := s.mock.ExpectPrepare("INSERT INTO term_resolutions")
	prep.ExpectExec().WillReturnError(errors.New("unique violation"))
	s.mock.ExpectRollback()

	err := s.repo.SaveBatch(context.Background(), recs)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func (s *ResolutionRepoTestSuite) TestSaveBatch_Empty() {
	s.NoError(s.repo.SaveBatch(context.Background(), nil))
}

func (s *ResolutionRepoTestSuite) TestListByRun() {
	runID := uuid.New()
	id := uuid.New()
	now := time.Now().UTC()
	s.mock.ExpectQuery("SELECT (.+) FROM term_resolutions\\s+WHERE run_id = \\$1").
		WithArgs(runID).
		WillReturnRows(sqlmock.NewRows(resolutionRowColumns).
			AddRow(id.String(), runID.String(), "note-1", 3, "tummy ache", "69776003", "Gastric pain", 4, "simplified", "stomach pain", now))

	recs, err := s.repo.ListByRun(context.Background(), runID)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal(id, recs[0].ID)
	s.Equal(coding.StrategySimplified, recs[0].Strategy)
	s.Equal(coding.Rating(4), recs[0].Rating)
	s.Equal("stomach pain", recs[0].RefinedTerm)
}

func (s *ResolutionRepoTestSuite) TestListByNote_Empty() {
	s.mock.ExpectQuery("SELECT (.+) FROM term_resolutions\\s+WHERE note_id = \\$1").
		WithArgs("note-9").
		WillReturnRows(sqlmock.NewRows(resolutionRowColumns))

	recs, err := s.repo.ListByNote(context.Background(), "note-9")
	s.NoError(err)
	s.NotNil(recs)
	s.Empty(recs)
}

func (s *ResolutionRepoTestSuite) TestListByNote_QueryError() {
	s.mock.ExpectQuery("SELECT (.+) FROM term_resolutions").
		WillReturnError(errors.New("timeout"))

	_, err := s.repo.ListByNote(context.Background(), "note-1")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func (s *ResolutionRepoTestSuite) TestListByRun_BadStrategy() {
	runID := uuid.New()
	s.mock.ExpectQuery("SELECT (.+) FROM term_resolutions").
		WillReturnRows(sqlmock.NewRows(resolutionRowColumns).
			AddRow(uuid.New().String(), runID.String(), "n", 1, "t", "", "", 0, "sideways", "", time.Now()))

	_, err := s.repo.ListByRun(context.Background(), runID)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

func TestResolutionRepoSuite(t *testing.T) {
	suite.Run(t, new(ResolutionRepoTestSuite))
}
