package coding

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ClinTerm-Intelligence/internal/testutil"
	pkgerrors "github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// tableProcessor returns canned results keyed by line text.
type tableProcessor struct {
	mu    sync.Mutex
	table map[string]domain.LineResult
	seen  []string
}

func (p *tableProcessor) ProcessLine(_ context.Context, text string) domain.LineResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, text)
	if r, ok := p.table[text]; ok {
		return r
	}
	return domain.NewLineResult(text)
}

type mockResolver struct{ mock.Mock }

func (m *mockResolver) Resolve(ctx context.Context, term, lineContext string) domain.Resolution {
	return m.Called(ctx, term, lineContext).Get(0).(domain.Resolution)
}

type mockRepo struct{ mock.Mock }

func (m *mockRepo) SaveBatch(ctx context.Context, records []domain.ResolutionRecord) error {
	return m.Called(ctx, records).Error(0)
}

func (m *mockRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.ResolutionRecord, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]domain.ResolutionRecord), args.Error(1)
}

func (m *mockRepo) ListByNote(ctx context.Context, noteID string) ([]domain.ResolutionRecord, error) {
	args := m.Called(ctx, noteID)
	return args.Get(0).([]domain.ResolutionRecord), args.Error(1)
}

type failingSink struct{ calls int }

func (s *failingSink) Name() string { return "broken" }
func (s *failingSink) Write(context.Context, *NoteResult) error {
	s.calls++
	return errors.New("disk full")
}

func resolved(term, code, display string, rating domain.Rating, strategy domain.Strategy) domain.Resolution {
	c := domain.Candidate{System: "http://snomed.info/sct", Code: code, Display: display}
	return domain.Resolution{Term: term, Candidate: &c, Rating: rating, Strategy: strategy, Resolved: true}
}

func lineResult(line string, malformed bool, res ...domain.Resolution) domain.LineResult {
	lr := domain.NewLineResult(line)
	lr.Malformed = malformed
	for _, r := range res {
		lr.Terms = append(lr.Terms, r.Term)
		lr.Resolutions[r.Term] = r
	}
	return lr
}

func newTestProcessor() *tableProcessor {
	return &tableProcessor{table: map[string]domain.LineResult{
		"Pt has fever and cough": lineResult("Pt has fever and cough", false,
			resolved("fever", "386661006", "Fever", 5, domain.StrategyDirect),
			domain.Unresolved("cough"),
		),
		"c/o tummy ache": lineResult("c/o tummy ache", false,
			resolved("tummy ache", "69776003", "Gastric pain", 4, domain.StrategySimplified),
		),
		"garbled": lineResult("garbled", true),
	}}
}

func TestProcessNote(t *testing.T) {
	proc := newTestProcessor()
	repo := new(mockRepo)
	repo.On("SaveBatch", mock.Anything, mock.MatchedBy(func(recs []domain.ResolutionRecord) bool {
		return len(recs) == 3
	})).Return(nil)

	var buf bytes.Buffer
	svc := NewService(proc, nil, repo, []ResultSink{NewRepositorySink(repo), NewCSVSink(&buf)}, Config{LineConcurrency: 3}, nil, nil)

	res, err := svc.ProcessNote(context.Background(), &NoteInput{
		NoteID: "note-1",
		Lines:  []string{"# header", "Pt has fever and cough", "", "c/o tummy ache", "garbled"},
	})
	require.NoError(t, err)

	assert.Equal(t, "note-1", res.NoteID)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	require.Len(t, res.Lines, 3)
	assert.Equal(t, []int{2, 4, 5}, []int{res.Lines[0].LineNo, res.Lines[1].LineNo, res.Lines[2].LineNo})
	assert.Equal(t, 2, res.Resolved)
	assert.Equal(t, 1, res.Malformed)

	require.Len(t, res.Records, 3)
	assert.Equal(t, "fever", res.Records[0].Term)
	assert.Equal(t, "cough", res.Records[1].Term)
	assert.Empty(t, res.Records[1].ConceptID)
	assert.Equal(t, 4, res.Records[2].LineNo)
	for _, rec := range res.Records {
		assert.Equal(t, res.RunID, rec.RunID)
	}
	assert.Len(t, res.ResolvedRecords(), 2)
	assert.NotContains(t, proc.seen, "# header")

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, PredictionHeader, rows[0])
	assert.Equal(t, []string{"note-1", "69776003", "tummy ache", "Gastric pain", "4", "simplified", ""}, rows[2])
	repo.AssertExpectations(t)
}

func TestProcessNote_SinkFailureDoesNotAbort(t *testing.T) {
	logger := testutil.NewMockLogger()
	sink := &failingSink{}
	svc := NewService(newTestProcessor(), nil, nil, []ResultSink{sink}, Config{}, logger, nil)

	res, err := svc.ProcessNote(context.Background(), &NoteInput{NoteID: "n", Lines: []string{"c/o tummy ache"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 1, sink.calls)
	assert.True(t, logger.HasMessage("error", "result sink failed"))
}

func TestProcessNote_Validation(t *testing.T) {
	svc := NewService(newTestProcessor(), nil, nil, nil, Config{}, nil, nil)

	_, err := svc.ProcessNote(context.Background(), &NoteInput{Lines: []string{"x"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
	_, err = svc.ProcessNote(context.Background(), nil)
	assert.Error(t, err)
}

func TestProcessNote_EmptyNote(t *testing.T) {
	svc := NewService(newTestProcessor(), nil, nil, nil, Config{}, nil, nil)

	res, err := svc.ProcessNote(context.Background(), &NoteInput{NoteID: "n"})
	require.NoError(t, err)
	assert.Empty(t, res.Lines)
	assert.NotNil(t, res.Records)
}

func TestProcessNote_Cancelled(t *testing.T) {
	svc := NewService(newTestProcessor(), nil, nil, nil, Config{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ProcessNote(ctx, &NoteInput{NoteID: "n", Lines: []string{"garbled"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeTimeout))
}

func TestResolveTerm(t *testing.T) {
	r := new(mockResolver)
	want := resolved("fever", "386661006", "Fever", 5, domain.StrategyDirect)
	r.On("Resolve", mock.Anything, "fever", "Pt has fever").Return(want)
	svc := NewService(newTestProcessor(), r, nil, nil, Config{}, nil, nil)

	got, err := svc.ResolveTerm(context.Background(), " fever ", "Pt has fever")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = svc.ResolveTerm(context.Background(), "  ", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func TestListByNote(t *testing.T) {
	svc := NewService(newTestProcessor(), nil, nil, nil, Config{}, nil, nil)
	_, err := svc.ListByNote(context.Background(), "n")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeServiceUnavailable))

	repo := new(mockRepo)
	repo.On("ListByNote", mock.Anything, "n").Return([]domain.ResolutionRecord{{NoteID: "n"}}, nil)
	svc = NewService(newTestProcessor(), nil, repo, nil, Config{}, nil, nil)
	recs, err := svc.ListByNote(context.Background(), "n")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestReadCorpus(t *testing.T) {
	lines, err := ReadCorpus(strings.NewReader("# comment\n\n  Pt has fever  \r\n\t\nc/o tummy ache\n  # indented comment\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Pt has fever", "c/o tummy ache"}, lines)
}

type recordingPublisher struct {
	msgs []*kafka.ProducerMessage
}

func (p *recordingPublisher) Publish(_ context.Context, msg *kafka.ProducerMessage) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestKafkaSink(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewKafkaSink(pub, "clinterm.resolutions")
	result := &NoteResult{
		RunID:   uuid.New(),
		NoteID:  "note-7",
		Records: []domain.ResolutionRecord{{NoteID: "note-7", Term: "fever", ConceptID: "386661006"}},
	}

	require.NoError(t, sink.Write(context.Background(), result))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "clinterm.resolutions", pub.msgs[0].Topic)
	assert.Equal(t, "note-7", string(pub.msgs[0].Key))

	env, err := kafka.MessageToEventEnvelope(&kafka.Message{Value: pub.msgs[0].Value})
	require.NoError(t, err)
	var payload kafka.ResolutionsRecordedPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, result.RunID, payload.RunID)
	assert.Len(t, payload.Records, 1)
}

func TestWritePredictions_SkipsUnresolved(t *testing.T) {
	var buf bytes.Buffer
	err := WritePredictions(&buf, []domain.ResolutionRecord{
		{NoteID: "n1", Term: "fever", ConceptID: "386661006", Display: "Fever", Rating: 5, Strategy: domain.StrategyDirect},
		{NoteID: "n1", Term: "xyzzy", Strategy: domain.StrategyNone},
		{NoteID: "n2", Term: "heart attack", ConceptID: "22298006", Display: "Myocardial infarction", Rating: 4,
			Strategy: domain.StrategyGeneralized, RefinedTerm: "myocardial infarction"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"note_id,concept_id,term,display,rating,strategy,refined_term\n"+
			"n1,386661006,fever,Fever,5,direct,\n"+
			"n2,22298006,heart attack,Myocardial infarction,4,generalized,myocardial infarction\n",
		buf.String())
}
