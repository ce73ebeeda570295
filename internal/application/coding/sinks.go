package coding

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"sync"

	domain "github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// PredictionHeader is the column layout of prediction files.
var PredictionHeader = []string{"note_id", "concept_id", "term", "display", "rating", "strategy", "refined_term"}

// RepositorySink persists every record.
type RepositorySink struct {
	repo domain.ResolutionRepository
}

func NewRepositorySink(repo domain.ResolutionRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Name() string { return "postgres" }

func (s *RepositorySink) Write(ctx context.Context, result *NoteResult) error {
	return s.repo.SaveBatch(ctx, result.Records)
}

// Publisher is the producer side of the kafka sink.
type Publisher interface {
	Publish(ctx context.Context, msg *kafka.ProducerMessage) error
}

// KafkaSink publishes one resolutions.recorded event per note, keyed by note ID.
type KafkaSink struct {
	producer Publisher
	topic    string
}

func NewKafkaSink(producer Publisher, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, result *NoteResult) error {
	env, err := kafka.NewEventEnvelope(kafka.EventResolutionsRecorded, kafka.ResolutionsRecordedPayload{
		RunID:   result.RunID,
		NoteID:  result.NoteID,
		Records: result.Records,
	})
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(s.topic, result.NoteID)
	if err != nil {
		return err
	}
	return s.producer.Publish(ctx, msg)
}

// CSVSink appends resolved records to a prediction file. The header is
// written before the first row.
type CSVSink struct {
	mu     sync.Mutex
	w      *csv.Writer
	header bool
}

func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Write(_ context.Context, result *NoteResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.header {
		if err := s.w.Write(PredictionHeader); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to write prediction header")
		}
		s.header = true
	}
	return writeRows(s.w, result.Records)
}

// WritePredictions writes a complete prediction file containing only
// resolved records.
func WritePredictions(w io.Writer, records []domain.ResolutionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PredictionHeader); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write prediction header")
	}
	return writeRows(cw, records)
}

func writeRows(cw *csv.Writer, records []domain.ResolutionRecord) error {
	for _, rec := range records {
		if rec.ConceptID == "" {
			continue
		}
		row := []string{
			rec.NoteID,
			rec.ConceptID,
			rec.Term,
			rec.Display,
			strconv.Itoa(int(rec.Rating)),
			rec.Strategy.String(),
			rec.RefinedTerm,
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to write prediction row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to flush predictions")
	}
	return nil
}
