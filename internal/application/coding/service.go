// Package coding orchestrates note-level coding: every line of a note goes
// through the line processor, the resulting resolutions are flattened into
// records, and the records are handed to the configured result sinks.
package coding

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	domain "github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// LineProcessor extracts and resolves the terms of one line.
type LineProcessor interface {
	ProcessLine(ctx context.Context, text string) domain.LineResult
}

// TermResolver resolves a single term.
type TermResolver interface {
	Resolve(ctx context.Context, term, lineContext string) domain.Resolution
}

// Service defines the coding use cases.
type Service interface {
	ProcessLine(ctx context.Context, text string) domain.LineResult
	ResolveTerm(ctx context.Context, term, lineContext string) (domain.Resolution, error)
	ProcessNote(ctx context.Context, input *NoteInput) (*NoteResult, error)
	ListByNote(ctx context.Context, noteID string) ([]domain.ResolutionRecord, error)
}

// NoteInput is one clinical note split into lines.
type NoteInput struct {
	NoteID string   `json:"note_id"`
	Lines  []string `json:"lines"`
}

// LineOutcome pairs a processed line with its 1-based position in the note.
type LineOutcome struct {
	LineNo int               `json:"line_no"`
	Result domain.LineResult `json:"result"`
}

// NoteResult is the outcome of ProcessNote.
type NoteResult struct {
	RunID     uuid.UUID                 `json:"run_id"`
	NoteID    string                    `json:"note_id"`
	Lines     []LineOutcome             `json:"lines"`
	Records   []domain.ResolutionRecord `json:"records"`
	Resolved  int                       `json:"resolved"`
	Malformed int                       `json:"malformed"`
	Elapsed   time.Duration             `json:"elapsed"`
}

// ResolvedRecords returns the subset of r's records that carry a concept.
func (r *NoteResult) ResolvedRecords() []domain.ResolutionRecord {
	out := make([]domain.ResolutionRecord, 0, r.Resolved)
	for _, rec := range r.Records {
		if rec.ConceptID != "" {
			out = append(out, rec)
		}
	}
	return out
}

// ResultSink receives every NoteResult.
type ResultSink interface {
	Name() string
	Write(ctx context.Context, result *NoteResult) error
}

// Config tunes the service.
type Config struct {
	// LineConcurrency bounds how many lines of one note run at once.
	LineConcurrency int
}

type serviceImpl struct {
	processor LineProcessor
	resolver  TermResolver
	repo      domain.ResolutionRepository
	sinks     []ResultSink
	config    Config
	logger    logging.Logger
	metrics   *prometheus.AppMetrics
}

// NewService creates the coding service. repo, sinks, and metrics are
// optional.
func NewService(processor LineProcessor, resolver TermResolver, repo domain.ResolutionRepository, sinks []ResultSink, cfg Config, logger logging.Logger, metrics *prometheus.AppMetrics) Service {
	if cfg.LineConcurrency < 1 {
		cfg.LineConcurrency = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{
		processor: processor,
		resolver:  resolver,
		repo:      repo,
		sinks:     sinks,
		config:    cfg,
		logger:    logger.Named("coding_service"),
		metrics:   metrics,
	}
}

func (s *serviceImpl) ProcessLine(ctx context.Context, text string) domain.LineResult {
	res := s.processor.ProcessLine(ctx, text)
	prometheus.RecordLines(s.metrics, "api", 1)
	return res
}

func (s *serviceImpl) ResolveTerm(ctx context.Context, term, lineContext string) (domain.Resolution, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return domain.Resolution{}, errors.New(errors.ErrCodeValidation, "term is required")
	}
	return s.resolver.Resolve(ctx, term, strings.TrimSpace(lineContext)), nil
}

func (s *serviceImpl) ProcessNote(ctx context.Context, input *NoteInput) (*NoteResult, error) {
	if input == nil || strings.TrimSpace(input.NoteID) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "note_id is required")
	}
	start := time.Now()

	type job struct {
		lineNo int
		text   string
	}
	jobs := make([]job, 0, len(input.Lines))
	for i, line := range input.Lines {
		if IsContentLine(line) {
			jobs = append(jobs, job{lineNo: i + 1, text: line})
		}
	}

	outcomes := make([]LineOutcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.LineConcurrency)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = LineOutcome{LineNo: j.lineNo, Result: s.processor.ProcessLine(gctx, j.text)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeTimeout, "processing of note %s interrupted", input.NoteID)
	}

	result := &NoteResult{
		RunID:   uuid.New(),
		NoteID:  input.NoteID,
		Lines:   outcomes,
		Records: make([]domain.ResolutionRecord, 0),
	}
	for _, o := range outcomes {
		if o.Result.Malformed {
			result.Malformed++
		}
		for _, res := range o.Result.Ordered() {
			result.Records = append(result.Records, domain.NewResolutionRecord(result.RunID, input.NoteID, o.LineNo, res))
			if res.Resolved {
				result.Resolved++
			}
		}
	}
	result.Elapsed = time.Since(start)
	prometheus.RecordLines(s.metrics, "note", len(jobs))

	s.logger.Info("note processed",
		logging.String("note_id", input.NoteID),
		logging.String("run_id", result.RunID.String()),
		logging.Int("lines", len(jobs)),
		logging.Int("terms", len(result.Records)),
		logging.Int("resolved", result.Resolved),
		logging.Int("malformed", result.Malformed),
		logging.Duration("elapsed", result.Elapsed))

	s.deliver(ctx, result)
	return result, nil
}

// deliver hands result to every sink. Sink failures never fail the note.
func (s *serviceImpl) deliver(ctx context.Context, result *NoteResult) {
	for _, sink := range s.sinks {
		err := sink.Write(ctx, result)
		prometheus.RecordSinkWrite(s.metrics, sink.Name(), err)
		if err != nil {
			s.logger.Error("result sink failed",
				logging.String("sink", sink.Name()),
				logging.String("note_id", result.NoteID),
				logging.Err(err))
		}
	}
}

func (s *serviceImpl) ListByNote(ctx context.Context, noteID string) ([]domain.ResolutionRecord, error) {
	if s.repo == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "resolution storage is not configured")
	}
	if strings.TrimSpace(noteID) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "note_id is required")
	}
	return s.repo.ListByNote(ctx, noteID)
}

// IsContentLine reports whether line carries text to code: blank lines and
// lines starting with '#' are skipped.
func IsContentLine(line string) bool {
	line = strings.TrimSpace(line)
	return line != "" && !strings.HasPrefix(line, "#")
}

// ReadCorpus reads a plain-text corpus and returns its content lines, trimmed.
func ReadCorpus(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lines := make([]string, 0)
	for scanner.Scan() {
		if line := scanner.Text(); IsContentLine(line) {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read corpus")
	}
	return lines, nil
}
