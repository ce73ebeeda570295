package term_resolver

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/intelligence/prompts"
)

// LineProcessor extracts the terms of one line of text and resolves each.
type LineProcessor struct {
	oracle   Oracle
	resolver TermResolver
	timeout  time.Duration
	logger   logging.Logger
	metrics  Metrics
}

// NewLineProcessor wires a processor. timeout bounds the extraction call.
func NewLineProcessor(oracle Oracle, resolver TermResolver, timeout time.Duration, logger logging.Logger, metrics Metrics) *LineProcessor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &LineProcessor{
		oracle:   oracle,
		resolver: resolver,
		timeout:  timeout,
		logger:   logger.Named("line_processor"),
		metrics:  metrics,
	}
}

// NormalizeLine trims text and converts it to Unicode NFC.
func NormalizeLine(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// ProcessLine always completes. An extraction failure or an unparseable reply
// yields a result with no terms; the latter also sets Malformed.
func (p *LineProcessor) ProcessLine(ctx context.Context, text string) coding.LineResult {
	line := NormalizeLine(text)
	result := coding.NewLineResult(line)
	if line == "" {
		return result
	}
	log := p.logger.WithContext(ctx)

	reply, err := callOracle(ctx, p.oracle, p.timeout, prompts.Extract(line))
	if err != nil {
		p.metrics.RecordExtraction(ExtractionError, 0)
		log.Warn("extraction call failed", logging.Err(err))
		return result
	}

	parsed := ParseExtraction(reply)
	if parsed.Malformed {
		p.metrics.RecordExtraction(ExtractionMalformed, 0)
		log.Warn("malformed extraction reply", logging.String("reason", parsed.Reason))
		result.Malformed = true
		return result
	}
	p.metrics.RecordExtraction(ExtractionOK, len(parsed.Terms))

	result.Terms = parsed.Terms
	for _, res := range p.resolver.ResolveBatch(ctx, parsed.Terms, line) {
		result.Resolutions[res.Term] = res
	}
	log.Info("line processed",
		logging.Int("terms", len(result.Terms)),
		logging.Int("resolved", result.ResolvedCount()))
	return result
}
