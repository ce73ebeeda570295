package term_resolver

import (
	"context"
	"time"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
)

// TerminologyClient is the terminology service boundary. fhir.Client and the
// Redis-backed cache both satisfy it.
type TerminologyClient interface {
	Expand(ctx context.Context, filter string) ([]coding.Candidate, error)
}

// TerminologyLookup resolves a term to its single best candidate. Failures of
// the underlying service are absorbed and reported as "no candidate".
type TerminologyLookup struct {
	client  TerminologyClient
	timeout time.Duration
	logger  logging.Logger
	metrics Metrics
}

// NewTerminologyLookup wraps client. A non-positive timeout disables the
// per-call deadline.
func NewTerminologyLookup(client TerminologyClient, timeout time.Duration, logger logging.Logger, metrics Metrics) *TerminologyLookup {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &TerminologyLookup{client: client, timeout: timeout, logger: logger, metrics: metrics}
}

// Lookup returns the best candidate for term, or false when there is none.
// Terms outside the searchable length never reach the service.
func (l *TerminologyLookup) Lookup(ctx context.Context, term string) (*coding.Candidate, bool) {
	if !coding.IsSearchable(term) {
		l.metrics.RecordLookup(LookupSkipped, 0)
		return nil, false
	}

	callCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	candidates, err := l.client.Expand(callCtx, term)
	elapsed := time.Since(start)
	if err != nil {
		l.metrics.RecordLookup(LookupError, elapsed)
		l.logger.WithContext(ctx).Warn("terminology lookup failed",
			logging.String("term", term), logging.Duration("elapsed", elapsed), logging.Err(err))
		return nil, false
	}

	best, ok := SelectCandidate(candidates, term)
	if !ok {
		l.metrics.RecordLookup(LookupEmpty, elapsed)
		l.logger.Debug("no terminology candidates", logging.String("term", term))
		return nil, false
	}
	l.metrics.RecordLookup(LookupHit, elapsed)
	return best, true
}

// SelectCandidate picks the case-insensitive exact label match if any, else
// the first candidate in service order.
func SelectCandidate(candidates []coding.Candidate, term string) (*coding.Candidate, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	for i := range candidates {
		if candidates[i].MatchesLabel(term) {
			c := candidates[i]
			return &c, true
		}
	}
	c := candidates[0]
	return &c, true
}
