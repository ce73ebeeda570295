package term_resolver

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/intelligence/prompts"
)

// CandidateRefiner asks the oracle for alternate phrasings of a term.
type CandidateRefiner struct {
	oracle  Oracle
	timeout time.Duration
	logger  logging.Logger
}

// NewCandidateRefiner returns a refiner backed by oracle.
func NewCandidateRefiner(oracle Oracle, timeout time.Duration, logger logging.Logger) *CandidateRefiner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CandidateRefiner{oracle: oracle, timeout: timeout, logger: logger}
}

// Simplify returns a plainer phrasing of term.
func (r *CandidateRefiner) Simplify(ctx context.Context, term string) (string, bool) {
	return r.refine(ctx, term, prompts.Simplify(term))
}

// Generalize returns a broader concept than term.
func (r *CandidateRefiner) Generalize(ctx context.Context, term string) (string, bool) {
	return r.refine(ctx, term, prompts.Generalize(term))
}

func (r *CandidateRefiner) refine(ctx context.Context, term string, p prompts.Prompt) (string, bool) {
	reply, err := callOracle(ctx, r.oracle, r.timeout, p)
	if err != nil {
		r.logger.WithContext(ctx).Warn("refinement call failed",
			logging.String("kind", string(p.Kind)), logging.String("term", term), logging.Err(err))
		return "", false
	}
	refined := CleanRefinement(reply)
	if refined == "" {
		return "", false
	}
	return refined, true
}

// CleanRefinement strips surrounding whitespace and quote characters.
func CleanRefinement(reply string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(reply), "\"'`"))
}
