package term_resolver

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/intelligence/prompts"
)

// Oracle is the text-generation boundary. llm.Completer satisfies it.
type Oracle interface {
	Complete(ctx context.Context, p prompts.Prompt) (string, error)
}

// callOracle runs one completion under timeout.
func callOracle(ctx context.Context, oracle Oracle, timeout time.Duration, p prompts.Prompt) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return oracle.Complete(ctx, p)
}

// RatingEvaluator scores how well a candidate label captures a term.
type RatingEvaluator struct {
	oracle  Oracle
	timeout time.Duration
	logger  logging.Logger
	metrics Metrics
}

// NewRatingEvaluator returns an evaluator backed by oracle.
func NewRatingEvaluator(oracle Oracle, timeout time.Duration, logger logging.Logger, metrics Metrics) *RatingEvaluator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &RatingEvaluator{oracle: oracle, timeout: timeout, logger: logger, metrics: metrics}
}

// Rate returns 5 for a case-insensitive exact match without consulting the
// oracle. Otherwise it asks the oracle once; an error, a timeout, or any reply
// other than a digit 1..5 rates 0.
func (r *RatingEvaluator) Rate(ctx context.Context, term, label, lineContext string) coding.Rating {
	if strings.EqualFold(term, label) {
		r.metrics.RecordRating(coding.RatingExact, false)
		return coding.RatingExact
	}

	reply, err := callOracle(ctx, r.oracle, r.timeout, prompts.Rating(term, label, lineContext))
	if err != nil {
		r.logger.WithContext(ctx).Warn("rating call failed",
			logging.String("term", term), logging.String("label", label), logging.Err(err))
		r.metrics.RecordRating(coding.RatingNone, true)
		return coding.RatingNone
	}

	rating := coding.ParseRating(reply)
	if rating == coding.RatingNone {
		r.logger.Debug("uninterpretable rating reply", logging.String("term", term), logging.String("reply", reply))
	}
	r.metrics.RecordRating(rating, true)
	return rating
}
