// Package term_resolver maps clinical terms to SNOMED CT concepts.
//
// A term is resolved by an escalating search: the term itself is looked up
// first (Direct); if that match is not rated above the acceptance threshold
// the oracle simplifies the term and the simplified phrasing is looked up
// (Simplified); failing that the oracle generalizes the term (Generalized).
// Each tier's candidate is rated and a later tier only replaces the current
// best with a strictly higher rating.
package term_resolver

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
)

// CandidateLookup finds the best terminology candidate for a search string.
type CandidateLookup interface {
	Lookup(ctx context.Context, term string) (*coding.Candidate, bool)
}

// MatchRater scores a candidate label against a term in context.
type MatchRater interface {
	Rate(ctx context.Context, term, label, lineContext string) coding.Rating
}

// TermRefiner produces alternate phrasings of a term.
type TermRefiner interface {
	Simplify(ctx context.Context, term string) (string, bool)
	Generalize(ctx context.Context, term string) (string, bool)
}

// TermResolver is the contract the line processor depends on.
type TermResolver interface {
	Resolve(ctx context.Context, term, lineContext string) coding.Resolution
	ResolveBatch(ctx context.Context, terms []string, lineContext string) []coding.Resolution
}

// Config tunes the resolver.
type Config struct {
	// LookupTimeout bounds each terminology call.
	LookupTimeout time.Duration `json:"lookup_timeout" yaml:"lookup_timeout"`
	// OracleTimeout bounds each oracle call.
	OracleTimeout time.Duration `json:"oracle_timeout" yaml:"oracle_timeout"`
	// BatchConcurrency bounds how many terms resolve at once. 1 is sequential.
	BatchConcurrency int `json:"batch_concurrency" yaml:"batch_concurrency"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		LookupTimeout:    10 * time.Second,
		OracleTimeout:    60 * time.Second,
		BatchConcurrency: 1,
	}
}

// Resolver runs the Direct → Simplified → Generalized escalation.
type Resolver struct {
	lookup  CandidateLookup
	rater   MatchRater
	refiner TermRefiner
	config  Config
	logger  logging.Logger
	metrics Metrics
}

// NewResolver wires a resolver from its collaborators.
func NewResolver(lookup CandidateLookup, rater MatchRater, refiner TermRefiner, config Config, logger logging.Logger, metrics Metrics) *Resolver {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = 1
	}
	return &Resolver{
		lookup:  lookup,
		rater:   rater,
		refiner: refiner,
		config:  config,
		logger:  logger.Named("resolver"),
		metrics: metrics,
	}
}

// best is the running best match of one escalation.
type best struct {
	candidate *coding.Candidate
	rating    coding.Rating
	strategy  coding.Strategy
	refined   string
}

type refineFunc func(ctx context.Context, term string) (string, bool)

// Resolve returns the best available match for term. lineContext is the
// source line, used to disambiguate the Direct rating. Resolve never fails;
// an unmatched term yields coding.Unresolved.
func (r *Resolver) Resolve(ctx context.Context, term, lineContext string) coding.Resolution {
	var cur best
	trace := make([]coding.TierOutcome, 0, len(coding.Strategies))

	direct := coding.TierOutcome{Strategy: coding.StrategyDirect, Query: term}
	if cand, ok := r.lookup.Lookup(ctx, term); ok {
		rating := r.rater.Rate(ctx, term, cand.Display, lineContext)
		direct.Candidate, direct.Rated, direct.Rating, direct.Replaced = cand, true, rating, true
		cur = best{candidate: cand, rating: rating, strategy: coding.StrategyDirect}
	}
	direct.BestRating = cur.rating
	trace = append(trace, direct)

	if !cur.rating.Accepted() {
		tiers := []struct {
			strategy coding.Strategy
			refine   refineFunc
		}{
			{coding.StrategySimplified, r.refiner.Simplify},
			{coding.StrategyGeneralized, r.refiner.Generalize},
		}
		for _, tier := range tiers {
			if ctx.Err() != nil {
				break
			}
			out := r.refineTier(ctx, term, tier.strategy, tier.refine, &cur)
			trace = append(trace, out)
			if cur.rating.Accepted() {
				break
			}
		}
	}

	res := r.finish(term, cur, trace)
	r.metrics.RecordResolution(res)
	r.logger.WithContext(ctx).Debug("term resolved",
		logging.String("term", term),
		logging.Bool("resolved", res.Resolved),
		logging.String("strategy", res.Strategy.String()),
		logging.Int("rating", int(res.Rating)),
		logging.Int("tiers", len(trace)))
	return res
}

// refineTier runs one refinement tier against the running best. The refined
// phrasing is both looked up and rated, with the original term as context.
func (r *Resolver) refineTier(ctx context.Context, term string, strategy coding.Strategy, refine refineFunc, cur *best) coding.TierOutcome {
	out := coding.TierOutcome{Strategy: strategy}
	refined, ok := refine(ctx, term)
	if !ok {
		out.BestRating = cur.rating
		return out
	}
	out.Query = refined

	cand, found := r.lookup.Lookup(ctx, refined)
	if !found {
		out.BestRating = cur.rating
		return out
	}
	out.Candidate = cand
	if coding.SameEntry(cand, cur.candidate) {
		out.BestRating = cur.rating
		return out
	}

	rating := r.rater.Rate(ctx, refined, cand.Display, term)
	out.Rated, out.Rating = true, rating
	if rating > cur.rating {
		*cur = best{candidate: cand, rating: rating, strategy: strategy, refined: refined}
		out.Replaced = true
	}
	out.BestRating = cur.rating
	return out
}

func (r *Resolver) finish(term string, cur best, trace []coding.TierOutcome) coding.Resolution {
	if cur.candidate == nil || cur.rating <= coding.RatingNone {
		res := coding.Unresolved(term)
		res.Trace = trace
		return res
	}
	return coding.Resolution{
		Term:        term,
		Candidate:   cur.candidate,
		Rating:      cur.rating,
		Strategy:    cur.strategy,
		RefinedTerm: cur.refined,
		Resolved:    true,
		Trace:       trace,
	}
}

// ResolveBatch resolves independent terms with at most BatchConcurrency in
// flight. Results are returned in input order.
func (r *Resolver) ResolveBatch(ctx context.Context, terms []string, lineContext string) []coding.Resolution {
	results := make([]coding.Resolution, len(terms))
	if len(terms) == 0 {
		return results
	}

	if r.config.BatchConcurrency == 1 {
		for i, t := range terms {
			results[i] = r.Resolve(ctx, t, lineContext)
		}
		return results
	}

	sem := make(chan struct{}, r.config.BatchConcurrency)
	var wg sync.WaitGroup
	for i, t := range terms {
		wg.Add(1)
		go func(idx int, term string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = r.Resolve(ctx, term, lineContext)
		}(i, t)
	}
	wg.Wait()
	return results
}
