package term_resolver

import (
	"context"
	"strings"
	"sync"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/intelligence/prompts"
)

// stubTerminology serves canned expansions and counts calls.
type stubTerminology struct {
	mu      sync.Mutex
	results map[string][]coding.Candidate
	errs    map[string]error
	calls   []string
}

func newStubTerminology() *stubTerminology {
	return &stubTerminology{results: map[string][]coding.Candidate{}, errs: map[string]error{}}
}

func (s *stubTerminology) with(filter string, cands ...coding.Candidate) *stubTerminology {
	s.results[filter] = cands
	return s
}

func (s *stubTerminology) Expand(ctx context.Context, filter string) ([]coding.Candidate, error) {
	s.mu.Lock()
	s.calls = append(s.calls, filter)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.errs[filter]; ok {
		return nil, err
	}
	return s.results[filter], nil
}

func (s *stubTerminology) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubTerminology) queried() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// stubOracle answers by prompt kind and counts calls per kind.
type stubOracle struct {
	mu       sync.Mutex
	ratings  map[string]string // SNOMED label → reply
	simplify map[string]string
	general  map[string]string
	extract  map[string]string // line → reply
	err      error
	calls    map[prompts.Kind]int
}

func newStubOracle() *stubOracle {
	return &stubOracle{
		ratings:  map[string]string{},
		simplify: map[string]string{},
		general:  map[string]string{},
		extract:  map[string]string{},
		calls:    map[prompts.Kind]int{},
	}
}

func (o *stubOracle) Complete(ctx context.Context, p prompts.Prompt) (string, error) {
	o.mu.Lock()
	o.calls[p.Kind]++
	o.mu.Unlock()
	if o.err != nil {
		return "", o.err
	}
	last := p.Last().Content
	switch p.Kind {
	case prompts.KindRating:
		for label, reply := range o.ratings {
			if strings.Contains(last, "SNOMED term: "+label+"\n") {
				return reply, nil
			}
		}
		return "", nil
	case prompts.KindSimplify:
		return o.simplify[last], nil
	case prompts.KindGeneralize:
		return o.general[last], nil
	case prompts.KindExtract:
		return o.extract[last], nil
	}
	return "", nil
}

func (o *stubOracle) count(kind prompts.Kind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[kind]
}

func newTestResolver(term *stubTerminology, oracle *stubOracle, cfg Config) *Resolver {
	lookup := NewTerminologyLookup(term, cfg.LookupTimeout, nil, nil)
	rater := NewRatingEvaluator(oracle, cfg.OracleTimeout, nil, nil)
	refiner := NewCandidateRefiner(oracle, cfg.OracleTimeout, nil)
	return NewResolver(lookup, rater, refiner, cfg, nil, nil)
}

func snomed(code, display string) coding.Candidate {
	return coding.Candidate{System: "http://snomed.info/sct", Code: code, Display: display}
}
