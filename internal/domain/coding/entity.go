// Package coding holds the domain model for mapping clinical terms to SNOMED CT
// concepts: the coded candidates returned by a terminology search, the
// confidence ratings attached to them, the refinement strategies that produced
// them, and the per-term Resolution that the term resolver reports.
package coding

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ─────────────────────────────────────────────────────────────────────────────
// Term
// ─────────────────────────────────────────────────────────────────────────────

const (
	// MinTermLength is the shortest searchable term, in characters.
	MinTermLength = 3
	// MaxTermLength is the longest searchable term, in characters.
	MaxTermLength = 100
)

// IsSearchable reports whether term may be sent to the terminology service.
// Length is measured in Unicode code points.
func IsSearchable(term string) bool {
	n := utf8.RuneCountInString(term)
	return n >= MinTermLength && n <= MaxTermLength
}

// ─────────────────────────────────────────────────────────────────────────────
// Candidate
// ─────────────────────────────────────────────────────────────────────────────

// Candidate is a coded terminology entry returned by a valueset expansion.
// It is a value type and is never modified after the lookup returns it.
type Candidate struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// SameAs reports whether c and other denote the same terminology entry.
// Identity is the (system, code) pair; display labels are not compared.
func (c Candidate) SameAs(other Candidate) bool {
	return c.Code == other.Code && c.System == other.System
}

// MatchesLabel reports a case-insensitive exact match between term and the
// candidate's display label.
func (c Candidate) MatchesLabel(term string) bool {
	return strings.EqualFold(c.Display, term)
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s|%s|", c.Code, c.Display)
}

// SameEntry compares two optional candidates by identity. Two absent
// candidates are the same; an absent and a present one are not.
func SameEntry(a, b *Candidate) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.SameAs(*b)
}

// ─────────────────────────────────────────────────────────────────────────────
// Rating
// ─────────────────────────────────────────────────────────────────────────────

// Rating is a 0..5 confidence that a candidate captures a term in context.
type Rating int

const (
	// RatingNone marks an uninterpretable oracle reply. It carries no confidence.
	RatingNone Rating = 0
	// RatingExact is reserved for case-insensitive exact label matches.
	RatingExact Rating = 5
	// RatingAcceptThreshold is the midpoint; ratings strictly above it stop
	// the escalation.
	RatingAcceptThreshold Rating = 3
)

// Valid reports whether r lies in [0, 5].
func (r Rating) Valid() bool { return r >= RatingNone && r <= RatingExact }

// Accepted reports whether r is good enough to stop escalating.
func (r Rating) Accepted() bool { return r > RatingAcceptThreshold }

// ParseRating converts an oracle reply into a Rating. Surrounding whitespace is
// ignored, so "4\n" rates 4; a strict byte comparison would reject the
// trailing newlines completion APIs commonly emit. Anything other than a
// single digit 1..5 yields RatingNone.
func ParseRating(reply string) Rating {
	switch strings.TrimSpace(reply) {
	case "1":
		return 1
	case "2":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "5":
		return 5
	default:
		return RatingNone
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Strategy
// ─────────────────────────────────────────────────────────────────────────────

// Strategy is the refinement tier that produced a candidate.
type Strategy int

const (
	// StrategyNone is recorded on unresolved terms.
	StrategyNone Strategy = -1
	// StrategyDirect looks up the term as extracted.
	StrategyDirect Strategy = 0
	// StrategySimplified looks up an oracle-simplified phrasing.
	StrategySimplified Strategy = 1
	// StrategyGeneralized looks up an oracle-generalized phrasing.
	StrategyGeneralized Strategy = 2
)

// Strategies lists the tiers in escalation order.
var Strategies = []Strategy{StrategyDirect, StrategySimplified, StrategyGeneralized}

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategySimplified:
		return "simplified"
	case StrategyGeneralized:
		return "generalized"
	default:
		return "none"
	}
}

// MarshalText renders the strategy name in JSON and CSV output.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a strategy name. The British spelling is accepted.
func (s *Strategy) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "direct":
		*s = StrategyDirect
	case "simplified":
		*s = StrategySimplified
	case "generalized", "generalised":
		*s = StrategyGeneralized
	case "none", "":
		*s = StrategyNone
	default:
		return fmt.Errorf("coding: unknown strategy %q", string(text))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolution
// ─────────────────────────────────────────────────────────────────────────────

// TierOutcome records what one escalation tier did.
type TierOutcome struct {
	Strategy Strategy `json:"strategy"`
	// Query is the string sent to the terminology lookup; empty when the
	// refiner produced nothing.
	Query     string     `json:"query,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
	// Rated is false when the tier skipped rating (no candidate, or the same
	// entry as the current best).
	Rated  bool   `json:"rated"`
	Rating Rating `json:"rating"`
	// BestRating is the best rating known after this tier completed.
	BestRating Rating `json:"best_rating"`
	Replaced   bool   `json:"replaced"`
}

// Resolution is the outcome of resolving one term.
type Resolution struct {
	Term        string     `json:"term"`
	Candidate   *Candidate `json:"candidate,omitempty"`
	Rating      Rating     `json:"rating"`
	Strategy    Strategy   `json:"strategy"`
	RefinedTerm string     `json:"refined_term,omitempty"`
	Resolved    bool       `json:"resolved"`

	Trace []TierOutcome `json:"trace,omitempty"`
}

// Unresolved returns the explicit absent resolution for term.
func Unresolved(term string) Resolution {
	return Resolution{Term: term, Strategy: StrategyNone}
}

// ConceptID returns the matched code, or "" when unresolved.
func (r Resolution) ConceptID() string {
	if !r.Resolved || r.Candidate == nil {
		return ""
	}
	return r.Candidate.Code
}

// BestRatings returns the best-rating-so-far sequence across the trace.
func (r Resolution) BestRatings() []Rating {
	out := make([]Rating, 0, len(r.Trace))
	for _, t := range r.Trace {
		out = append(out, t.BestRating)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// LineResult
// ─────────────────────────────────────────────────────────────────────────────

// LineResult maps each term extracted from one line to its Resolution.
// Terms preserves extraction order without duplicates.
type LineResult struct {
	Line        string                `json:"line"`
	Terms       []string              `json:"terms"`
	Resolutions map[string]Resolution `json:"resolutions"`
	// Malformed is set when the extraction reply could not be parsed.
	Malformed bool `json:"malformed,omitempty"`
}

// NewLineResult returns an empty result for line.
func NewLineResult(line string) LineResult {
	return LineResult{Line: line, Terms: []string{}, Resolutions: map[string]Resolution{}}
}

// Ordered returns the resolutions in term order.
func (l LineResult) Ordered() []Resolution {
	out := make([]Resolution, 0, len(l.Terms))
	for _, t := range l.Terms {
		if r, ok := l.Resolutions[t]; ok {
			out = append(out, r)
		}
	}
	return out
}

// ResolvedCount returns the number of resolved terms.
func (l LineResult) ResolvedCount() int {
	n := 0
	for _, r := range l.Resolutions {
		if r.Resolved {
			n++
		}
	}
	return n
}
