package term_resolver

import (
	"encoding/json"
	"strings"
)

// Reasons an extraction reply is malformed.
const (
	ReasonNoArray     = "no array in reply"
	ReasonUnbalanced  = "unbalanced array"
	ReasonDecode      = "array is not a list of objects"
	ReasonMissingText = "entity without text field"
)

// ExtractionResult is the outcome of parsing an extraction reply. Callers must
// check Malformed; Terms is empty when it is set.
type ExtractionResult struct {
	Terms     []string
	Malformed bool
	Reason    string
}

func malformed(reason string) ExtractionResult {
	return ExtractionResult{Terms: []string{}, Malformed: true, Reason: reason}
}

type extractedEntity struct {
	Text *string `json:"text"`
}

// ParseExtraction reads the entity list out of a free-form oracle reply. The
// first balanced bracketed substring is decoded as a JSON array of objects
// each carrying a string "text". Terms are trimmed and deduplicated in order
// of first appearance; blank terms are dropped.
func ParseExtraction(reply string) ExtractionResult {
	raw, reason := firstBalancedArray(reply)
	if reason != "" {
		return malformed(reason)
	}

	var entities []extractedEntity
	if err := json.Unmarshal([]byte(raw), &entities); err != nil {
		return malformed(ReasonDecode)
	}

	terms := make([]string, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if e.Text == nil {
			return malformed(ReasonMissingText)
		}
		t := strings.TrimSpace(*e.Text)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return ExtractionResult{Terms: terms}
}

// firstBalancedArray returns the substring from the first '[' to its matching
// ']'. Brackets inside JSON string literals are ignored.
func firstBalancedArray(s string) (string, string) {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return "", ReasonNoArray
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1], ""
			}
		}
	}
	return "", ReasonUnbalanced
}
