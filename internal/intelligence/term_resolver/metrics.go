package term_resolver

import (
	"time"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
)

// Lookup outcomes reported to Metrics.
const (
	LookupSkipped = "skipped"
	LookupHit     = "hit"
	LookupEmpty   = "empty"
	LookupError   = "error"
)

// Extraction outcomes reported to Metrics.
const (
	ExtractionOK        = "ok"
	ExtractionMalformed = "malformed"
	ExtractionError     = "error"
)

// Metrics records resolver telemetry.
type Metrics interface {
	RecordLookup(outcome string, elapsed time.Duration)
	RecordRating(rating coding.Rating, oracleCalled bool)
	RecordResolution(res coding.Resolution)
	RecordExtraction(outcome string, terms int)
}

type noopMetrics struct{}

func (noopMetrics) RecordLookup(string, time.Duration) {}
func (noopMetrics) RecordRating(coding.Rating, bool) {}
func (noopMetrics) RecordResolution(coding.Resolution) {}
func (noopMetrics) RecordExtraction(string, int) {}
