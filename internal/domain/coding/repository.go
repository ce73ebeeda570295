package coding

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ResolutionRecord is the persisted form of one resolved term occurrence.
type ResolutionRecord struct {
	ID          uuid.UUID `json:"id"`
	RunID       uuid.UUID `json:"run_id"`
	NoteID      string    `json:"note_id"`
	LineNo      int       `json:"line_no"`
	Term        string    `json:"term"`
	ConceptID   string    `json:"concept_id"`
	Display     string    `json:"display"`
	Rating      Rating    `json:"rating"`
	Strategy    Strategy  `json:"strategy"`
	RefinedTerm string    `json:"refined_term,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewResolutionRecord flattens a Resolution for storage. Unresolved terms keep
// an empty ConceptID.
func NewResolutionRecord(runID uuid.UUID, noteID string, lineNo int, res Resolution) ResolutionRecord {
	rec := ResolutionRecord{
		ID:          uuid.New(),
		RunID:       runID,
		NoteID:      noteID,
		LineNo:      lineNo,
		Term:        res.Term,
		ConceptID:   res.ConceptID(),
		Rating:      res.Rating,
		Strategy:    res.Strategy,
		RefinedTerm: res.RefinedTerm,
		CreatedAt:   time.Now().UTC(),
	}
	if res.Resolved && res.Candidate != nil {
		rec.Display = res.Candidate.Display
	}
	return rec
}

// ResolutionRepository persists resolution records.
type ResolutionRepository interface {
	// SaveBatch stores records atomically. An empty batch is a no-op.
	SaveBatch(ctx context.Context, records []ResolutionRecord) error

	// ListByRun returns every record of a run ordered by note, line, and term.
	ListByRun(ctx context.Context, runID uuid.UUID) ([]ResolutionRecord, error)

	// ListByNote returns the records of one note across all runs, newest first.
	ListByNote(ctx context.Context, noteID string) ([]ResolutionRecord, error)
}
