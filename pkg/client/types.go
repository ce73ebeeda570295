package client

import "time"

// Candidate is a terminology concept.
type Candidate struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// TierOutcome records one escalation step of a resolution.
type TierOutcome struct {
	Strategy   string     `json:"strategy"`
	Query      string     `json:"query,omitempty"`
	Candidate  *Candidate `json:"candidate,omitempty"`
	Rated      bool       `json:"rated"`
	Rating     int        `json:"rating"`
	BestRating int        `json:"best_rating"`
	Replaced   bool       `json:"replaced"`
}

// Resolution is the outcome of resolving one term. Strategy is one of
// "direct", "simplified", "generalized" or "none".
type Resolution struct {
	Term        string        `json:"term"`
	Candidate   *Candidate    `json:"candidate,omitempty"`
	Rating      int           `json:"rating"`
	Strategy    string        `json:"strategy"`
	RefinedTerm string        `json:"refined_term,omitempty"`
	Resolved    bool          `json:"resolved"`
	Trace       []TierOutcome `json:"trace,omitempty"`
}

// ConceptID returns the resolved concept code, or "".
func (r Resolution) ConceptID() string {
	if !r.Resolved || r.Candidate == nil {
		return ""
	}
	return r.Candidate.Code
}

// LineResult is the outcome of processing one line.
type LineResult struct {
	Line        string                `json:"line"`
	Terms       []string              `json:"terms"`
	Resolutions map[string]Resolution `json:"resolutions"`
	Malformed   bool                  `json:"malformed,omitempty"`
}

// ResolutionRecord is one stored term resolution.
type ResolutionRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	NoteID      string    `json:"note_id"`
	LineNo      int       `json:"line_no"`
	Term        string    `json:"term"`
	ConceptID   string    `json:"concept_id"`
	Display     string    `json:"display"`
	Rating      int       `json:"rating"`
	Strategy    string    `json:"strategy"`
	RefinedTerm string    `json:"refined_term,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LineOutcome pairs a line result with its 1-based line number.
type LineOutcome struct {
	LineNo int        `json:"line_no"`
	Result LineResult `json:"result"`
}

// NoteResult is the outcome of coding a note.
type NoteResult struct {
	RunID     string             `json:"run_id"`
	NoteID    string             `json:"note_id"`
	Lines     []LineOutcome      `json:"lines"`
	Records   []ResolutionRecord `json:"records"`
	Resolved  int                `json:"resolved"`
	Malformed int                `json:"malformed"`
	Elapsed   time.Duration      `json:"elapsed"`
}

// NoteScore is the evaluation score of one note.
type NoteScore struct {
	NoteID    string  `json:"note_id"`
	Truth     int     `json:"truth"`
	Predicted int     `json:"predicted"`
	Correct   int     `json:"correct"`
	IOU       float64 `json:"iou"`
	Precision float64 `json:"precision"`
}

// ArchivedObject locates an archived report.
type ArchivedObject struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// EvaluationReport is the macro-averaged evaluation of a prediction table.
type EvaluationReport struct {
	Notes          []NoteScore     `json:"notes"`
	MacroIOU       float64         `json:"macro_iou"`
	MacroPrecision float64         `json:"macro_precision"`
	TruthRows      int             `json:"truth_rows"`
	PredictedRows  int             `json:"predicted_rows"`
	Archived       *ArchivedObject `json:"archived,omitempty"`
}
