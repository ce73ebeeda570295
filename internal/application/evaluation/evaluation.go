// Package evaluation scores predicted concept codes against ground truth.
// Scores are computed per note over distinct concept sets and macro-averaged
// across the notes of the ground truth.
package evaluation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

const (
	ColumnNoteID    = "note_id"
	ColumnConceptID = "concept_id"
)

// Row is one (note, concept) pair.
type Row struct {
	NoteID    string
	ConceptID string
}

// CodeTable is an ordered list of rows.
type CodeTable []Row

// Notes returns the distinct note IDs in first-seen order.
func (t CodeTable) Notes() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range t {
		if _, ok := seen[r.NoteID]; !ok {
			seen[r.NoteID] = struct{}{}
			out = append(out, r.NoteID)
		}
	}
	return out
}

// conceptsByNote groups distinct concepts per note.
func (t CodeTable) conceptsByNote() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})
	for _, r := range t {
		set, ok := out[r.NoteID]
		if !ok {
			set = make(map[string]struct{})
			out[r.NoteID] = set
		}
		set[r.ConceptID] = struct{}{}
	}
	return out
}

// LoadCodeTable reads a CSV with a header that names note_id and concept_id
// columns. Other columns are ignored and column order is free. Rows with an
// empty concept_id are skipped.
func LoadCodeTable(r io.Reader) (CodeTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeEvalInputInvalid, "csv is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEvalInputInvalid, "failed to read csv header")
	}

	noteCol, conceptCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case ColumnNoteID:
			noteCol = i
		case ColumnConceptID:
			conceptCol = i
		}
	}
	if noteCol < 0 || conceptCol < 0 {
		return nil, errors.Newf(errors.ErrCodeValidation, "csv header must contain %q and %q, got %v", ColumnNoteID, ColumnConceptID, header)
	}

	table := make(CodeTable, 0)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeEvalInputInvalid, "failed to read csv line %d", line)
		}
		if noteCol >= len(rec) || conceptCol >= len(rec) {
			return nil, errors.Newf(errors.ErrCodeEvalInputInvalid, "csv line %d has %d fields", line, len(rec))
		}
		row := Row{NoteID: strings.TrimSpace(rec[noteCol]), ConceptID: strings.TrimSpace(rec[conceptCol])}
		if row.ConceptID == "" {
			continue
		}
		table = append(table, row)
	}
	return table, nil
}

// LoadMapping reads a two-column source_id,target_id CSV. A header row is
// detected and skipped when its first cell is not a concept ID.
func LoadMapping(r io.Reader) (map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	mapping := make(map[string]string)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeEvalInputInvalid, "failed to read mapping line %d", line)
		}
		if len(rec) < 2 {
			return nil, errors.Newf(errors.ErrCodeEvalInputInvalid, "mapping line %d needs two columns", line)
		}
		src, dst := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		if line == 1 && !isConceptID(src) {
			continue
		}
		if src != "" && dst != "" {
			mapping[src] = dst
		}
	}
	return mapping, nil
}

func isConceptID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Remap returns a copy of table with concept IDs rewritten through mapping.
// Unmapped IDs are kept.
func Remap(table CodeTable, mapping map[string]string) CodeTable {
	out := make(CodeTable, len(table))
	for i, r := range table {
		if to, ok := mapping[r.ConceptID]; ok {
			r.ConceptID = to
		}
		out[i] = r
	}
	return out
}

// NoteScore holds the scores of one note.
type NoteScore struct {
	NoteID    string  `json:"note_id"`
	Truth     int     `json:"truth"`
	Predicted int     `json:"predicted"`
	Correct   int     `json:"correct"`
	IOU       float64 `json:"iou"`
	Precision float64 `json:"precision"`
}

// Report is the outcome of Evaluate.
type Report struct {
	Notes          []NoteScore `json:"notes"`
	MacroIOU       float64     `json:"macro_iou"`
	MacroPrecision float64     `json:"macro_precision"`
	TruthRows      int         `json:"truth_rows"`
	PredictedRows  int         `json:"predicted_rows"`
}

// Evaluate scores predicted against truth. Every note of truth is scored in
// first-seen order; predictions for notes absent from truth are ignored.
// IOU is |T∩P| / |T∪P| (1 when both sets are empty) and precision is
// |T∩P| / |P| (0 when P is empty).
func Evaluate(truth, predicted CodeTable) (*Report, error) {
	notes := truth.Notes()
	if len(notes) == 0 {
		return nil, errors.New(errors.ErrCodeEvalEmptyTruth, "ground truth has no rows")
	}

	t := truth.conceptsByNote()
	p := predicted.conceptsByNote()

	report := &Report{
		Notes:         make([]NoteScore, 0, len(notes)),
		TruthRows:     len(truth),
		PredictedRows: len(predicted),
	}
	var sumIOU, sumPrecision float64
	for _, id := range notes {
		score := scoreNote(id, t[id], p[id])
		report.Notes = append(report.Notes, score)
		sumIOU += score.IOU
		sumPrecision += score.Precision
	}
	report.MacroIOU = sumIOU / float64(len(notes))
	report.MacroPrecision = sumPrecision / float64(len(notes))
	return report, nil
}

func scoreNote(id string, truth, pred map[string]struct{}) NoteScore {
	s := NoteScore{NoteID: id, Truth: len(truth), Predicted: len(pred)}
	for c := range pred {
		if _, ok := truth[c]; ok {
			s.Correct++
		}
	}
	union := s.Truth + s.Predicted - s.Correct
	if union == 0 {
		s.IOU = 1
	} else {
		s.IOU = float64(s.Correct) / float64(union)
	}
	if s.Predicted > 0 {
		s.Precision = float64(s.Correct) / float64(s.Predicted)
	}
	return s
}

// Record publishes the report's macro scores as gauges.
func (r *Report) Record(metrics *prometheus.AppMetrics) {
	prometheus.RecordEvaluation(metrics, r.MacroIOU, r.MacroPrecision, r.TruthRows, r.PredictedRows)
}

// Summary renders the one-line result printed by the CLI.
func (r *Report) Summary() string {
	return fmt.Sprintf("macro_iou=%.4f macro_precision=%.4f notes=%d", r.MacroIOU, r.MacroPrecision, len(r.Notes))
}
