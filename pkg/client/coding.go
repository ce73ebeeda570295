package client

import (
	"context"
	"net/url"
	"strings"

	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// CodingClient covers line processing, term resolution and note coding.
type CodingClient struct {
	client *Client
}

// ProcessLine extracts and resolves the clinical terms of one line.
func (c *CodingClient) ProcessLine(ctx context.Context, text string) (*LineResult, error) {
	var out LineResult
	if err := c.client.post(ctx, "/api/v1/lines/process", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveTerm maps one term to a concept. lineContext may be empty.
func (c *CodingClient) ResolveTerm(ctx context.Context, term, lineContext string) (*Resolution, error) {
	if strings.TrimSpace(term) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "term is required")
	}
	body := map[string]string{"term": term, "context": lineContext}
	var out Resolution
	if err := c.client.post(ctx, "/api/v1/terms/resolve", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessNote codes every line of a note.
func (c *CodingClient) ProcessNote(ctx context.Context, noteID string, lines []string) (*NoteResult, error) {
	if strings.TrimSpace(noteID) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "note_id is required")
	}
	body := map[string]interface{}{"note_id": noteID, "lines": lines}
	var out NoteResult
	if err := c.client.post(ctx, "/api/v1/notes", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListResolutions returns the stored records of a note.
func (c *CodingClient) ListResolutions(ctx context.Context, noteID string) ([]ResolutionRecord, error) {
	if strings.TrimSpace(noteID) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "note_id is required")
	}
	var out struct {
		Records []ResolutionRecord `json:"records"`
	}
	if err := c.client.get(ctx, "/api/v1/notes/"+url.PathEscape(noteID)+"/resolutions", &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}
