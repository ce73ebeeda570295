package client

import "context"

// EvaluationsClient scores prediction tables.
type EvaluationsClient struct {
	client *Client
}

// EvaluateRequest carries note_id,concept_id CSV tables as text. Remap is an
// optional source_id,target_id table applied to the ground truth.
type EvaluateRequest struct {
	GroundTruth string `json:"ground_truth"`
	Predictions string `json:"predictions"`
	Remap       string `json:"remap,omitempty"`
	Archive     bool   `json:"archive,omitempty"`
}

// Evaluate scores req.Predictions against req.GroundTruth.
func (c *EvaluationsClient) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluationReport, error) {
	var out EvaluationReport
	if err := c.client.post(ctx, "/api/v1/evaluations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
