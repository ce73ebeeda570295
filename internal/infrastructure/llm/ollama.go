package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/intelligence/prompts"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// OllamaClient runs a locally served model (llama and friends) through the
// /api/generate endpoint. Chat prompts are flattened into a single text.
type OllamaClient struct {
	httpClient *http.Client
	opts       Options
	logger     logging.Logger
}

// NewOllamaClient returns a client for opts. No credentials are needed.
func NewOllamaClient(opts Options, logger logging.Logger) (*OllamaClient, error) {
	if opts.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "ollama: base url is missing")
	}
	if opts.Model == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "ollama: model is missing")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &OllamaClient{httpClient: opts.httpClient(), opts: opts, logger: logger.Named("ollama")}, nil
}

func (c *OllamaClient) Name() string { return "ollama" }

// Complete implements Completer.
func (c *OllamaClient) Complete(ctx context.Context, p prompts.Prompt) (string, error) {
	payload := ollamaRequest{
		Model:  c.opts.Model,
		Prompt: prompts.Flatten(p),
		Stream: false,
		Options: ollamaOptions{
			Temperature: c.opts.Temperature,
			NumPredict:  c.opts.maxTokens(p),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "ollama: marshaling request")
	}
	url := strings.TrimRight(c.opts.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMRequestFailed, "ollama: creating request")
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("sending completion", logging.String("model", c.opts.Model), logging.String("kind", string(p.Kind)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMRequestFailed, "ollama: request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMRequestFailed, "ollama: reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrCodeLLMBadStatus, "ollama: status %d: %s", resp.StatusCode, snippet(raw))
	}

	var out ollamaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMDecodeFailed, "ollama: decoding response")
	}
	if out.Error != "" {
		return "", errors.Newf(errors.ErrCodeLLMBadStatus, "ollama: %s", out.Error)
	}
	if out.Response == "" {
		return "", errors.New(errors.ErrCodeLLMEmptyCompletion, "ollama: empty response")
	}
	return out.Response, nil
}
