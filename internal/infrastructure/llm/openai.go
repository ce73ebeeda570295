package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/intelligence/prompts"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// OpenAIClient talks to the Chat Completions API.
type OpenAIClient struct {
	httpClient *http.Client
	opts       Options
	logger     logging.Logger
}

// NewOpenAIClient returns a client for opts. An API key is required.
func NewOpenAIClient(opts Options, logger logging.Logger) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "openai: api key is missing (llm.openai.api_key)")
	}
	if opts.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "openai: base url is missing")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &OpenAIClient{httpClient: opts.httpClient(), opts: opts, logger: logger.Named("openai")}, nil
}

func (c *OpenAIClient) Name() string { return "openai" }

// Complete implements Completer.
func (c *OpenAIClient) Complete(ctx context.Context, p prompts.Prompt) (string, error) {
	msgs := make([]openaiMessage, 0, len(p.Messages))
	for _, m := range p.Messages {
		role := m.Role
		switch role {
		case prompts.RoleSystem, prompts.RoleUser, prompts.RoleAssistant:
		default:
			role = prompts.RoleUser
		}
		msgs = append(msgs, openaiMessage{Role: role, Content: m.Content})
	}

	temp := c.opts.Temperature
	payload := openaiRequest{Model: c.opts.Model, Messages: msgs, Temperature: &temp}
	if n := c.opts.maxTokens(p); n > 0 {
		payload.MaxTokens = &n
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "openai: marshaling request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMRequestFailed, "openai: creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	c.logger.Debug("sending completion", logging.String("model", c.opts.Model), logging.String("kind", string(p.Kind)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMRequestFailed, "openai: request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMRequestFailed, "openai: reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrCodeLLMBadStatus, "openai: status %d: %s", resp.StatusCode, snippet(raw))
	}

	var out openaiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMDecodeFailed, "openai: decoding response")
	}
	if out.Error != nil {
		return "", errors.Newf(errors.ErrCodeLLMBadStatus, "openai: %s: %s", out.Error.Type, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New(errors.ErrCodeLLMEmptyCompletion, "openai: no choices returned")
	}
	return out.Choices[0].Message.Content, nil
}
