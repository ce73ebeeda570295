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

const defaultAnthropicMaxTokens = 300

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Error      *anthropicError         `json:"error,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient talks to the Messages API.
type AnthropicClient struct {
	httpClient *http.Client
	opts       Options
	logger     logging.Logger
}

// NewAnthropicClient returns a client for opts. An API key is required.
func NewAnthropicClient(opts Options, logger logging.Logger) (*AnthropicClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "anthropic: api key is missing (llm.anthropic.api_key)")
	}
	if opts.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "anthropic: base url is missing")
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "2023-06-01"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AnthropicClient{httpClient: opts.httpClient(), opts: opts, logger: logger.Named("anthropic")}, nil
}

func (c *AnthropicClient) Name() string { return "anthropic" }

// toAnthropicMessages moves system text out of the turn list and merges
// consecutive turns of the same role, which the API rejects.
func toAnthropicMessages(p prompts.Prompt) (string, []anthropicMessage) {
	var msgs []anthropicMessage
	for _, m := range p.Conversation() {
		role := prompts.RoleUser
		if m.Role == prompts.RoleAssistant {
			role = prompts.RoleAssistant
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content += "\n\n" + m.Content
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: role, Content: m.Content})
	}
	return p.System(), msgs
}

// Complete implements Completer.
func (c *AnthropicClient) Complete(ctx context.Context, p prompts.Prompt) (string, error) {
	system, msgs := toAnthropicMessages(p)
	if len(msgs) == 0 {
		return "", errors.New(errors.ErrCodeBadRequest, "anthropic: prompt has no user message")
	}

	maxTokens := c.opts.maxTokens(p)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	temp := c.opts.Temperature
	payload := anthropicRequest{
		Model:       c.opts.Model,
		Messages:    msgs,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: &temp,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "anthropic: marshaling request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMRequestFailed, "anthropic: creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.opts.APIKey)
	req.Header.Set("anthropic-version", c.opts.APIVersion)

	c.logger.Debug("sending completion", logging.String("model", c.opts.Model), logging.String("kind", string(p.Kind)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMRequestFailed, "anthropic: request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMRequestFailed, "anthropic: reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrCodeLLMBadStatus, "anthropic: status %d: %s", resp.StatusCode, snippet(raw))
	}

	var out anthropicResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMDecodeFailed, "anthropic: decoding response")
	}
	if out.Error != nil {
		return "", errors.Newf(errors.ErrCodeLLMBadStatus, "anthropic: %s: %s", out.Error.Type, out.Error.Message)
	}

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New(errors.ErrCodeLLMEmptyCompletion, "anthropic: no text content returned")
	}
	return sb.String(), nil
}
