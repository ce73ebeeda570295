// Package llm implements the text-generation backends used as the extraction,
// refinement, and rating oracle. Callers depend on Completer only; the concrete
// backend is chosen once at startup by NewCompleter.
package llm

import (
	"context"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/turtacn/ClinTerm-Intelligence/internal/intelligence/prompts"
)

// Completer sends one chat prompt and returns the model's text reply.
//
// Implementations are safe for concurrent use and keep no state between
// calls. Errors are *errors.AppError values with an LLM_xxx code.
type Completer interface {
	Complete(ctx context.Context, p prompts.Prompt) (string, error)
	Name() string
}

// Options are the generation settings shared by every backend.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	APIVersion  string
	Temperature float64
	// MaxTokens applies when the prompt does not set its own limit.
	MaxTokens int
	// Timeout bounds the underlying HTTP client. Per-call deadlines come from
	// the caller's context.
	Timeout time.Duration

	HTTPClient *http.Client
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (o Options) maxTokens(p prompts.Prompt) int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return o.MaxTokens
}

const maxErrorBody = 512

// snippet shortens a response body for inclusion in an error message.
func snippet(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
