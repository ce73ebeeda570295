package llm

import (
	"strings"

	"github.com/turtacn/ClinTerm-Intelligence/internal/config"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

// Backend names accepted by NewCompleter.
const (
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendOllama    = "ollama"
	// BackendLlama is kept as an alias of BackendOllama for older command lines.
	BackendLlama = "llama"
)

// OptionsFor resolves the per-provider settings of cfg into Options for the
// given backend. A non-empty cfg.Model overrides the provider's model.
func OptionsFor(backend string, cfg config.LLMConfig) Options {
	var p config.ProviderConfig
	switch config.NormalizeBackend(backend) {
	case BackendOpenAI:
		p = cfg.OpenAI
	case BackendAnthropic:
		p = cfg.Anthropic
	case BackendOllama, BackendLlama:
		p = cfg.Ollama
	}
	model := p.Model
	if cfg.Model != "" {
		model = cfg.Model
	}
	return Options{
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Model:       model,
		APIVersion:  p.APIVersion,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	}
}

// NewCompleter builds the backend named by cfg.Backend. Unknown backends and
// missing credentials are configuration errors and must stop startup.
func NewCompleter(cfg config.LLMConfig, logger logging.Logger) (Completer, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	backend := config.NormalizeBackend(cfg.Backend)
	opts := OptionsFor(backend, cfg)

	var (
		c   Completer
		err error
	)
	switch backend {
	case BackendOpenAI:
		c, err = NewOpenAIClient(opts, logger)
	case BackendAnthropic:
		c, err = NewAnthropicClient(opts, logger)
	case BackendOllama, BackendLlama:
		c, err = NewOllamaClient(opts, logger)
	case "":
		return nil, errors.New(errors.ErrCodeUnknownBackend, "no oracle backend selected")
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownBackend, "unsupported oracle backend %q (valid: %s)",
			cfg.Backend, strings.Join(config.SupportedBackends, ", "))
	}
	if err != nil {
		return nil, err
	}

	logger.Info("oracle backend ready", logging.String("backend", c.Name()), logging.String("model", opts.Model))
	return c, nil
}
