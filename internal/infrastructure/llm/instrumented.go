package llm

import (
	"context"
	"time"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/intelligence/prompts"
)

// CompletionObserver receives one observation per completion call.
type CompletionObserver interface {
	ObserveCompletion(backend, kind string, elapsed time.Duration, err error)
}

// InstrumentedCompleter decorates a Completer with metrics and failure logs.
type InstrumentedCompleter struct {
	next     Completer
	observer CompletionObserver
	logger   logging.Logger
}

// NewInstrumentedCompleter wraps next. A nil observer disables metrics.
func NewInstrumentedCompleter(next Completer, observer CompletionObserver, logger logging.Logger) *InstrumentedCompleter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &InstrumentedCompleter{next: next, observer: observer, logger: logger}
}

func (c *InstrumentedCompleter) Name() string { return c.next.Name() }

// Complete implements Completer.
func (c *InstrumentedCompleter) Complete(ctx context.Context, p prompts.Prompt) (string, error) {
	start := time.Now()
	out, err := c.next.Complete(ctx, p)
	elapsed := time.Since(start)

	if c.observer != nil {
		c.observer.ObserveCompletion(c.next.Name(), string(p.Kind), elapsed, err)
	}
	if err != nil {
		c.logger.WithContext(ctx).Warn("completion failed",
			logging.String("backend", c.next.Name()),
			logging.String("kind", string(p.Kind)),
			logging.Duration("elapsed", elapsed),
			logging.Err(err))
	}
	return out, err
}
