package enrich

import (
	"context"
	"fmt"

	"github.com/phobologic/crux/internal/config"
)

// New builds the enricher named by cfg.Provider and wraps it with the
// configured decorators. Each attempt is rate limited and timed out on its
// own; retries wrap the whole.
func New(ctx context.Context, cfg config.EnrichConfig) (Enricher, error) {
	var base Enricher
	switch cfg.Provider {
	case "", "mock":
		base = Mock{}
	case "openai":
		base = NewOpenAI(cfg.APIKey(), cfg.Model, cfg.BaseURL)
	case "gemini":
		g, err := NewGemini(ctx, cfg.APIKey(), cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		base = g
	case "ollama":
		o, err := NewOllama(cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		base = o
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownProvider, cfg.Provider)
	}

	e := WithTimeout(base, cfg.Timeout)
	e = WithRateLimit(e, cfg.RateLimit, cfg.Burst)
	e = WithRetry(e, RetryPolicy{Attempts: cfg.Attempts, Backoff: cfg.Backoff, MaxBackoff: 30 * cfg.Backoff})
	return e, nil
}
