package enrich

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/phobologic/crux/internal/logging"
)

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the wait before the second try; it doubles after each
	// failure up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// WithRetry retries failed enrichments with exponential backoff. Context
// cancellation stops retrying immediately.
func WithRetry(next Enricher, p RetryPolicy) Enricher {
	if p.Attempts <= 1 {
		return next
	}
	return Func(func(ctx context.Context, req Request) (string, error) {
		wait := p.Backoff
		var lastErr error
		for attempt := 1; attempt <= p.Attempts; attempt++ {
			text, err := next.Enrich(ctx, req)
			if err == nil {
				return text, nil
			}
			lastErr = err
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || attempt == p.Attempts {
				break
			}

			logging.FromContext(ctx).Warn("enrichment failed, retrying",
				"id", req.ID, "attempt", attempt, "wait", wait, "error", err)
			if err := sleep(ctx, wait); err != nil {
				return "", err
			}
			wait *= 2
			if p.MaxBackoff > 0 && wait > p.MaxBackoff {
				wait = p.MaxBackoff
			}
		}
		return "", lastErr
	})
}

// WithRateLimit allows at most rps enrichments per second with the given
// burst. rps <= 0 disables limiting.
func WithRateLimit(next Enricher, rps float64, burst int) Enricher {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return Func(func(ctx context.Context, req Request) (string, error) {
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}
		return next.Enrich(ctx, req)
	})
}

// WithTimeout bounds every enrichment call by d. d <= 0 disables it.
func WithTimeout(next Enricher, d time.Duration) Enricher {
	if d <= 0 {
		return next
	}
	return Func(func(ctx context.Context, req Request) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next.Enrich(ctx, req)
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
