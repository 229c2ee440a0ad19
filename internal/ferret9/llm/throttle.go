package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled limits how fast calls reach the wrapped Generator, across all
// users. Callers block until a token is available or ctx is done.
type Throttled struct {
	next    Generator
	limiter *rate.Limiter
}

var _ Generator = (*Throttled)(nil)

// NewThrottled allows perMinute calls per minute with a burst of burst.
// A non-positive perMinute disables throttling.
func NewThrottled(next Generator, perMinute, burst int) *Throttled {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Name reports the wrapped backend.
func (t *Throttled) Name() string { return t.next.Name() }

// Generate waits for the limiter, then delegates.
func (t *Throttled) Generate(ctx context.Context, req Request) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", newGenerationError(t.next.Name(), 0, err)
	}
	return t.next.Generate(ctx, req)
}
