package sink

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled rate-limits Append calls against a backend's write quota. Reads
// and updates pass through untouched.
type Throttled struct {
	inner   Sink
	limiter *rate.Limiter
}

// NewThrottled wraps a sink with an appends-per-second cap.
func NewThrottled(inner Sink, perSecond float64) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (t *Throttled) Append(ctx context.Context, rec Record) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.inner.Append(ctx, rec)
}

func (t *Throttled) Rows(ctx context.Context) ([]Record, error) { return t.inner.Rows(ctx) }

func (t *Throttled) LastForSource(ctx context.Context, source string) (Record, bool, error) {
	return t.inner.LastForSource(ctx, source)
}

func (t *Throttled) Update(ctx context.Context, match, updated Record) error {
	return t.inner.Update(ctx, match, updated)
}

func (t *Throttled) Close() error { return t.inner.Close() }
