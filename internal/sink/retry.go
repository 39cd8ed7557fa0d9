package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rei-strategy/bots/internal/observability"
	"github.com/rei-strategy/bots/internal/types"
)

// ReauthFunc re-establishes the sink's authentication after a failed write.
type ReauthFunc func(ctx context.Context) error

// Retrying retries a failed Append exactly once after invoking the re-auth
// hook. A second failure stops the run: a sink that rejects writes twice in
// a row is treated as gone, not flaky.
type Retrying struct {
	inner   Sink
	reauth  ReauthFunc
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRetrying wraps a sink with the single-retry policy.
func NewRetrying(inner Sink, reauth ReauthFunc, metrics *observability.Metrics, logger *slog.Logger) *Retrying {
	return &Retrying{
		inner:   inner,
		reauth:  reauth,
		metrics: metrics,
		logger:  logger.With("component", "sink_retry"),
	}
}

func (r *Retrying) Append(ctx context.Context, rec Record) error {
	first := r.inner.Append(ctx, rec)
	if first == nil {
		return nil
	}

	r.metrics.AppendRetries.Add(1)
	r.logger.Warn("append failed, re-authenticating", "property", rec.Property, "error", first)
	if r.reauth != nil {
		if err := r.reauth(ctx); err != nil {
			return fmt.Errorf("%w: re-auth: %v (append: %v)", types.ErrSinkExhausted, err, first)
		}
	}

	if err := r.inner.Append(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSinkExhausted, err)
	}
	r.logger.Info("append succeeded after re-auth", "property", rec.Property)
	return nil
}

func (r *Retrying) Rows(ctx context.Context) ([]Record, error) { return r.inner.Rows(ctx) }

func (r *Retrying) LastForSource(ctx context.Context, source string) (Record, bool, error) {
	return r.inner.LastForSource(ctx, source)
}

func (r *Retrying) Update(ctx context.Context, match, updated Record) error {
	return r.inner.Update(ctx, match, updated)
}

func (r *Retrying) Close() error { return r.inner.Close() }
