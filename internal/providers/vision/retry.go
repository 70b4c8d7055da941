package vision

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Retrying re-runs a failed extraction up to attempts times with a linear
// backoff. attempts <= 1 disables retries.
type Retrying struct {
	next     Extractor
	attempts int
	backoff  time.Duration
	log      *zap.Logger
}

func NewRetrying(next Extractor, attempts int, backoff time.Duration, log *zap.Logger) Extractor {
	if attempts <= 1 {
		return next
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retrying{next: next, attempts: attempts, backoff: backoff, log: log}
}

func (r *Retrying) Name() string { return r.next.Name() }

func (r *Retrying) Extract(ctx context.Context, req Request) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		res, err := r.next.Extract(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrEmptyImage) || ctx.Err() != nil || attempt == r.attempts {
			break
		}

		r.log.Warn("extraction attempt failed",
			zap.String("extractor", r.next.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return Result{}, lastErr
}
