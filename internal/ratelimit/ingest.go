package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/meterscan/internal/config"
)

const keyIngestCustomer = "meterscan:ingest:customer:%s"

// IngestLimiter throttles photo submissions per customer. It never decides
// whether a reading may exist; concurrent submissions for one meter all
// reach the store. A nil or disabled limiter allows everything.
type IngestLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewIngestLimiter(cfg config.Config, client *redis.Client) *IngestLimiter {
	if client == nil {
		return nil
	}
	rate := cfg.Ingest.RatePerSecond
	burst := cfg.Ingest.Burst
	if rate <= 0 || burst <= 0 {
		return nil
	}
	return &IngestLimiter{
		bucket: NewTokenBucket(client),
		rate:   rate,
		burst:  burst,
	}
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *IngestLimiter) AllowCustomer(ctx context.Context, customerCode string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyIngestCustomer, normalizeKeyPart(customerCode))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

func normalizeKeyPart(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), ":", "_")
}
