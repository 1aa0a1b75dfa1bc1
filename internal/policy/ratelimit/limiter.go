// Package ratelimit implements per-key token bucket rate limiting and
// per-key concurrency capping for the fetch pipeline.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/newswire/harvester/internal/telemetry"
)

// Limiter manages per-key token buckets. Keys default to the URL hostname;
// unparseable URLs share the "unknown" bucket. A key's first use starts the
// bucket at full burst capacity.
type Limiter struct {
	mu           sync.Mutex
	buckets      map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// NewLimiter creates a Limiter.
func NewLimiter(cfg Config) *Limiter {
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets:      make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// BucketKey derives the bucket key for a URL: the hostname, or "unknown"
// for malformed input. It is a pure function.
func BucketKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.buckets[key] = b
	}
	return b
}

// Wait blocks until one token is available for the URL's bucket, respecting
// the context. Buckets for different keys are fully independent.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	return l.WaitN(ctx, rawURL, 1)
}

// WaitN blocks until n tokens are available, then debits them.
func (l *Limiter) WaitN(ctx context.Context, rawURL string, n int) error {
	return l.waitKeyN(ctx, BucketKey(rawURL), n)
}

// WaitKey is Wait for callers that already hold a bucket key, e.g. sources
// configured with an explicit rate_key.
func (l *Limiter) WaitKey(ctx context.Context, key string) error {
	if key == "" {
		key = "unknown"
	}
	return l.waitKeyN(ctx, key, 1)
}

func (l *Limiter) waitKeyN(ctx context.Context, key string, n int) error {
	b := l.bucket(key)

	start := time.Now()
	if err := b.WaitN(ctx, n); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", key, err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		telemetry.ObserveRateLimitDelay(key, delay)
	}
	return nil
}

// CurrentTokens returns a point-in-time estimate of the tokens available in
// the URL's bucket without consuming any.
func (l *Limiter) CurrentTokens(rawURL string) float64 {
	return l.bucket(BucketKey(rawURL)).Tokens()
}
