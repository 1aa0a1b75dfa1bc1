package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyLimiter caps simultaneously in-flight operations per key.
// Semaphores are created lazily on first use and reused for the process
// lifetime. Waiters are admitted in FIFO-ish order; beyond "eventually
// admitted" no ordering is guaranteed.
type ConcurrencyLimiter struct {
	mu            sync.Mutex
	sems          map[string]*semaphore.Weighted
	maxConcurrent int64
}

// NewConcurrencyLimiter creates a limiter allowing maxConcurrent in-flight
// operations per key.
func NewConcurrencyLimiter(maxConcurrent int) *ConcurrencyLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &ConcurrencyLimiter{
		sems:          make(map[string]*semaphore.Weighted),
		maxConcurrent: int64(maxConcurrent),
	}
}

func (c *ConcurrencyLimiter) semaphoreFor(key string) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sems[key]
	if !ok {
		s = semaphore.NewWeighted(c.maxConcurrent)
		c.sems[key] = s
	}
	return s
}

// Acquire blocks until a slot is free for the URL's key and returns the
// release function. Release must be called on every exit path.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context, rawURL string) (func(), error) {
	return c.AcquireKey(ctx, BucketKey(rawURL))
}

// AcquireKey is Acquire for callers that already hold a bucket key.
func (c *ConcurrencyLimiter) AcquireKey(ctx context.Context, key string) (func(), error) {
	if key == "" {
		key = "unknown"
	}
	s := c.semaphoreFor(key)
	if err := s.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire slot for %s: %w", key, err)
	}
	return func() { s.Release(1) }, nil
}
