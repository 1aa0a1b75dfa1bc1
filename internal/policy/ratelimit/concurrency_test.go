package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConcurrencyLimiter_CapsPerKey(t *testing.T) {
	t.Parallel()

	c := NewConcurrencyLimiter(2)
	ctx := context.Background()

	var inFlight, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := c.Acquire(ctx, "https://example.com/feed")
			require.NoError(t, err)
			defer release()

			n := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestConcurrencyLimiter_KeysIndependent(t *testing.T) {
	t.Parallel()

	c := NewConcurrencyLimiter(1)
	ctx := context.Background()

	releaseA, err := c.Acquire(ctx, "https://a.com/")
	require.NoError(t, err)
	defer releaseA()

	// A held slot on a.com must not block b.com.
	done := make(chan struct{})
	go func() {
		releaseB, err := c.Acquire(ctx, "https://b.com/")
		require.NoError(t, err)
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire on independent key blocked")
	}
}

func TestConcurrencyLimiter_ContextCancel(t *testing.T) {
	t.Parallel()

	c := NewConcurrencyLimiter(1)
	release, err := c.Acquire(context.Background(), "https://x.com/")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctx, "https://x.com/")
	require.Error(t, err)
}
