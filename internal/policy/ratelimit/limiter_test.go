package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newswire/harvester/internal/telemetry"
)

func TestLimiter_BurstThenWait(t *testing.T) {
	telemetry.Init()

	// rate=2/s, burst=5: five immediate acquires, the sixth waits ~0.5s.
	l := NewLimiter(Config{RequestsPerSecond: 2, Burst: 5})
	ctx := context.Background()
	url := "https://example.com/feed.xml"

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, url))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond, "burst should not block")

	start = time.Now()
	require.NoError(t, l.Wait(ctx, url))
	waited := time.Since(start)
	require.GreaterOrEqual(t, waited, 400*time.Millisecond, "sixth acquire should wait ~0.5s")
	require.Less(t, waited, 900*time.Millisecond)
}

func TestLimiter_KeysIndependent(t *testing.T) {
	telemetry.Init()

	l := NewLimiter(Config{RequestsPerSecond: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.com/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "b.com must not be throttled by a.com")
}

func TestLimiter_CurrentTokensBounded(t *testing.T) {
	telemetry.Init()

	l := NewLimiter(Config{RequestsPerSecond: 2, Burst: 5})
	url := "https://tokens.example.com/"

	// Unused bucket starts at full burst.
	tokens := l.CurrentTokens(url)
	require.InDelta(t, 5.0, tokens, 0.1)

	require.NoError(t, l.Wait(context.Background(), url))
	tokens = l.CurrentTokens(url)
	require.GreaterOrEqual(t, tokens, 0.0)
	require.LessOrEqual(t, tokens, 5.0)
}

func TestLimiter_ContextCancel(t *testing.T) {
	telemetry.Init()

	l := NewLimiter(Config{RequestsPerSecond: 0.1, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "https://slow.example.com/"))
	err := l.Wait(ctx, "https://slow.example.com/")
	require.Error(t, err, "second acquire needs 10s, context allows 50ms")
}

func TestBucketKey(t *testing.T) {
	t.Parallel()
	require.Equal(t, "example.com", BucketKey("https://example.com/feed"))
	require.Equal(t, "unknown", BucketKey("::not-a-url::"))
	require.Equal(t, "unknown", BucketKey(""))
}
