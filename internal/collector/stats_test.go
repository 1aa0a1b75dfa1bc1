package collector

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newswire/harvester/internal/feed"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTracker_RunningAverages(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	tr := NewTracker(clock)

	tr.RecordSuccess("hn", 100*time.Millisecond, 10)
	tr.RecordSuccess("hn", 300*time.Millisecond, 20)

	s, ok := tr.Get("hn")
	require.True(t, ok)
	require.Equal(t, 2, s.SuccessCount)
	require.Equal(t, 0, s.FailureCount)
	require.Equal(t, 200*time.Millisecond, s.AvgLatency)
	require.InDelta(t, 15.0, s.AvgItems, 0.001)
	require.Equal(t, clock.Now(), s.LastSuccess)
}

func TestTracker_FailuresAffectLatencyNotItems(t *testing.T) {
	t.Parallel()

	tr := NewTracker(newFakeClock())
	tr.RecordSuccess("src", 100*time.Millisecond, 8)
	tr.RecordFailure("src", 400*time.Millisecond)

	s, ok := tr.Get("src")
	require.True(t, ok)
	require.Equal(t, 1, s.SuccessCount)
	require.Equal(t, 1, s.FailureCount)
	require.Equal(t, 250*time.Millisecond, s.AvgLatency, "latency averages over all attempts")
	require.InDelta(t, 8.0, s.AvgItems, 0.001, "item average only counts successes")
	require.InDelta(t, 0.5, s.SuccessRate(), 0.001)
}

func TestTracker_HealthBuckets(t *testing.T) {
	t.Parallel()

	tr := NewTracker(newFakeClock())
	for i := 0; i < 9; i++ {
		tr.RecordSuccess("good", time.Millisecond, 1)
	}
	tr.RecordFailure("good", time.Millisecond)

	s, _ := tr.Get("good")
	require.Equal(t, feed.HealthHealthy, s.HealthStatus())

	tr.RecordFailure("good", time.Millisecond)
	tr.RecordFailure("good", time.Millisecond)
	s, _ = tr.Get("good")
	require.Equal(t, feed.HealthDegraded, s.HealthStatus())

	for i := 0; i < 5; i++ {
		tr.RecordFailure("good", time.Millisecond)
	}
	s, _ = tr.Get("good")
	require.Equal(t, feed.HealthUnhealthy, s.HealthStatus())
}

func TestTracker_SnapshotSorted(t *testing.T) {
	t.Parallel()

	tr := NewTracker(newFakeClock())
	tr.RecordSuccess("zeta", time.Millisecond, 1)
	tr.RecordSuccess("alpha", time.Millisecond, 1)
	tr.RecordFailure("mid", time.Millisecond)

	snap := tr.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, "alpha", snap[0].Source)
	require.Equal(t, "mid", snap[1].Source)
	require.Equal(t, "zeta", snap[2].Source)
}

func TestTracker_UnknownSource(t *testing.T) {
	t.Parallel()

	tr := NewTracker(newFakeClock())
	_, ok := tr.Get("never-seen")
	require.False(t, ok)
	require.Empty(t, tr.Snapshot())
}
