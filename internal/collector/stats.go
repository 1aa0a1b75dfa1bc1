package collector

import (
	"sort"
	"sync"
	"time"

	"github.com/newswire/harvester/internal/feed"
)

// Tracker keeps running per-source collection statistics. Averages are
// maintained incrementally so the tracker never holds per-attempt history.
type Tracker struct {
	mu    sync.Mutex
	stats map[string]*feed.SourceStats
	clock feed.Clock
}

// NewTracker builds an empty tracker.
func NewTracker(clock feed.Clock) *Tracker {
	return &Tracker{
		stats: make(map[string]*feed.SourceStats),
		clock: clock,
	}
}

func (t *Tracker) entry(source string) *feed.SourceStats {
	s, ok := t.stats[source]
	if !ok {
		s = &feed.SourceStats{Source: source}
		t.stats[source] = s
	}
	return s
}

// RecordSuccess records one successful collection cycle for a source.
func (t *Tracker) RecordSuccess(source string, latency time.Duration, items int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entry(source)
	s.SuccessCount++
	s.LastSuccess = t.clock.Now()
	s.AvgLatency = runningAvgDuration(s.AvgLatency, latency, s.SuccessCount+s.FailureCount)
	s.AvgItems += (float64(items) - s.AvgItems) / float64(s.SuccessCount)
}

// RecordFailure records one failed collection cycle for a source.
func (t *Tracker) RecordFailure(source string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entry(source)
	s.FailureCount++
	s.LastFailure = t.clock.Now()
	s.AvgLatency = runningAvgDuration(s.AvgLatency, latency, s.SuccessCount+s.FailureCount)
}

// Get returns a copy of one source's stats.
func (t *Tracker) Get(source string) (feed.SourceStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[source]
	if !ok {
		return feed.SourceStats{}, false
	}
	return *s, true
}

// Snapshot returns a copy of all per-source stats, sorted by source name.
func (t *Tracker) Snapshot() []feed.SourceStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]feed.SourceStats, 0, len(t.stats))
	for _, s := range t.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// runningAvgDuration folds one sample into an incremental mean over n
// observations, the new sample included.
func runningAvgDuration(avg, sample time.Duration, n int) time.Duration {
	if n <= 1 {
		return sample
	}
	return avg + (sample-avg)/time.Duration(n)
}
