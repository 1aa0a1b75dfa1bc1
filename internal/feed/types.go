// Package feed defines the core types and collaborator interfaces for the
// feed ingestion engine: sources, candidate items, duplicate verdicts, and
// per-source collection statistics.
package feed

import (
	"strings"
	"time"

	"github.com/newswire/harvester/internal/hash/sha256"
)

// Source describes one configured upstream feed. Sources are built at
// startup and never mutated afterwards.
type Source struct {
	Name     string
	Endpoint string
	// RateKey overrides the per-domain bucket key derived from Endpoint.
	// Empty means "use the endpoint hostname".
	RateKey string
	// Parser names the registered parser for this source. Empty selects
	// the default.
	Parser string
}

// Item is a normalized post-parse feed record. The ID is a deterministic
// fingerprint of (URL, Title) and serves as the within-batch dedup key.
type Item struct {
	ID          string
	URL         string
	Title       string
	Content     string
	Summary     string
	Source      string
	PublishedAt time.Time
	CollectedAt time.Time
	Tags        []string
}

// NewItem builds an Item and derives its canonical id. Tags are lowercased,
// trimmed and deduplicated.
func NewItem(url, title, content, source string, publishedAt time.Time) Item {
	return Item{
		ID:          sha256.ItemID(url, title),
		URL:         url,
		Title:       title,
		Content:     content,
		Source:      source,
		PublishedAt: publishedAt,
		CollectedAt: time.Now().UTC(),
	}
}

// CleanTags normalizes a tag list: lowercase, trimmed, deduplicated,
// empties dropped. Order of first occurrence is preserved.
func CleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// StoredItem is a previously accepted item as returned by the ItemStore,
// optionally paired with its persisted embedding.
type StoredItem struct {
	ID          string
	URL         string
	Title       string
	Content     string
	Source      string
	PublishedAt time.Time
	Embedding   []float32
}

// MatchReason identifies which dedup stage produced a verdict.
type MatchReason string

// Verdict reasons, ordered from cheapest to most expensive stage.
const (
	MatchNone       MatchReason = "none"
	MatchExactURL   MatchReason = "exact_url"
	MatchExactTitle MatchReason = "exact_title"
	MatchSemantic   MatchReason = "semantic"
)

// Verdict is the result of classifying one candidate item.
type Verdict struct {
	IsDuplicate bool
	MatchedID   string
	Score       float64
	Reason      MatchReason
}

// NovelVerdict is the verdict for an item that matched nothing.
func NovelVerdict() Verdict {
	return Verdict{Reason: MatchNone}
}

// BatchStats summarizes one collection cycle.
type BatchStats struct {
	Total         int
	New           int
	Duplicates    int
	FailedSources []string
}

// Health buckets derived from a source's success rate.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// SourceStats is a snapshot of one source's running collection statistics.
type SourceStats struct {
	Source       string        `json:"source"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	LastSuccess  time.Time     `json:"last_success,omitzero"`
	LastFailure  time.Time     `json:"last_failure,omitzero"`
	AvgLatency   time.Duration `json:"avg_latency_ns"`
	AvgItems     float64       `json:"avg_items"`
}

// SuccessRate returns successes over total attempts, 0 when idle.
func (s SourceStats) SuccessRate() float64 {
	total := s.SuccessCount + s.FailureCount
	if total == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(total)
}

// HealthStatus buckets the success rate: healthy >= 0.9, degraded >= 0.7,
// unhealthy below.
func (s SourceStats) HealthStatus() string {
	rate := s.SuccessRate()
	switch {
	case rate >= 0.9:
		return HealthHealthy
	case rate >= 0.7:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}
