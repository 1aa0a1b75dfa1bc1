package feed

import (
	"context"
	"time"
)

// Parser turns a raw feed payload into normalized items. Implementations
// must not fail on malformed entries: bad entries are skipped and the rest
// returned. An error is reserved for payloads that are unusable as a whole.
type Parser interface {
	Parse(raw []byte, sourceName string) ([]Item, error)
}

// Transport performs a single HTTP GET with a bounded timeout.
type Transport interface {
	Get(ctx context.Context, url string, timeout time.Duration) (status int, body []byte, err error)
}

// ItemStore persists accepted items and the lookup indexes the dedup engine
// consults. Lookups return the zero value (nil / empty string) when nothing
// matches; errors are reserved for store failures.
type ItemStore interface {
	GetByURL(ctx context.Context, url string) (*StoredItem, error)
	GetByNormalizedHash(ctx context.Context, hash string) (string, error)
	ListRecent(ctx context.Context, lookbackDays int, limit int) ([]StoredItem, error)
	Insert(ctx context.Context, item Item, embedding []float32) error
	MarkDuplicate(ctx context.Context, id, originalID string) error
}

// Embedder computes dense vector embeddings for text. The model is
// initialized once at startup and injected; callers never trigger lazy
// loading mid-pipeline.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
