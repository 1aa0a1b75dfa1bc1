package embedding

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/newswire/harvester/internal/feed"
)

// Pool bounds concurrent calls into an Embedder. The embedder sidecar keeps
// a small worker count; letting every collection goroutine call it at once
// just queues inside the sidecar with worse tail latency.
type Pool struct {
	inner feed.Embedder
	sem   *semaphore.Weighted
}

// NewPool wraps an embedder with a concurrency cap of size.
func NewPool(inner feed.Embedder, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		inner: inner,
		sem:   semaphore.NewWeighted(int64(size)),
	}
}

// Embed embeds one text, waiting for a pool slot first.
func (p *Pool) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return p.inner.Embed(ctx, text)
}

// EmbedBatch embeds a batch, holding a single pool slot for the whole call.
func (p *Pool) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return p.inner.EmbedBatch(ctx, texts)
}

// Dimension reports the wrapped embedder's vector dimension.
func (p *Pool) Dimension() int { return p.inner.Dimension() }
