package embedding

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// gaugedEmbedder records the peak number of concurrent calls.
type gaugedEmbedder struct {
	inflight atomic.Int32
	peak     atomic.Int32
}

func (g *gaugedEmbedder) track() func() {
	n := g.inflight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { g.inflight.Add(-1) }
}

func (g *gaugedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	done := g.track()
	defer done()
	time.Sleep(10 * time.Millisecond)
	return []float32{1}, nil
}

func (g *gaugedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	done := g.track()
	defer done()
	time.Sleep(10 * time.Millisecond)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func (g *gaugedEmbedder) Dimension() int { return 1 }

func TestPool_CapsConcurrency(t *testing.T) {
	t.Parallel()

	inner := &gaugedEmbedder{}
	pool := NewPool(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Embed(context.Background(), "x")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, inner.peak.Load(), int32(2))
}

// blockingEmbedder parks every call until released.
type blockingEmbedder struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	b.entered <- struct{}{}
	<-b.release
	return []float32{1}, nil
}

func (b *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	_, err := b.Embed(ctx, "")
	if err != nil {
		return nil, err
	}
	return [][]float32{{1}}, nil
}

func (b *blockingEmbedder) Dimension() int { return 1 }

func TestPool_ContextCancelWhileWaiting(t *testing.T) {
	t.Parallel()

	inner := &blockingEmbedder{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	pool := NewPool(inner, 1)

	done := make(chan struct{})
	go func() {
		_, _ = pool.Embed(context.Background(), "holder")
		close(done)
	}()
	<-inner.entered // the single slot is now held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Embed(ctx, "waiter")
	require.Error(t, err, "waiter must give up when its context expires")

	close(inner.release)
	<-done
}
