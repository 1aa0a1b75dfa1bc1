package embedding

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newswire/harvester/internal/hash/sha256"
	"github.com/newswire/harvester/internal/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	os.Exit(m.Run())
}

// countingEmbedder derives a deterministic vector from each text and counts
// how many texts actually reach it.
type countingEmbedder struct {
	mu    sync.Mutex
	texts []string
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.texts = append(e.texts, texts...)
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, 4)
		for j, r := range t {
			vec[j%4] += float32(r)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int { return 4 }

func (e *countingEmbedder) embeddedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.texts)
}

func newTestCache(t *testing.T) (*Cache, *countingEmbedder) {
	t.Helper()
	emb := &countingEmbedder{}
	c, err := NewCache(t.TempDir(), "test-model", emb, zap.NewNop())
	require.NoError(t, err)
	return c, emb
}

func TestCache_SecondEncodeHitsDisk(t *testing.T) {
	t.Parallel()

	c, emb := newTestCache(t)
	ctx := context.Background()

	first, err := c.Encode(ctx, "hello world")
	require.NoError(t, err)
	require.Equal(t, 1, emb.embeddedCount())

	second, err := c.Encode(ctx, "hello world")
	require.NoError(t, err)
	require.Equal(t, 1, emb.embeddedCount(), "cached text must not reach the embedder again")
	require.Equal(t, first, second)
}

func TestCache_BatchPreservesOrderAndOnlyEmbedsMisses(t *testing.T) {
	t.Parallel()

	c, emb := newTestCache(t)
	ctx := context.Background()

	warm, err := c.Encode(ctx, "beta")
	require.NoError(t, err)
	require.Equal(t, 1, emb.embeddedCount())

	vecs, err := c.EncodeBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	require.Equal(t, warm, vecs[1], "cached entry served in place")
	require.Equal(t, 3, emb.embeddedCount(), "only the two misses go to the embedder")

	direct, err := emb.EmbedBatch(ctx, []string{"alpha", "gamma"})
	require.NoError(t, err)
	require.Equal(t, direct[0], vecs[0])
	require.Equal(t, direct[1], vecs[2])
}

func TestCache_CorruptEntryEvictedAndRecomputed(t *testing.T) {
	t.Parallel()

	emb := &countingEmbedder{}
	dir := t.TempDir()
	c, err := NewCache(dir, "test-model", emb, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Encode(ctx, "fragile")
	require.NoError(t, err)

	key := sha256.CacheKey("test-model", "fragile")
	path := filepath.Join(dir, key[:2], key+cacheExt)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	vec, err := c.Encode(ctx, "fragile")
	require.NoError(t, err)
	require.Len(t, vec, 4)
	require.Equal(t, 2, emb.embeddedCount(), "corrupt entry must be recomputed")

	// The rewritten entry is valid again.
	_, err = c.Encode(ctx, "fragile")
	require.NoError(t, err)
	require.Equal(t, 2, emb.embeddedCount())
}

func TestCache_ModelIDSeparatesEntries(t *testing.T) {
	t.Parallel()

	emb := &countingEmbedder{}
	dir := t.TempDir()
	a, err := NewCache(dir, "model-a", emb, zap.NewNop())
	require.NoError(t, err)
	b, err := NewCache(dir, "model-b", emb, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = a.Encode(ctx, "same text")
	require.NoError(t, err)
	_, err = b.Encode(ctx, "same text")
	require.NoError(t, err)
	require.Equal(t, 2, emb.embeddedCount(), "different models must not share entries")
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c, emb := newTestCache(t)
	ctx := context.Background()

	_, err := c.Encode(ctx, "ephemeral")
	require.NoError(t, err)
	require.NoError(t, c.Clear())

	_, err = c.Encode(ctx, "ephemeral")
	require.NoError(t, err)
	require.Equal(t, 2, emb.embeddedCount())
}

func TestCache_PruneOlderThan(t *testing.T) {
	t.Parallel()

	emb := &countingEmbedder{}
	dir := t.TempDir()
	c, err := NewCache(dir, "test-model", emb, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Encode(ctx, "old entry")
	require.NoError(t, err)
	key := sha256.CacheKey("test-model", "old entry")
	path := filepath.Join(dir, key[:2], key+cacheExt)
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, stale, stale))

	_, err = c.Encode(ctx, "new entry")
	require.NoError(t, err)

	removed, err := c.PruneOlderThan(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = c.Encode(ctx, "new entry")
	require.NoError(t, err)
	require.Equal(t, 2, emb.embeddedCount(), "fresh entry survives the prune")
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	vec := []float32{0.1, -2.5, 3.25, 0}
	got, err := UnmarshalVector(MarshalVector(vec))
	require.NoError(t, err)
	require.Equal(t, vec, got)

	_, err = UnmarshalVector([]byte{1, 2})
	require.Error(t, err)

	truncated := MarshalVector(vec)[:10]
	_, err = UnmarshalVector(truncated)
	require.Error(t, err)
}
