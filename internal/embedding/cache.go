package embedding

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newswire/harvester/internal/feed"
	"github.com/newswire/harvester/internal/hash/sha256"
	"github.com/newswire/harvester/internal/telemetry"
)

// cacheExt is the file extension of cache entries.
const cacheExt = ".vec"

// Cache is a content-addressed disk cache in front of an Embedder. Keys are
// derived from (model, text), so the same text embedded under a different
// model never collides. Entries are sharded into subdirectories by key
// prefix to keep directory listings small.
type Cache struct {
	dir      string
	modelID  string
	embedder feed.Embedder
	log      *zap.Logger
}

// NewCache builds a cache rooted at dir, creating it if needed.
func NewCache(dir, modelID string, embedder feed.Embedder, log *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:      dir,
		modelID:  modelID,
		embedder: embedder,
		log:      log,
	}, nil
}

// Dimension reports the wrapped embedder's vector dimension.
func (c *Cache) Dimension() int {
	return c.embedder.Dimension()
}

func (c *Cache) pathFor(key string) string {
	return filepath.Join(c.dir, key[:2], key+cacheExt)
}

// lookup loads a cached vector. Missing entries return (nil, nil). Corrupt
// entries are deleted and reported as a miss so they get recomputed.
func (c *Cache) lookup(text string) ([]float32, error) {
	key := sha256.CacheKey(c.modelID, text)
	path := c.pathFor(key)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		telemetry.ObserveCacheMiss()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	vec, err := UnmarshalVector(data)
	if err != nil {
		telemetry.ObserveCacheCorrupt()
		c.log.Warn("evicting corrupt embedding cache entry",
			zap.String("path", path),
			zap.Error(err),
		)
		_ = os.Remove(path)
		return nil, nil
	}
	telemetry.ObserveCacheHit()
	return vec, nil
}

// store writes a vector under its key. The write goes to a temp file first
// and is renamed into place, so readers never observe a partial entry.
func (c *Cache) store(text string, vec []float32) error {
	key := sha256.CacheKey(c.modelID, text)
	path := c.pathFor(key)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache shard: %w", err)
	}
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, MarshalVector(vec), 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// Encode returns the embedding for text, consulting the cache first. Cache
// write failures are logged, not propagated: the vector is still returned.
func (c *Cache) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch returns embeddings for texts in input order. Cached texts are
// served from disk; the remainder goes to the embedder in a single batch
// call.
func (c *Cache) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		vec, err := c.lookup(text)
		if err != nil {
			return nil, err
		}
		if vec != nil {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	start := time.Now()
	vecs, err := c.embedder.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("embed batch of %d: %w", len(missing), err)
	}
	telemetry.ObserveEmbedderLatency(time.Since(start))
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}

	for j, vec := range vecs {
		out[missingIdx[j]] = vec
		if err := c.store(missing[j], vec); err != nil {
			c.log.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return out, nil
}

// Clear removes every cache entry.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("list cache dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// PruneOlderThan removes entries whose modification time is before cutoff
// and returns how many were removed.
func (c *Cache) PruneOlderThan(cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != cacheExt {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("prune cache: %w", err)
	}
	return removed, nil
}
