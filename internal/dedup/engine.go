// Package dedup implements staged duplicate detection: exact URL match,
// exact normalized title/content hash, then semantic similarity against a
// bounded window of recently accepted items.
package dedup

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newswire/harvester/internal/embedding"
	"github.com/newswire/harvester/internal/feed"
	"github.com/newswire/harvester/internal/hash/sha256"
	"github.com/newswire/harvester/internal/telemetry"
)

// combinedContentLen bounds how much item content participates in the
// embedded text.
const combinedContentLen = 500

// Encoder produces embeddings, typically the disk cache in front of the
// sidecar client.
type Encoder interface {
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config carries the dedup policy knobs.
type Config struct {
	// SimilarityThreshold is the minimum rescaled cosine score for a
	// semantic match, in (0, 1].
	SimilarityThreshold float64
	// LookbackDays bounds how far back LoadWindow reads from the store.
	LookbackDays int
	// MaxWindowEntries caps the in-memory comparison window.
	MaxWindowEntries int
	// TemporalWindow is the maximum publish-time gap for a semantic match
	// to count. High similarity outside the window is assumed to be a
	// recurring topic, not a duplicate.
	TemporalWindow time.Duration
}

// Engine classifies candidate items against history. LoadWindow must run
// once before classification; afterwards the window grows only through
// Remember, so uncommitted items never pollute comparisons.
type Engine struct {
	store   feed.ItemStore
	encoder Encoder
	log     *zap.Logger
	cfg     Config

	mu     sync.Mutex
	win    *window
	loaded bool
}

// NewEngine wires a dedup engine from its collaborators.
func NewEngine(cfg Config, store feed.ItemStore, encoder Encoder, log *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		encoder: encoder,
		log:     log,
		cfg:     cfg,
		win:     newWindow(cfg.MaxWindowEntries),
	}
}

// CombineText builds the canonical text embedded for an item. The source
// component is the URL's hostname, not the configured source name, so the
// same story mirrored under two source labels still embeds identically.
// Content is truncated so one pathological item cannot dominate embedder
// latency.
func CombineText(title, content, rawURL string) string {
	if len(content) > combinedContentLen {
		content = content[:combinedContentLen]
	}
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return fmt.Sprintf("Title: %s\n\nContent: %s\n\nSource: %s", title, content, host)
}

// LoadWindow populates the comparison window from the store, newest last.
// Stored items lacking a persisted embedding are re-embedded in one batch.
// Calling it again is a no-op.
func (e *Engine) LoadWindow(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}

	items, err := e.store.ListRecent(ctx, e.cfg.LookbackDays, e.cfg.MaxWindowEntries)
	if err != nil {
		return fmt.Errorf("load recent items: %w", err)
	}

	var missing []string
	var missingIdx []int
	for i, item := range items {
		if len(item.Embedding) == 0 {
			missing = append(missing, CombineText(item.Title, item.Content, item.URL))
			missingIdx = append(missingIdx, i)
		}
	}
	if len(missing) > 0 {
		vecs, err := e.encoder.EncodeBatch(ctx, missing)
		if err != nil {
			return fmt.Errorf("embed %d stored items: %w", len(missing), err)
		}
		for j, vec := range vecs {
			items[missingIdx[j]].Embedding = vec
		}
	}

	for _, item := range items {
		e.win.add(item, item.Embedding)
	}
	e.loaded = true
	e.log.Info("dedup window loaded",
		zap.Int("entries", e.win.len()),
		zap.Int("reembedded", len(missing)),
	)
	return nil
}

// Classify runs the staged checks for one item. vec may be nil, in which
// case the semantic stage is skipped. Store lookup failures degrade to the
// remaining stages rather than failing the item.
func (e *Engine) Classify(ctx context.Context, item feed.Item, vec []float32) feed.Verdict {
	if stored, err := e.store.GetByURL(ctx, item.URL); err != nil {
		e.log.Warn("url lookup failed, skipping stage", zap.String("url", item.URL), zap.Error(err))
	} else if stored != nil {
		telemetry.ObserveDuplicate(string(feed.MatchExactURL))
		return feed.Verdict{
			IsDuplicate: true,
			MatchedID:   stored.ID,
			Score:       1.0,
			Reason:      feed.MatchExactURL,
		}
	}

	hash := sha256.NormalizedHash(item.Title, item.Content)
	if id, err := e.store.GetByNormalizedHash(ctx, hash); err != nil {
		e.log.Warn("hash lookup failed, skipping stage", zap.String("id", item.ID), zap.Error(err))
	} else if id != "" {
		telemetry.ObserveDuplicate(string(feed.MatchExactTitle))
		return feed.Verdict{
			IsDuplicate: true,
			MatchedID:   id,
			Score:       1.0,
			Reason:      feed.MatchExactTitle,
		}
	}

	if vec == nil {
		return feed.NovelVerdict()
	}
	return e.classifySemantic(item, vec)
}

// classifySemantic compares an item's embedding against the window. Only the
// single best match is considered: it must clear the threshold and carry
// temporal corroboration, otherwise the item is novel. Lower-ranked matches
// never rescue a candidate whose best match fails corroboration.
func (e *Engine) classifySemantic(item feed.Item, vec []float32) feed.Verdict {
	e.mu.Lock()
	defer e.mu.Unlock()

	matches := embedding.FindMostSimilar(vec, e.win.vectors(), e.cfg.SimilarityThreshold, 1)
	if len(matches) == 0 {
		return feed.NovelVerdict()
	}

	best := matches[0]
	candidate := e.win.at(best.Index)
	gap := item.PublishedAt.Sub(candidate.PublishedAt)
	if gap < 0 {
		gap = -gap
	}
	if gap > e.cfg.TemporalWindow {
		e.log.Debug("best match outside temporal window",
			zap.String("id", item.ID),
			zap.String("candidate", candidate.ID),
			zap.Float64("score", best.Score),
			zap.Duration("gap", gap),
		)
		return feed.NovelVerdict()
	}

	telemetry.ObserveDuplicate(string(feed.MatchSemantic))
	return feed.Verdict{
		IsDuplicate: true,
		MatchedID:   candidate.ID,
		Score:       best.Score,
		Reason:      feed.MatchSemantic,
	}
}

// ClassifyBatch embeds all items in one batch call and classifies each. The
// returned vectors align with items so accepted ones can be persisted
// without re-embedding. An embedder outage degrades the whole batch to the
// exact stages instead of failing it.
func (e *Engine) ClassifyBatch(ctx context.Context, items []feed.Item) ([]feed.Verdict, [][]float32, error) {
	if len(items) == 0 {
		return nil, nil, nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = CombineText(item.Title, item.Content, item.URL)
	}
	vecs, err := e.encoder.EncodeBatch(ctx, texts)
	if err != nil {
		e.log.Warn("batch embedding failed, semantic stage disabled for this batch", zap.Error(err))
		vecs = make([][]float32, len(items))
	}

	verdicts := make([]feed.Verdict, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		verdicts[i] = e.Classify(ctx, item, vecs[i])
	}
	return verdicts, vecs, nil
}

// Remember adds a committed item to the comparison window. Call it only
// after the store insert succeeds.
func (e *Engine) Remember(item feed.Item, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.win.add(feed.StoredItem{
		ID:          item.ID,
		URL:         item.URL,
		Title:       item.Title,
		Content:     item.Content,
		Source:      item.Source,
		PublishedAt: item.PublishedAt,
		Embedding:   vec,
	}, vec)
}
