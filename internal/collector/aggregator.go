package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newswire/harvester/internal/feed"
)

// Aggregator fans a collection cycle out across all configured sources and
// merges the results. A failing source never fails the batch: its name is
// reported and the remaining sources' items are returned.
type Aggregator struct {
	orch   *Orchestrator
	clock  feed.Clock
	maxAge time.Duration
	log    *zap.Logger
}

// NewAggregator builds an aggregator. maxAge <= 0 disables the freshness
// filter.
func NewAggregator(orch *Orchestrator, clock feed.Clock, maxAge time.Duration, log *zap.Logger) *Aggregator {
	return &Aggregator{
		orch:   orch,
		clock:  clock,
		maxAge: maxAge,
		log:    log,
	}
}

// Collect fetches every source concurrently and returns the merged items in
// source order, deduplicated within the batch by canonical id (first
// occurrence wins) and filtered to the freshness horizon. The second return
// value lists sources whose collection failed.
func (a *Aggregator) Collect(ctx context.Context, sources []feed.Source) ([]feed.Item, []string, error) {
	if len(sources) == 0 {
		return nil, nil, nil
	}

	perSource := make([][]feed.Item, len(sources))
	var mu sync.Mutex
	var failed []string

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			items, err := a.orch.Collect(gctx, src)
			if err != nil {
				mu.Lock()
				failed = append(failed, src.Name)
				mu.Unlock()
				a.log.Warn("source collection failed",
					zap.String("source", src.Name),
					zap.Error(err),
				)
				return nil
			}
			perSource[i] = items
			return nil
		})
	}
	// Goroutines only return nil; Wait is for completion, not errors.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, failed, err
	}

	cutoff := time.Time{}
	if a.maxAge > 0 {
		cutoff = a.clock.Now().Add(-a.maxAge)
	}

	// Dedupe by canonical id before the freshness filter: the first
	// occurrence claims the id even when it is stale, so a fresher repeat
	// of the same item cannot slip through.
	seen := make(map[string]struct{})
	var merged []feed.Item
	var dropped, stale int
	for _, items := range perSource {
		for _, item := range items {
			if _, ok := seen[item.ID]; ok {
				dropped++
				continue
			}
			seen[item.ID] = struct{}{}
			if !cutoff.IsZero() && item.PublishedAt.Before(cutoff) {
				stale++
				continue
			}
			merged = append(merged, item)
		}
	}

	a.log.Info("collection cycle complete",
		zap.Int("sources", len(sources)),
		zap.Int("failed_sources", len(failed)),
		zap.Int("items", len(merged)),
		zap.Int("batch_duplicates", dropped),
		zap.Int("stale", stale),
	)
	return merged, failed, nil
}
