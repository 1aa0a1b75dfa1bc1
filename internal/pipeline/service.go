// Package pipeline runs the end-to-end cycle: collect from every source,
// classify against history and persist the outcome.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newswire/harvester/internal/feed"
)

// Collector produces one batch of candidate items across all sources.
type Collector interface {
	Collect(ctx context.Context, sources []feed.Source) ([]feed.Item, []string, error)
}

// Classifier is the dedup engine surface the pipeline needs.
type Classifier interface {
	LoadWindow(ctx context.Context) error
	ClassifyBatch(ctx context.Context, items []feed.Item) ([]feed.Verdict, [][]float32, error)
	Remember(item feed.Item, vec []float32)
}

// Service orchestrates one collection cycle.
type Service struct {
	collector  Collector
	classifier Classifier
	store      feed.ItemStore
	log        *zap.Logger
}

// New wires a pipeline service.
func New(collector Collector, classifier Classifier, store feed.ItemStore, log *zap.Logger) *Service {
	return &Service{
		collector:  collector,
		classifier: classifier,
		store:      store,
		log:        log,
	}
}

// CollectAndClassify runs one full cycle over sources and returns the
// accepted novel items alongside statistics, even when every source failed.
// Duplicates are recorded against their original; novel items are persisted
// and only then added to the comparison window, so a failed insert never
// leaves a phantom entry.
func (s *Service) CollectAndClassify(ctx context.Context, sources []feed.Source) ([]feed.Item, feed.BatchStats, error) {
	var stats feed.BatchStats
	log := s.log.With(zap.String("run_id", uuid.NewString()))

	items, failed, err := s.collector.Collect(ctx, sources)
	stats.FailedSources = failed
	if err != nil {
		return nil, stats, fmt.Errorf("collect: %w", err)
	}
	stats.Total = len(items)
	if len(items) == 0 {
		return nil, stats, nil
	}

	if err := s.classifier.LoadWindow(ctx); err != nil {
		return nil, stats, fmt.Errorf("load dedup window: %w", err)
	}

	verdicts, vecs, err := s.classifier.ClassifyBatch(ctx, items)
	if err != nil {
		return nil, stats, fmt.Errorf("classify batch: %w", err)
	}

	var novel []feed.Item

	for i, item := range items {
		v := verdicts[i]
		if v.IsDuplicate {
			stats.Duplicates++
			if err := s.store.MarkDuplicate(ctx, item.ID, v.MatchedID); err != nil {
				log.Warn("mark duplicate failed",
					zap.String("id", item.ID),
					zap.String("original", v.MatchedID),
					zap.Error(err),
				)
			}
			log.Debug("duplicate item",
				zap.String("id", item.ID),
				zap.String("original", v.MatchedID),
				zap.String("reason", string(v.Reason)),
				zap.Float64("score", v.Score),
			)
			continue
		}

		if err := s.store.Insert(ctx, item, vecs[i]); err != nil {
			log.Error("insert failed, item dropped from this cycle",
				zap.String("id", item.ID),
				zap.String("url", item.URL),
				zap.Error(err),
			)
			continue
		}
		s.classifier.Remember(item, vecs[i])
		novel = append(novel, item)
		stats.New++
	}

	log.Info("cycle complete",
		zap.Int("total", stats.Total),
		zap.Int("new", stats.New),
		zap.Int("duplicates", stats.Duplicates),
		zap.Strings("failed_sources", stats.FailedSources),
	)
	return novel, stats, nil
}
