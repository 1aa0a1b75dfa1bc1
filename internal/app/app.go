// Package app builds and owns the shared service graph: configuration,
// logging, database pool and the collection pipeline.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/newswire/harvester/internal/clock/system"
	"github.com/newswire/harvester/internal/collector"
	"github.com/newswire/harvester/internal/config"
	"github.com/newswire/harvester/internal/dedup"
	"github.com/newswire/harvester/internal/embedder/httpembed"
	"github.com/newswire/harvester/internal/embedding"
	"github.com/newswire/harvester/internal/feed"
	"github.com/newswire/harvester/internal/logging"
	"github.com/newswire/harvester/internal/parser"
	"github.com/newswire/harvester/internal/pipeline"
	"github.com/newswire/harvester/internal/policy/ratelimit"
	"github.com/newswire/harvester/internal/store/postgres"
	"github.com/newswire/harvester/internal/telemetry"
	"github.com/newswire/harvester/internal/transport"
)

// App aggregates the long-lived services shared by every command.
type App struct {
	Cfg      config.Config
	Log      *zap.Logger
	Store    *postgres.ItemStore
	Tracker  *collector.Tracker
	Pipeline *pipeline.Service
	Sources  []feed.Source
	Cache    *embedding.Cache

	pool *pgxpool.Pool
}

// New loads configuration and wires the full service graph. The database
// schema is ensured on startup.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, err
	}

	telemetry.Init()

	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse db dsn: %w", err)
	}
	if cfg.DB.MaxConns > 0 {
		poolCfg.MaxConns = cfg.DB.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	store := postgres.New(pool, log)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	sidecar := httpembed.New(httpembed.Config{
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	})
	pooled := embedding.NewPool(sidecar, cfg.Embedding.PoolSize)
	cache, err := embedding.NewCache(cfg.Embedding.CacheDir, cfg.Embedding.Model, pooled, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	clock := system.New()
	tracker := collector.NewTracker(clock)
	orch := collector.NewOrchestrator(
		collector.OrchestratorConfig{
			MaxRetries: cfg.Collector.MaxRetries,
			BaseDelay:  cfg.Collector.RetryBaseDelay(),
			Timeout:    cfg.Collector.RequestTimeout(),
		},
		transport.New(transport.Config{UserAgent: cfg.Collector.UserAgent}),
		parser.Default(),
		ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.Collector.Rate,
			Burst:             cfg.Collector.Burst,
		}),
		ratelimit.NewConcurrencyLimiter(cfg.Collector.MaxConcurrentPerKey),
		tracker,
		log,
	)
	agg := collector.NewAggregator(orch, clock, cfg.Collector.MaxAge(), log)

	engine := dedup.NewEngine(dedup.Config{
		SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		LookbackDays:        cfg.Dedup.LookbackDays,
		MaxWindowEntries:    cfg.Dedup.CacheMaxEntries,
		TemporalWindow:      cfg.Dedup.TemporalWindow(),
	}, store, cache, log)

	svc := pipeline.New(agg, engine, store, log)

	return &App{
		Cfg:      cfg,
		Log:      log,
		Store:    store,
		Tracker:  tracker,
		Pipeline: svc,
		Sources:  sourcesFrom(cfg),
		Cache:    cache,
		pool:     pool,
	}, nil
}

// Close releases the shared resources.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.Log.Sync()
}

func sourcesFrom(cfg config.Config) []feed.Source {
	sources := make([]feed.Source, len(cfg.Sources))
	for i, s := range cfg.Sources {
		sources[i] = feed.Source{
			Name:     s.Name,
			Endpoint: s.URL,
			RateKey:  s.RateKey,
			Parser:   s.Parser,
		}
	}
	return sources
}
