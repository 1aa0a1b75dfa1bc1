// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper. It is
// built once at startup and passed by reference into each component's
// constructor; nothing mutates it afterwards.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Collector CollectorConfig `mapstructure:"collector"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	DB        DBConfig        `mapstructure:"db"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sources   []SourceConfig  `mapstructure:"sources"`
}

// ServerConfig controls the stats/metrics HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CollectorConfig governs the fetch pipeline: rate limiting, concurrency
// capping, retry and freshness policy.
type CollectorConfig struct {
	Rate                  float64 `mapstructure:"rate"`
	Burst                 int     `mapstructure:"burst"`
	MaxConcurrentPerKey   int     `mapstructure:"max_concurrent_per_key"`
	MaxRetries            int     `mapstructure:"max_retries"`
	RetryBaseDelayMs      int     `mapstructure:"retry_base_delay_ms"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	MaxAgeDays            int     `mapstructure:"max_age_days"`
	UserAgent             string  `mapstructure:"user_agent"`
}

// DedupConfig governs the staged deduplication engine.
type DedupConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	LookbackDays        int     `mapstructure:"lookback_days"`
	CacheMaxEntries     int     `mapstructure:"cache_max_entries"`
	TemporalWindowDays  int     `mapstructure:"temporal_corroboration_window_days"`
}

// EmbeddingConfig configures the embedder sidecar and the on-disk cache.
type EmbeddingConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
	CacheDir  string `mapstructure:"cache_dir"`
	PoolSize  int    `mapstructure:"pool_size"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig selects the logger profile and minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SourceConfig describes one configured feed.
type SourceConfig struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	Parser  string `mapstructure:"parser"`
	RateKey string `mapstructure:"rate_key"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("collector.rate", 2.0)
	v.SetDefault("collector.burst", 5)
	v.SetDefault("collector.max_concurrent_per_key", 3)
	v.SetDefault("collector.max_retries", 3)
	v.SetDefault("collector.retry_base_delay_ms", 1000)
	v.SetDefault("collector.request_timeout_seconds", 30)
	v.SetDefault("collector.max_age_days", 7)
	v.SetDefault("collector.user_agent", "harvester/0.1")
	v.SetDefault("dedup.similarity_threshold", 0.85)
	v.SetDefault("dedup.lookback_days", 30)
	v.SetDefault("dedup.cache_max_entries", 1000)
	v.SetDefault("dedup.temporal_corroboration_window_days", 7)
	v.SetDefault("embedding.model", "all-MiniLM-L6-v2")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("embedding.cache_dir", ".embeddings_cache")
	v.SetDefault("embedding.pool_size", 2)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Collector.Rate <= 0 {
		return fmt.Errorf("collector.rate must be > 0")
	}
	if c.Collector.Burst <= 0 {
		return fmt.Errorf("collector.burst must be > 0")
	}
	if c.Collector.MaxConcurrentPerKey <= 0 {
		return fmt.Errorf("collector.max_concurrent_per_key must be > 0")
	}
	if c.Collector.MaxRetries <= 0 {
		return fmt.Errorf("collector.max_retries must be > 0")
	}
	if c.Collector.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("collector.request_timeout_seconds must be > 0")
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0, 1]")
	}
	if c.Dedup.TemporalWindowDays <= 0 {
		return fmt.Errorf("dedup.temporal_corroboration_window_days must be > 0")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be > 0")
	}
	for i, s := range c.Sources {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("sources[%d]: name and url are required", i)
		}
	}
	return nil
}

// RetryBaseDelay returns the configured backoff base as a duration.
func (c CollectorConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// RequestTimeout returns the per-fetch timeout as a duration.
func (c CollectorConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// MaxAge returns the freshness horizon as a duration.
func (c CollectorConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// TemporalWindow returns the corroboration window as a duration.
func (c DedupConfig) TemporalWindow() time.Duration {
	return time.Duration(c.TemporalWindowDays) * 24 * time.Hour
}
