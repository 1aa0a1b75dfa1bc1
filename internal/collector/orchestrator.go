// Package collector implements the fetch side of the pipeline: the
// per-source retry orchestrator, the multi-source aggregator and the
// statistics tracker.
package collector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newswire/harvester/internal/feed"
	"github.com/newswire/harvester/internal/parser"
	"github.com/newswire/harvester/internal/policy/ratelimit"
	"github.com/newswire/harvester/internal/telemetry"
)

// Orchestrator runs the fetch state machine for a single source: acquire a
// concurrency slot, take a rate limit token per attempt, fetch, classify the
// outcome and retry with exponential backoff until the attempt budget is
// spent.
type Orchestrator struct {
	transport feed.Transport
	parsers   *parser.Registry
	limiter   *ratelimit.Limiter
	slots     *ratelimit.ConcurrencyLimiter
	tracker   *Tracker
	log       *zap.Logger

	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
}

// OrchestratorConfig carries the retry and timeout policy.
type OrchestratorConfig struct {
	// MaxRetries is the total attempt budget, not the number of attempts
	// after the first.
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(
	cfg OrchestratorConfig,
	transport feed.Transport,
	parsers *parser.Registry,
	limiter *ratelimit.Limiter,
	slots *ratelimit.ConcurrencyLimiter,
	tracker *Tracker,
	log *zap.Logger,
) *Orchestrator {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Orchestrator{
		transport:  transport,
		parsers:    parsers,
		limiter:    limiter,
		slots:      slots,
		tracker:    tracker,
		log:        log,
		maxRetries: maxRetries,
		baseDelay:  cfg.BaseDelay,
		timeout:    cfg.Timeout,
	}
}

// rateKey returns the bucket key for a source, honoring an explicit
// rate_key override.
func rateKey(src feed.Source) string {
	if src.RateKey != "" {
		return src.RateKey
	}
	return ratelimit.BucketKey(src.Endpoint)
}

// Collect fetches and parses one source. Exactly one stats outcome is
// recorded per call. The returned error is nil only when a fetch attempt
// succeeded and the payload parsed.
func (o *Orchestrator) Collect(ctx context.Context, src feed.Source) ([]feed.Item, error) {
	p, err := o.parsers.Resolve(src.Parser)
	if err != nil {
		o.tracker.RecordFailure(src.Name, 0)
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}

	key := rateKey(src)
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < o.maxRetries; attempt++ {
		if err := o.limiter.WaitKey(ctx, key); err != nil {
			o.tracker.RecordFailure(src.Name, time.Since(start))
			return nil, err
		}

		// The slot covers one fetch only. Releasing before the backoff
		// sleep keeps other sources on the same key moving while this
		// one waits out a failure.
		release, err := o.slots.AcquireKey(ctx, key)
		if err != nil {
			o.tracker.RecordFailure(src.Name, time.Since(start))
			return nil, err
		}

		attemptStart := time.Now()
		items, err := o.fetchOnce(ctx, p, src)
		release()
		latency := time.Since(attemptStart)
		if err == nil {
			telemetry.ObserveFetch(src.Name, "success", latency)
			telemetry.ObserveItemsCollected(src.Name, len(items))
			o.tracker.RecordSuccess(src.Name, latency, len(items))
			return items, nil
		}

		lastErr = err
		telemetry.ObserveFetch(src.Name, "failure", latency)
		o.log.Warn("fetch attempt failed",
			zap.String("source", src.Name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", o.maxRetries),
			zap.Error(err),
		)

		if !feed.Retryable(err) {
			break
		}
		if attempt+1 < o.maxRetries {
			if err := sleep(ctx, o.backoff(attempt)); err != nil {
				o.tracker.RecordFailure(src.Name, time.Since(start))
				return nil, err
			}
		}
	}

	o.tracker.RecordFailure(src.Name, time.Since(start))
	if feed.Retryable(lastErr) {
		return nil, fmt.Errorf("source %s: %w: %w", src.Name, feed.ErrRetriesExhausted, lastErr)
	}
	return nil, fmt.Errorf("source %s: %w", src.Name, lastErr)
}

// fetchOnce performs one fetch attempt and classifies the outcome.
func (o *Orchestrator) fetchOnce(ctx context.Context, p feed.Parser, src feed.Source) ([]feed.Item, error) {
	status, body, err := o.transport.Get(ctx, src.Endpoint, o.timeout)
	if err != nil {
		return nil, &feed.TransientNetworkError{URL: src.Endpoint, Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &feed.UpstreamStatusError{URL: src.Endpoint, StatusCode: status}
	}
	items, err := p.Parse(body, src.Name)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// backoff returns the delay before the attempt after `attempt` (0-based):
// base, base*2, base*4, ...
func (o *Orchestrator) backoff(attempt int) time.Duration {
	return o.baseDelay * (1 << attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
