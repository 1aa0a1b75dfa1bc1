package feed

import (
	"errors"
	"fmt"
)

// TransientNetworkError marks a timeout or transport-level failure. These
// are always retryable.
type TransientNetworkError struct {
	URL string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error fetching %s: %v", e.URL, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// UpstreamStatusError marks a non-2xx response. It is retried identically to
// transient errors up to the attempt cap; the distinct type keeps the two
// observable separately in logs and metrics.
type UpstreamStatusError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d for %s", e.StatusCode, e.URL)
}

// ParseError marks a payload that could not be parsed at all. Individual bad
// entries inside an otherwise valid payload are skipped by the parser and
// never surface as errors.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed for source %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrRetriesExhausted is recorded in statistics when a source burns through
// its retry budget. It is never propagated to the batch caller.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ErrCacheCorrupt marks an unreadable on-disk embedding entry. The entry is
// evicted and recomputed; callers only ever see it through logs.
var ErrCacheCorrupt = errors.New("embedding cache entry corrupt")

// Retryable reports whether a fetch attempt error should consume another
// retry. Transient network errors and upstream status errors are both
// retryable; anything unclassified is treated as retryable rather than
// being swallowed. Parse failures never retry: the payload will not get
// better on a refetch.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var transient *TransientNetworkError
	var status *UpstreamStatusError
	var parse *ParseError
	switch {
	case errors.As(err, &transient), errors.As(err, &status):
		return true
	case errors.As(err, &parse):
		return false
	default:
		return true
	}
}
