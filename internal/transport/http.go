// Package transport implements the HTTP fetch collaborator used by the
// collector.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// maxBodyBytes bounds how much of a feed payload is read. Feeds beyond this
// are truncated rather than exhausting memory.
const maxBodyBytes = 10 << 20

// HTTP performs plain GET requests with a pooled transport.
type HTTP struct {
	client    *http.Client
	userAgent string
}

// Config controls client behavior.
type Config struct {
	UserAgent string
}

// New builds an HTTP transport with connection pooling.
func New(cfg Config) *HTTP {
	return &HTTP{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   15 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		userAgent: cfg.UserAgent,
	}
}

// Get fetches url with the given timeout and returns the status code and
// body. Transport-level failures (DNS, connect, timeout) return an error;
// any HTTP status is returned as-is for the caller to classify.
func (h *HTTP) Get(ctx context.Context, url string, timeout time.Duration) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}
