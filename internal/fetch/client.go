// Package fetch provides the shared outbound HTTP machinery: a retrying
// client with exponential backoff for transient failures, and a
// minimum-interval throttle protecting rate-limited third-party APIs.
package fetch

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// retryableStatuses are the server responses worth another attempt. POSTs
// are retried too: the notification endpoint tolerates duplicate delivery,
// so at-least-once is acceptable.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Config tunes a Client. Zero values fall back to the defaults below.
type Config struct {
	Timeout        time.Duration // per-request timeout, default 30s
	MaxAttempts    int           // total attempts including the first, default 4
	InitialBackoff time.Duration // default 1s, doubles per retry
	MaxBackoff     time.Duration // default 8s
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 8 * time.Second
	}
	return c
}

// Client wraps http.Client with retry-on-transient-failure semantics.
type Client struct {
	http   *http.Client
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewClient creates a retrying HTTP client. The clock is injectable so the
// backoff waits are testable without wall-clock sleeps.
func NewClient(cfg Config, clock clockwork.Clock, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

// Do executes the request, retrying network-level failures and retryable
// status codes with exponential backoff. Any other response, 2xx or not, is
// returned to the caller, which owns closing the body. When all attempts
// fail the last error is returned wrapped.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	backoff := c.cfg.InitialBackoff

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-c.clock.After(backoff):
			}
			backoff = min(backoff*2, c.cfg.MaxBackoff)

			if req.Body != nil {
				if req.GetBody == nil {
					return nil, fmt.Errorf("%s %s: cannot retry request with unrepeatable body: %w",
						req.Method, req.URL, lastErr)
				}
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewind request body: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("request failed, will retry",
				"method", req.Method, "url", req.URL.String(),
				"attempt", attempt, "error", err)
			continue
		}

		if !retryableStatuses[resp.StatusCode] {
			return resp, nil
		}

		// Drain so the connection can be reused across attempts.
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
		lastErr = fmt.Errorf("status %d", resp.StatusCode)
		c.logger.Warn("retryable status, will retry",
			"method", req.Method, "url", req.URL.String(),
			"status", resp.StatusCode, "attempt", attempt)
	}

	return nil, fmt.Errorf("%s %s: retries exhausted after %d attempts: %w",
		req.Method, req.URL, c.cfg.MaxAttempts, lastErr)
}
