// Package noaa talks to the NWS public alert API: the active-alert feed and
// the per-alert detail endpoint.
package noaa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/noaa-alert-relay/internal/domain"
	"github.com/couchcryptid/noaa-alert-relay/internal/fetch"
)

// Spacing between successive calls of each operation class. The NWS API is
// shared and rate-limited; this is courtesy pacing, not concurrency control.
const (
	feedInterval   = 2 * time.Second
	detailInterval = 2 * time.Second
)

// maxBodyBytes caps how much of a response is read. The full feed is a few
// hundred KB; anything near this limit is not a feed.
const maxBodyBytes = 16 << 20

// Client fetches the alert feed and alert details. The NWS API requires an
// identifying User-Agent on every request.
type Client struct {
	feedURL        string
	userAgent      string
	http           *fetch.Client
	feedThrottle   *fetch.Throttle
	detailThrottle *fetch.Throttle
	logger         *slog.Logger
}

// NewClient creates an NWS API client on top of the shared retrying HTTP
// client. Feed and detail calls are throttled independently.
func NewClient(feedURL, userAgent string, httpClient *fetch.Client, clock clockwork.Clock, logger *slog.Logger) *Client {
	return &Client{
		feedURL:        feedURL,
		userAgent:      userAgent,
		http:           httpClient,
		feedThrottle:   fetch.NewThrottle(feedInterval, clock),
		detailThrottle: fetch.NewThrottle(detailInterval, clock),
		logger:         logger,
	}
}

// Feed retrieves the current alert feed. A maintenance page, empty body, or
// non-2xx status is a soft failure: it is logged and (nil, nil) is returned
// so the run ends cleanly with nothing processed. Malformed JSON and
// exhausted retries are returned as errors.
func (c *Client) Feed(ctx context.Context) (*domain.Feed, error) {
	if err := c.feedThrottle.Wait(ctx); err != nil {
		return nil, err
	}

	body, soft, err := c.get(ctx, c.feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch alert feed: %w", err)
	}
	if soft {
		return nil, nil
	}

	var feed domain.Feed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse alert feed: %w", err)
	}
	return &feed, nil
}

// detailResponse is the GeoJSON feature returned by an alert's API endpoint.
type detailResponse struct {
	Properties struct {
		Headline    string `json:"headline"`
		Event       string `json:"event"`
		SenderName  string `json:"senderName"`
		Description string `json:"description"`
		Instruction string `json:"instruction"`
		AreaDesc    string `json:"areaDesc"`
	} `json:"properties"`
}

// Detail retrieves the descriptive fields for one alert. An HTML response is
// soft: the zero Detail is returned and the alert proceeds without enrichment.
// Malformed JSON and exhausted retries are errors; the caller skips that one
// alert, not the run.
func (c *Client) Detail(ctx context.Context, apiURL string) (domain.Detail, error) {
	if err := c.detailThrottle.Wait(ctx); err != nil {
		return domain.Detail{}, err
	}

	c.logger.Info("fetching alert detail", "url", apiURL)

	body, soft, err := c.get(ctx, apiURL)
	if err != nil {
		return domain.Detail{}, fmt.Errorf("fetch alert detail: %w", err)
	}
	if soft {
		return domain.Detail{}, nil
	}

	var resp detailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Detail{}, fmt.Errorf("parse alert detail: %w", err)
	}

	p := resp.Properties
	return domain.Detail{
		Headline:     p.Headline,
		Event:        p.Event,
		Issuer:       p.SenderName,
		Description:  p.Description,
		Instructions: p.Instruction,
		Area:         p.AreaDesc,
	}, nil
}

// get performs a GET with the identifying User-Agent and applies the soft
// failure guards: non-2xx status, an HTML content type, an HTML-looking
// body, or an empty body all report soft=true with a log line.
func (c *Client) get(ctx context.Context, url string) (body []byte, soft bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("unexpected status from upstream", "url", url, "status", resp.StatusCode)
		return nil, true, nil
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, false, fmt.Errorf("read response body: %w", err)
	}

	if looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		c.logger.Error("expected JSON but got HTML", "url", url, "body", truncate(body, 1000))
		return nil, true, nil
	}
	if len(body) == 0 {
		c.logger.Error("empty response body from upstream", "url", url)
		return nil, true, nil
	}

	return body, false, nil
}

// looksLikeHTML guards against upstream maintenance pages served where JSON
// was expected.
func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(contentType, "text/html") {
		return true
	}
	head := strings.ToLower(strings.TrimSpace(string(truncate(body, 64))))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
