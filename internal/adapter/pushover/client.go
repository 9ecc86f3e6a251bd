// Package pushover dispatches push notifications through the Pushover
// message API.
package pushover

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/noaa-alert-relay/internal/domain"
	"github.com/couchcryptid/noaa-alert-relay/internal/fetch"
)

// notifyInterval spaces successive notification posts.
const notifyInterval = time.Second

// sound selects the Pushover notification sound for every alert.
const sound = "falling"

// Client posts notifications to the Pushover API. Delivery is at-least-once:
// the endpoint tolerates duplicates, so transient failures are retried by
// the underlying client.
type Client struct {
	apiURL   string
	token    string
	user     string
	http     *fetch.Client
	throttle *fetch.Throttle
	logger   *slog.Logger
}

// NewClient creates a Pushover client with the application token and
// recipient user key.
func NewClient(apiURL, token, user string, httpClient *fetch.Client, clock clockwork.Clock, logger *slog.Logger) *Client {
	return &Client{
		apiURL:   apiURL,
		token:    token,
		user:     user,
		http:     httpClient,
		throttle: fetch.NewThrottle(notifyInterval, clock),
		logger:   logger,
	}
}

// Notify sends one push notification. A delivery failure is returned for the
// caller to log and count; it must not abort the run.
func (c *Client) Notify(ctx context.Context, n domain.Notification) error {
	if err := c.throttle.Wait(ctx); err != nil {
		return err
	}

	form := url.Values{
		"token":   {c.token},
		"user":    {c.user},
		"title":   {n.Title},
		"message": {n.Message},
		"sound":   {sound},
		"url":     {n.URL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("send push: status %d: %s", resp.StatusCode, body)
	}

	c.logger.Info("sent push", "title", n.Title)
	return nil
}
