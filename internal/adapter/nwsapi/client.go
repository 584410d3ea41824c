// Package nwsapi implements a client for the public NWS REST API
// (api.weather.gov): active alert polling and zone/county geometry lookup,
// rate-limited and retried the way the upstream service expects.
package nwsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	retryBaseDelay = 2 * time.Second
	retryMaxDelay  = 30 * time.Second
	maxAttempts    = 3
)

// Client implements geometry.Fetcher against the NWS API, plus alert polling.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	userAgent      string
	limiter        *rate.Limiter
	logger         *slog.Logger
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// New creates an NWS API client. The User-Agent header is mandatory per the
// upstream API's usage policy: requests without one are liable to be
// throttled or blocked.
func New(baseURL, userAgent string, requestTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: requestTimeout},
		baseURL:        baseURL,
		userAgent:      userAgent,
		limiter:        rate.NewLimiter(rate.Every(time.Second), 1),
		logger:         logger,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
	}
}

// ActiveAlertsFeature is the minimal shape of the GeoJSON FeatureCollection
// returned by GET /alerts/active.
type ActiveAlertsFeature struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	Geometry   map[string]any `json:"geometry"`
}

type activeAlertsResponse struct {
	Features []ActiveAlertsFeature `json:"features"`
}

// FetchActiveAlerts polls GET /alerts/active.
func (c *Client) FetchActiveAlerts(ctx context.Context) ([]ActiveAlertsFeature, error) {
	var out activeAlertsResponse
	if err := c.getJSON(ctx, c.baseURL+"/alerts/active", &out); err != nil {
		return nil, fmt.Errorf("nwsapi: fetch active alerts: %w", err)
	}
	return out.Features, nil
}

// FetchAlert fetches a single alert by its NWS API id via GET /alerts/{id}.
func (c *Client) FetchAlert(ctx context.Context, id string) (ActiveAlertsFeature, error) {
	var out ActiveAlertsFeature
	if err := c.getJSON(ctx, c.baseURL+"/alerts/"+id, &out); err != nil {
		return ActiveAlertsFeature{}, fmt.Errorf("nwsapi: fetch alert %s: %w", id, err)
	}
	return out, nil
}

type zoneResponse struct {
	Geometry map[string]any `json:"geometry"`
}

// FetchZoneGeometry fetches GET /zones/forecast/{id}. Implements
// geometry.Fetcher.
func (c *Client) FetchZoneGeometry(ctx context.Context, ugcCode string) (map[string]any, error) {
	var out zoneResponse
	if err := c.getJSON(ctx, c.baseURL+"/zones/forecast/"+ugcCode, &out); err != nil {
		return nil, fmt.Errorf("nwsapi: fetch zone geometry %s: %w", ugcCode, err)
	}
	return out.Geometry, nil
}

// FetchCountyGeometry fetches GET /zones/county/{id}. Implements
// geometry.Fetcher.
func (c *Client) FetchCountyGeometry(ctx context.Context, ugcCode string) (map[string]any, error) {
	var out zoneResponse
	if err := c.getJSON(ctx, c.baseURL+"/zones/county/"+ugcCode, &out); err != nil {
		return nil, fmt.Errorf("nwsapi: fetch county geometry %s: %w", ugcCode, err)
	}
	return out.Geometry, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	body, err := c.doWithRetry(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doWithRetry(ctx context.Context, url string) (io.ReadCloser, error) {
	delay := c.retryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/geo+json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request: %w", err)
			c.logger.Warn("nws api request failed", "url", url, "attempt", attempt, "err", err)
			if !c.sleepForRetry(ctx, &delay) {
				return nil, lastErr
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("nws api error: status %d: %s", resp.StatusCode, body)

		if !isRetryable(resp.StatusCode) || attempt == maxAttempts {
			return nil, lastErr
		}
		c.logger.Warn("nws api request will retry", "url", url, "status", resp.StatusCode, "attempt", attempt)
		if !c.sleepForRetry(ctx, &delay) {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// Close releases idle connections held by the client's transport. Safe to
// call even if requests are still in flight; it only affects the idle pool.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func isRetryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (c *Client) sleepForRetry(ctx context.Context, delay *time.Duration) bool {
	select {
	case <-time.After(*delay):
	case <-ctx.Done():
		return false
	}
	*delay *= 2
	if *delay > c.retryMaxDelay {
		*delay = c.retryMaxDelay
	}
	return true
}
